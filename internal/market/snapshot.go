package market

import "time"

// Timeframe represents a chart timeframe
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
)

// TimeframeView is the dual view of one timeframe's history: an ordered
// sequence of closed bars and the partially-formed current bar. The live
// bar is never part of Stable and is never treated as closed.
type TimeframeView struct {
	Timeframe Timeframe `json:"timeframe"`
	Stable    []Candle  `json:"stable"`
	Live      Candle    `json:"live"`
	FetchedAt time.Time `json:"fetched_at"`
}

// LastClose returns the most recent closed bar's close, or 0 with ok=false
// when there is no stable history.
func (v *TimeframeView) LastClose() (float64, bool) {
	if len(v.Stable) == 0 {
		return 0, false
	}
	return v.Stable[len(v.Stable)-1].Close, true
}

// MarketSnapshot is the per-symbol, per-cycle bundle of timeframe views.
// It is created once per decision cycle and read-only afterward; the next
// cycle replaces it wholesale.
type MarketSnapshot struct {
	Symbol      string                       `json:"symbol"`
	Timestamp   time.Time                    `json:"timestamp"`
	Views       map[Timeframe]*TimeframeView `json:"views"`
	AlignmentOK bool                         `json:"alignment_ok"`
	FundingRate float64                      `json:"funding_rate"`
}

// View returns the view for a timeframe, or nil
func (s *MarketSnapshot) View(tf Timeframe) *TimeframeView {
	return s.Views[tf]
}

// LivePrice returns the freshest live-bar close across views, preferring
// the shortest timeframe.
func (s *MarketSnapshot) LivePrice() float64 {
	for _, tf := range []Timeframe{TF5m, TF15m, TF1h} {
		if v, ok := s.Views[tf]; ok && v.Live.Close > 0 {
			return v.Live.Close
		}
	}
	return 0
}
