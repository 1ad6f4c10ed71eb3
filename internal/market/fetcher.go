package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"futures-quant-bot/internal/logging"
)

// DataSource provides raw candle history. Implementations must return bars
// strictly time-ordered; the most recent bar is the still-forming live bar.
type DataSource interface {
	GetKlines(ctx context.Context, symbol string, timeframe string, limit int) ([]Candle, error)
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
}

// Fetcher builds per-cycle MarketSnapshots from a DataSource, fetching the
// three timeframes in parallel with a short TTL cache per timeframe.
type Fetcher struct {
	source     DataSource
	timeframes []Timeframe
	limit      int
	maxSkew    time.Duration
	cache      *candleCache
	log        *logging.Logger

	liveMu sync.RWMutex
	live   map[string]Candle // Streamed live-bar ticks, keyed symbol:timeframe
}

// NewFetcher creates a snapshot fetcher
func NewFetcher(source DataSource, timeframes []Timeframe, limit int, maxSkew time.Duration, log *logging.Logger) *Fetcher {
	return &Fetcher{
		source:     source,
		timeframes: timeframes,
		limit:      limit,
		maxSkew:    maxSkew,
		cache:      newCandleCache(),
		log:        log.WithComponent("market.fetcher"),
		live:       make(map[string]Candle),
	}
}

// UpdateLive records a streamed tick of the forming bar. Snapshots overlay
// it onto the REST view when it belongs to the same bar, so the live bar
// stays fresh between polls without touching stable history.
func (f *Fetcher) UpdateLive(symbol string, tf Timeframe, live Candle) {
	f.liveMu.Lock()
	f.live[symbol+":"+string(tf)] = live
	f.liveMu.Unlock()
}

// Snapshot fetches all timeframes concurrently and assembles a snapshot.
// A fetch error on any timeframe fails the whole snapshot; skew between
// successful fetches only clears AlignmentOK, it never blocks the cycle.
func (f *Fetcher) Snapshot(ctx context.Context, symbol string) (*MarketSnapshot, error) {
	snap := &MarketSnapshot{
		Symbol:    symbol,
		Timestamp: time.Now(),
		Views:     make(map[Timeframe]*TimeframeView, len(f.timeframes)),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	errCh := make(chan error, len(f.timeframes))

	for _, tf := range f.timeframes {
		wg.Add(1)
		go func(tf Timeframe) {
			defer wg.Done()
			view, err := f.fetchView(ctx, symbol, tf)
			if err != nil {
				errCh <- fmt.Errorf("fetch %s %s: %w", symbol, tf, err)
				return
			}
			mu.Lock()
			snap.Views[tf] = view
			mu.Unlock()
		}(tf)
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return nil, err
	}

	snap.AlignmentOK = f.checkAlignment(snap)
	if !snap.AlignmentOK {
		f.log.Warn("timeframe views not aligned, cycle will run degraded", "symbol", symbol)
	}

	if rate, err := f.source.GetFundingRate(ctx, symbol); err == nil {
		snap.FundingRate = rate
	} else {
		f.log.Debug("funding rate unavailable", "symbol", symbol, "error", err)
	}

	return snap, nil
}

func (f *Fetcher) fetchView(ctx context.Context, symbol string, tf Timeframe) (*TimeframeView, error) {
	key := symbol + ":" + string(tf)
	if view := f.cache.get(key); view != nil {
		return f.overlayLive(key, view), nil
	}

	// +1 so the stable window still has `limit` bars after the live bar
	// is split off
	raw, err := f.source.GetKlines(ctx, symbol, string(tf), f.limit+1)
	if err != nil {
		return nil, err
	}

	candles, dropped := ValidateSeries(raw)
	if dropped > 0 {
		f.log.Warn("dropped invalid bars at ingestion", "symbol", symbol, "timeframe", string(tf), "dropped", dropped)
	}
	if len(candles) < 2 {
		return nil, fmt.Errorf("insufficient history: %d bars after validation", len(candles))
	}

	view := &TimeframeView{
		Timeframe: tf,
		Stable:    candles[:len(candles)-1],
		Live:      candles[len(candles)-1],
		FetchedAt: time.Now(),
	}

	f.cache.set(key, view, cacheTTL(tf))
	return f.overlayLive(key, view), nil
}

// overlayLive swaps in the streamed forming bar when it matches the view's
// live bar. A tick for a different bar means the REST view is ahead or
// behind; the next fetch reconciles, so the mismatch is ignored. The cached
// view is never mutated.
func (f *Fetcher) overlayLive(key string, view *TimeframeView) *TimeframeView {
	f.liveMu.RLock()
	streamed, ok := f.live[key]
	f.liveMu.RUnlock()

	if !ok || streamed.OpenTime != view.Live.OpenTime || !streamed.Valid() {
		return view
	}
	fresh := *view
	fresh.Live = streamed
	return &fresh
}

// checkAlignment reports whether all views were sampled within the skew window
func (f *Fetcher) checkAlignment(snap *MarketSnapshot) bool {
	var earliest, latest time.Time
	for _, view := range snap.Views {
		if earliest.IsZero() || view.FetchedAt.Before(earliest) {
			earliest = view.FetchedAt
		}
		if view.FetchedAt.After(latest) {
			latest = view.FetchedAt
		}
	}
	return latest.Sub(earliest) <= f.maxSkew
}

func cacheTTL(tf Timeframe) time.Duration {
	switch tf {
	case TF5m:
		return 30 * time.Second
	case TF15m:
		return 2 * time.Minute
	case TF1h:
		return 10 * time.Minute
	default:
		return 30 * time.Second
	}
}

// candleCache is a small TTL cache of assembled views
type candleCache struct {
	mu   sync.RWMutex
	data map[string]*cacheEntry
}

type cacheEntry struct {
	view      *TimeframeView
	expiresAt time.Time
}

func newCandleCache() *candleCache {
	return &candleCache{data: make(map[string]*cacheEntry)}
}

func (c *candleCache) get(key string) *TimeframeView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.view
}

func (c *candleCache) set(key string, view *TimeframeView, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = &cacheEntry{view: view, expiresAt: time.Now().Add(ttl)}
}
