package bot

import (
	"fmt"
	"time"

	"futures-quant-bot/internal/risk"
	"futures-quant-bot/internal/signal"
	"futures-quant-bot/internal/vote"
)

// CycleOutcome classifies how a decision cycle ended
type CycleOutcome string

const (
	// OutcomeSuccess means an order was executed (or would have been, in
	// dry-run mode)
	OutcomeSuccess CycleOutcome = "success"
	// OutcomeHold means the pipeline decided not to act
	OutcomeHold CycleOutcome = "hold"
	// OutcomeBlocked means the risk audit or circuit breaker vetoed the order
	OutcomeBlocked CycleOutcome = "blocked"
	// OutcomeFailed means the exchange rejected or could not fill the order
	OutcomeFailed CycleOutcome = "failed"
	// OutcomeError means a pipeline stage failed before execution
	OutcomeError CycleOutcome = "error"
)

// Stage names the pipeline step where a cycle error occurred
type Stage string

const (
	StageData      Stage = "data"
	StageIndicator Stage = "indicator"
	StageDecision  Stage = "decision"
	StageRisk      Stage = "risk"
	StageExecution Stage = "execution"
)

// CycleError wraps a stage failure so reports carry where, not just what
type CycleError struct {
	Stage Stage
	Err   error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) *CycleError {
	return &CycleError{Stage: stage, Err: err}
}

// CycleReport is the full record of one decision cycle, handed to
// observers after the cycle completes
type CycleReport struct {
	CycleID     string
	Symbol      string
	StartedAt   time.Time
	FinishedAt  time.Time
	Outcome     CycleOutcome
	Vote        *vote.Result
	Sentiment   *signal.Score
	FundingRate float64
	Order       *risk.OrderParams
	Audit       *risk.AuditResult
	Err         *CycleError
}

// Observer receives completed cycle reports. Implementations must not
// block; the engine calls them synchronously at cycle end.
type Observer interface {
	CycleFinished(report *CycleReport)
}
