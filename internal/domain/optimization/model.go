package optimization

import (
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
)

type Kind string

const (
	KindLineup Kind = "lineup"
	KindTrade  Kind = "trade"
)

type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

const (
	DefaultSimulations = 1000
	MaxSimulations     = 1000
	MaxTradePlayers    = 5
)

// Params describes one optimization or trade-analysis request. Its JSON
// form is the input of Fingerprint, so field tags are part of the cache key.
type Params struct {
	Kind            Kind         `json:"kind" validate:"required,oneof=lineup trade"`
	TeamID          string       `json:"teamId" validate:"required,max=128"`
	ScoringPeriod   int          `json:"scoringPeriod" validate:"min=1,max=53"`
	Sport           lineup.Sport `json:"sport" validate:"required,oneof=NFL NBA MLB"`
	Simulations     int          `json:"simulations" validate:"min=1,max=1000"`
	IncludeInjuries bool         `json:"includeInjuries"`
	IncludeWeather  bool         `json:"includeWeather"`
	IncludeMatchups bool         `json:"includeMatchups"`
	Trade           *TradeParams `json:"trade,omitempty" validate:"required_if=Kind trade,omitempty"`
}

type TradeParams struct {
	OfferedPlayerIDs   []string `json:"offeredPlayerIds" validate:"min=1,max=5,unique,dive,required"`
	RequestedPlayerIDs []string `json:"requestedPlayerIds" validate:"min=1,max=5,unique,dive,required"`
	CounterpartyTeamID string   `json:"counterpartyTeamId" validate:"required"`
}

type TradeAnalysis struct {
	AcceptanceProbability float64
	ValueDelta            float64
	RiskScore             float64
	Summary               string
}

type Result struct {
	Starters          []lineup.Slot
	Bench             []lineup.Slot
	OptimizationScore float64
	Confidence        float64
	TradeAnalysis     *TradeAnalysis
}

// HasLineup reports whether the result proposes a lineup.
func (r *Result) HasLineup() bool {
	return r != nil && (len(r.Starters) > 0 || len(r.Bench) > 0)
}

// Job is the local record of one remote optimization run.
type Job struct {
	RequestID       string
	RemoteJobID     string
	TeamID          string
	Fingerprint     string
	Params          Params
	Status          Status
	ProgressPercent float64
	Result          *Result
	Error           string
	Cached          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// Progress is published on every observed change of a job.
type Progress struct {
	RequestID       string
	Status          Status
	ProgressPercent float64
	Error           string
	At              time.Time
}

// RemoteStatus is one poll answer from the remote optimizer.
type RemoteStatus struct {
	JobID           string
	Status          Status
	ProgressPercent float64
	Result          *Result
	Error           string
}

// Clone returns a deep copy so ledgers never share slices with callers.
func (j Job) Clone() Job {
	out := j
	if j.Params.Trade != nil {
		trade := *j.Params.Trade
		trade.OfferedPlayerIDs = append([]string(nil), trade.OfferedPlayerIDs...)
		trade.RequestedPlayerIDs = append([]string(nil), trade.RequestedPlayerIDs...)
		out.Params.Trade = &trade
	}
	if j.Result != nil {
		result := *j.Result
		result.Starters = cloneSlots(result.Starters)
		result.Bench = cloneSlots(result.Bench)
		if result.TradeAnalysis != nil {
			analysis := *result.TradeAnalysis
			result.TradeAnalysis = &analysis
		}
		out.Result = &result
	}
	if j.CompletedAt != nil {
		completed := *j.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}

func cloneSlots(in []lineup.Slot) []lineup.Slot {
	if in == nil {
		return nil
	}
	l := lineup.Lineup{Starters: in}
	return l.Clone().Starters
}
