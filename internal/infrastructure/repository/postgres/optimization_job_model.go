package postgres

import (
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
)

const optimizationJobsTable = "optimization_jobs"

var optimizationJobColumns = []string{
	"request_id",
	"remote_job_id",
	"team_id",
	"kind",
	"fingerprint",
	"params",
	"status",
	"progress_percent",
	"result",
	"error_message",
	"cached",
	"created_at",
	"updated_at",
	"completed_at",
}

type optimizationJobTableModel struct {
	RequestID       string     `db:"request_id"`
	RemoteJobID     string     `db:"remote_job_id"`
	TeamID          string     `db:"team_id"`
	Kind            string     `db:"kind"`
	Fingerprint     string     `db:"fingerprint"`
	Params          []byte     `db:"params"`
	Status          string     `db:"status"`
	ProgressPercent float64    `db:"progress_percent"`
	Result          []byte     `db:"result"`
	ErrorMessage    *string    `db:"error_message"`
	Cached          bool       `db:"cached"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	CompletedAt     *time.Time `db:"completed_at"`
}

type optimizationJobInsertModel struct {
	RequestID       string     `db:"request_id"`
	RemoteJobID     string     `db:"remote_job_id"`
	TeamID          string     `db:"team_id"`
	Kind            string     `db:"kind"`
	Fingerprint     string     `db:"fingerprint"`
	Params          string     `db:"params"`
	Status          string     `db:"status"`
	ProgressPercent float64    `db:"progress_percent"`
	Result          *string    `db:"result"`
	ErrorMessage    *string    `db:"error_message"`
	Cached          bool       `db:"cached"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
	CompletedAt     *time.Time `db:"completed_at"`
}

type slotRecord struct {
	Position        string  `json:"position"`
	PlayerID        string  `json:"playerId"`
	Locked          bool    `json:"locked"`
	ProjectedPoints float64 `json:"projectedPoints"`
	WeatherImpact   *string `json:"weatherImpact,omitempty"`
	InjuryStatus    string  `json:"injuryStatus"`
	OnBye           bool    `json:"onBye"`
}

type tradeAnalysisRecord struct {
	AcceptanceProbability float64 `json:"acceptanceProbability"`
	ValueDelta            float64 `json:"valueDelta"`
	RiskScore             float64 `json:"riskScore"`
	Summary               string  `json:"summary"`
}

type resultRecord struct {
	Starters          []slotRecord         `json:"starters,omitempty"`
	Bench             []slotRecord         `json:"bench,omitempty"`
	OptimizationScore float64              `json:"optimizationScore"`
	Confidence        float64              `json:"confidence"`
	TradeAnalysis     *tradeAnalysisRecord `json:"tradeAnalysis,omitempty"`
}

func resultToRecord(r *optimization.Result) *resultRecord {
	if r == nil {
		return nil
	}
	out := &resultRecord{
		Starters:          slotsToRecord(r.Starters),
		Bench:             slotsToRecord(r.Bench),
		OptimizationScore: r.OptimizationScore,
		Confidence:        r.Confidence,
	}
	if r.TradeAnalysis != nil {
		out.TradeAnalysis = &tradeAnalysisRecord{
			AcceptanceProbability: r.TradeAnalysis.AcceptanceProbability,
			ValueDelta:            r.TradeAnalysis.ValueDelta,
			RiskScore:             r.TradeAnalysis.RiskScore,
			Summary:               r.TradeAnalysis.Summary,
		}
	}
	return out
}

func (r *resultRecord) toDomain() *optimization.Result {
	if r == nil {
		return nil
	}
	out := &optimization.Result{
		Starters:          slotsFromRecord(r.Starters),
		Bench:             slotsFromRecord(r.Bench),
		OptimizationScore: r.OptimizationScore,
		Confidence:        r.Confidence,
	}
	if r.TradeAnalysis != nil {
		out.TradeAnalysis = &optimization.TradeAnalysis{
			AcceptanceProbability: r.TradeAnalysis.AcceptanceProbability,
			ValueDelta:            r.TradeAnalysis.ValueDelta,
			RiskScore:             r.TradeAnalysis.RiskScore,
			Summary:               r.TradeAnalysis.Summary,
		}
	}
	return out
}

func slotsToRecord(in []lineup.Slot) []slotRecord {
	if len(in) == 0 {
		return nil
	}
	out := make([]slotRecord, 0, len(in))
	for _, s := range in {
		rec := slotRecord{
			Position:        string(s.Position),
			PlayerID:        s.PlayerID,
			Locked:          s.Locked,
			ProjectedPoints: s.ProjectedPoints,
			InjuryStatus:    string(s.InjuryStatus),
			OnBye:           s.OnBye,
		}
		if s.WeatherImpact != nil {
			w := string(*s.WeatherImpact)
			rec.WeatherImpact = &w
		}
		out = append(out, rec)
	}
	return out
}

func slotsFromRecord(in []slotRecord) []lineup.Slot {
	if len(in) == 0 {
		return nil
	}
	out := make([]lineup.Slot, 0, len(in))
	for _, rec := range in {
		s := lineup.Slot{
			Position:        lineup.Position(rec.Position),
			PlayerID:        rec.PlayerID,
			Locked:          rec.Locked,
			ProjectedPoints: rec.ProjectedPoints,
			InjuryStatus:    lineup.InjuryStatus(rec.InjuryStatus),
			OnBye:           rec.OnBye,
		}
		if rec.WeatherImpact != nil {
			w := lineup.WeatherImpact(*rec.WeatherImpact)
			s.WeatherImpact = &w
		}
		out = append(out, s)
	}
	return out
}
