package lineupapi

import (
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
)

type slotDTO struct {
	Position        string  `json:"position"`
	PlayerID        string  `json:"playerId"`
	Locked          bool    `json:"locked"`
	ProjectedPoints float64 `json:"projectedPoints"`
	WeatherImpact   *string `json:"weatherImpact,omitempty"`
	InjuryStatus    string  `json:"injuryStatus,omitempty"`
	OnBye           bool    `json:"onBye"`
}

type lineupDTO struct {
	ID                string    `json:"id"`
	TeamID            string    `json:"teamId"`
	ScoringPeriod     int       `json:"scoringPeriod"`
	Sport             string    `json:"sport"`
	Starters          []slotDTO `json:"starters"`
	Bench             []slotDTO `json:"bench"`
	OptimizationScore float64   `json:"optimizationScore"`
	LastUpdated       time.Time `json:"lastUpdated"`
}

type putLineupRequest struct {
	Starters []slotDTO `json:"starters"`
	Bench    []slotDTO `json:"bench"`
}

type submitResponse struct {
	JobID string `json:"jobId"`
}

type tradeAnalysisDTO struct {
	AcceptanceProbability float64 `json:"acceptanceProbability"`
	ValueDelta            float64 `json:"valueDelta"`
	RiskScore             float64 `json:"riskScore"`
	Summary               string  `json:"summary"`
}

type resultDTO struct {
	Starters          []slotDTO         `json:"starters"`
	Bench             []slotDTO         `json:"bench"`
	OptimizationScore float64           `json:"optimizationScore"`
	Confidence        float64           `json:"confidence"`
	TradeAnalysis     *tradeAnalysisDTO `json:"tradeAnalysis,omitempty"`
}

type statusResponse struct {
	JobID           string     `json:"jobId"`
	Status          string     `json:"status"`
	ProgressPercent float64    `json:"progressPercent"`
	Result          *resultDTO `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func slotsToDTO(in []lineup.Slot) []slotDTO {
	out := make([]slotDTO, 0, len(in))
	for _, s := range in {
		dto := slotDTO{
			Position:        string(s.Position),
			PlayerID:        s.PlayerID,
			Locked:          s.Locked,
			ProjectedPoints: s.ProjectedPoints,
			InjuryStatus:    string(s.InjuryStatus),
			OnBye:           s.OnBye,
		}
		if s.WeatherImpact != nil {
			w := string(*s.WeatherImpact)
			dto.WeatherImpact = &w
		}
		out = append(out, dto)
	}
	return out
}

func slotsFromDTO(in []slotDTO) []lineup.Slot {
	out := make([]lineup.Slot, 0, len(in))
	for _, dto := range in {
		s := lineup.Slot{
			Position:        lineup.Position(dto.Position),
			PlayerID:        dto.PlayerID,
			Locked:          dto.Locked,
			ProjectedPoints: dto.ProjectedPoints,
			InjuryStatus:    lineup.InjuryStatus(dto.InjuryStatus),
			OnBye:           dto.OnBye,
		}
		if s.InjuryStatus == "" {
			s.InjuryStatus = lineup.InjuryActive
		}
		if dto.WeatherImpact != nil {
			w := lineup.WeatherImpact(*dto.WeatherImpact)
			s.WeatherImpact = &w
		}
		out = append(out, s)
	}
	return out
}

func (d lineupDTO) toDomain() lineup.Lineup {
	return lineup.Lineup{
		ID:                d.ID,
		TeamID:            d.TeamID,
		ScoringPeriod:     d.ScoringPeriod,
		Sport:             lineup.Sport(d.Sport),
		Starters:          slotsFromDTO(d.Starters),
		Bench:             slotsFromDTO(d.Bench),
		OptimizationScore: d.OptimizationScore,
		LastUpdated:       d.LastUpdated,
	}
}

func (d *resultDTO) toDomain() *optimization.Result {
	if d == nil {
		return nil
	}
	out := &optimization.Result{
		OptimizationScore: d.OptimizationScore,
		Confidence:        d.Confidence,
	}
	if len(d.Starters) > 0 || len(d.Bench) > 0 {
		out.Starters = slotsFromDTO(d.Starters)
		out.Bench = slotsFromDTO(d.Bench)
	}
	if d.TradeAnalysis != nil {
		out.TradeAnalysis = &optimization.TradeAnalysis{
			AcceptanceProbability: d.TradeAnalysis.AcceptanceProbability,
			ValueDelta:            d.TradeAnalysis.ValueDelta,
			RiskScore:             d.TradeAnalysis.RiskScore,
			Summary:               d.TradeAnalysis.Summary,
		}
	}
	return out
}
