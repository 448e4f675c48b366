package httpapi

import (
	"strconv"
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/domain/lineup"
	"github.com/riskibarqy/lineup-orchestrator/internal/domain/optimization"
	"github.com/riskibarqy/lineup-orchestrator/internal/usecase"
)

type slotRequest struct {
	Position        string  `json:"position" validate:"required,max=8"`
	PlayerID        string  `json:"playerId" validate:"max=128"`
	Locked          bool    `json:"locked"`
	ProjectedPoints float64 `json:"projectedPoints" validate:"gte=0"`
	WeatherImpact   *string `json:"weatherImpact" validate:"omitempty,oneof=NONE LOW MODERATE HIGH SEVERE"`
	InjuryStatus    string  `json:"injuryStatus" validate:"omitempty,oneof=ACTIVE QUESTIONABLE DOUBTFUL OUT IR"`
	OnBye           bool    `json:"onBye"`
}

type updateLineupRequest struct {
	Slots map[string]slotRequest `json:"slots" validate:"required,min=1,dive,keys,numeric,endkeys"`
}

type swapRequest struct {
	SourceIndex *int `json:"sourceIndex" validate:"required,min=0"`
	TargetIndex *int `json:"targetIndex" validate:"required,min=0"`
}

type optimizeRequest struct {
	Simulations     int   `json:"simulations" validate:"omitempty,min=1,max=1000"`
	IncludeInjuries *bool `json:"includeInjuries"`
	IncludeWeather  *bool `json:"includeWeather"`
	IncludeMatchups *bool `json:"includeMatchups"`
}

type analyzeTradeRequest struct {
	optimizeRequest
	ScoringPeriod      int      `json:"scoringPeriod" validate:"min=1,max=53"`
	OfferedPlayerIDs   []string `json:"offeredPlayerIds" validate:"required,min=1,max=5,dive,required"`
	RequestedPlayerIDs []string `json:"requestedPlayerIds" validate:"required,min=1,max=5,dive,required"`
	CounterpartyTeamID string   `json:"counterpartyTeamId" validate:"required,max=128"`
}

// params applies the defaults the UI expects: every signal on unless the
// caller turns it off.
func (r optimizeRequest) params(teamID string, period int, sport lineup.Sport) optimization.Params {
	return optimization.Params{
		TeamID:          teamID,
		ScoringPeriod:   period,
		Sport:           sport,
		Simulations:     r.Simulations,
		IncludeInjuries: boolOr(r.IncludeInjuries, true),
		IncludeWeather:  boolOr(r.IncludeWeather, true),
		IncludeMatchups: boolOr(r.IncludeMatchups, true),
	}
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func (r updateLineupRequest) toDomain() map[int]lineup.Slot {
	out := make(map[int]lineup.Slot, len(r.Slots))
	for key, s := range r.Slots {
		index, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		slot := lineup.Slot{
			Position:        lineup.Position(s.Position),
			PlayerID:        s.PlayerID,
			Locked:          s.Locked,
			ProjectedPoints: s.ProjectedPoints,
			InjuryStatus:    lineup.InjuryStatus(s.InjuryStatus),
			OnBye:           s.OnBye,
		}
		if slot.InjuryStatus == "" {
			slot.InjuryStatus = lineup.InjuryActive
		}
		if s.WeatherImpact != nil {
			w := lineup.WeatherImpact(*s.WeatherImpact)
			slot.WeatherImpact = &w
		}
		out[index] = slot
	}
	return out
}

type slotDTO struct {
	Index           int     `json:"index"`
	Position        string  `json:"position"`
	PlayerID        string  `json:"playerId"`
	Locked          bool    `json:"locked"`
	ProjectedPoints float64 `json:"projectedPoints"`
	WeatherImpact   *string `json:"weatherImpact"`
	InjuryStatus    string  `json:"injuryStatus"`
	OnBye           bool    `json:"onBye"`
}

type issueDTO struct {
	Severity  string `json:"severity"`
	Code      string `json:"code"`
	SlotIndex int    `json:"slotIndex"`
	Message   string `json:"message"`
}

type lineupDTO struct {
	ID                string     `json:"id"`
	TeamID            string     `json:"teamId"`
	ScoringPeriod     int        `json:"scoringPeriod"`
	Sport             string     `json:"sport"`
	Starters          []slotDTO  `json:"starters"`
	Bench             []slotDTO  `json:"bench"`
	OptimizationScore float64    `json:"optimizationScore"`
	LastUpdated       time.Time  `json:"lastUpdated"`
	ValidationStatus  string     `json:"validationStatus"`
	Issues            []issueDTO `json:"issues"`
}

type progressDTO struct {
	RequestID       string    `json:"requestId"`
	Status          string    `json:"status"`
	ProgressPercent float64   `json:"progressPercent"`
	Error           string    `json:"error,omitempty"`
	At              time.Time `json:"at"`
}

type stateSyncDTO struct {
	Synced         bool       `json:"synced"`
	LastSyncTime   *time.Time `json:"lastSyncTime"`
	PendingChanges int        `json:"pendingChanges"`
}

type lineupStateDTO struct {
	Loading              bool         `json:"loading"`
	Error                string       `json:"error,omitempty"`
	Lineup               *lineupDTO   `json:"lineup"`
	Stale                bool         `json:"stale"`
	OptimizationProgress *progressDTO `json:"optimizationProgress"`
	SyncStatus           stateSyncDTO `json:"syncStatus"`
}

type mutationDTO struct {
	RequestID string         `json:"requestId"`
	State     lineupStateDTO `json:"state"`
}

type tradeAnalysisDTO struct {
	AcceptanceProbability float64 `json:"acceptanceProbability"`
	ValueDelta            float64 `json:"valueDelta"`
	RiskScore             float64 `json:"riskScore"`
	Summary               string  `json:"summary"`
}

type resultDTO struct {
	Starters          []slotDTO         `json:"starters,omitempty"`
	Bench             []slotDTO         `json:"bench,omitempty"`
	OptimizationScore float64           `json:"optimizationScore"`
	Confidence        float64           `json:"confidence"`
	TradeAnalysis     *tradeAnalysisDTO `json:"tradeAnalysis,omitempty"`
}

type jobDTO struct {
	RequestID       string     `json:"requestId"`
	Kind            string     `json:"kind"`
	TeamID          string     `json:"teamId"`
	ScoringPeriod   int        `json:"scoringPeriod"`
	Status          string     `json:"status"`
	ProgressPercent float64    `json:"progressPercent"`
	Cached          bool       `json:"cached"`
	Error           string     `json:"error,omitempty"`
	Result          *resultDTO `json:"result,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

type circuitDTO struct {
	Status              string     `json:"status"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	OpenedAt            *time.Time `json:"openedAt,omitempty"`
}

type syncStatusDTO struct {
	State               string                `json:"state"`
	Synced              bool                  `json:"synced"`
	LastSyncTime        *time.Time            `json:"lastSyncTime"`
	ReconnectAttempts   int                   `json:"reconnectAttempts"`
	Circuits            map[string]circuitDTO `json:"circuits"`
	Stores              []string              `json:"stores"`
	PendingChanges      int                   `json:"pendingChanges"`
	ActiveOptimizations int                   `json:"activeOptimizations"`
}

func slotsToDTO(slots []lineup.Slot, offset int) []slotDTO {
	out := make([]slotDTO, 0, len(slots))
	for i, s := range slots {
		item := slotDTO{
			Index:           offset + i,
			Position:        string(s.Position),
			PlayerID:        s.PlayerID,
			Locked:          s.Locked,
			ProjectedPoints: s.ProjectedPoints,
			InjuryStatus:    string(s.InjuryStatus),
			OnBye:           s.OnBye,
		}
		if s.WeatherImpact != nil {
			w := string(*s.WeatherImpact)
			item.WeatherImpact = &w
		}
		out = append(out, item)
	}
	return out
}

func lineupToDTO(l lineup.Lineup) lineupDTO {
	issues := make([]issueDTO, 0, len(l.Issues))
	for _, issue := range l.Issues {
		issues = append(issues, issueDTO{
			Severity:  string(issue.Severity),
			Code:      issue.Code,
			SlotIndex: issue.SlotIndex,
			Message:   issue.Message,
		})
	}
	return lineupDTO{
		ID:                l.ID,
		TeamID:            l.TeamID,
		ScoringPeriod:     l.ScoringPeriod,
		Sport:             string(l.Sport),
		Starters:          slotsToDTO(l.Starters, 0),
		Bench:             slotsToDTO(l.Bench, len(l.Starters)),
		OptimizationScore: l.OptimizationScore,
		LastUpdated:       l.LastUpdated,
		ValidationStatus:  string(l.ValidationStatus),
		Issues:            issues,
	}
}

func stateToDTO(s usecase.LineupState) lineupStateDTO {
	out := lineupStateDTO{
		Loading: s.Loading,
		Error:   s.Error,
		Stale:   s.Stale,
		SyncStatus: stateSyncDTO{
			Synced:         s.SyncStatus.Synced,
			LastSyncTime:   s.SyncStatus.LastSyncTime,
			PendingChanges: s.SyncStatus.PendingChanges,
		},
	}
	if s.Lineup != nil {
		l := lineupToDTO(*s.Lineup)
		out.Lineup = &l
	}
	if p := s.OptimizationProgress; p != nil {
		out.OptimizationProgress = &progressDTO{
			RequestID:       p.RequestID,
			Status:          string(p.Status),
			ProgressPercent: p.ProgressPercent,
			Error:           p.Error,
			At:              p.At,
		}
	}
	return out
}

func jobToDTO(j optimization.Job) jobDTO {
	out := jobDTO{
		RequestID:       j.RequestID,
		Kind:            string(j.Params.Kind),
		TeamID:          j.TeamID,
		ScoringPeriod:   j.Params.ScoringPeriod,
		Status:          string(j.Status),
		ProgressPercent: j.ProgressPercent,
		Cached:          j.Cached,
		Error:           j.Error,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		CompletedAt:     j.CompletedAt,
	}
	if r := j.Result; r != nil {
		out.Result = &resultDTO{
			Starters:          slotsToDTO(r.Starters, 0),
			Bench:             slotsToDTO(r.Bench, len(r.Starters)),
			OptimizationScore: r.OptimizationScore,
			Confidence:        r.Confidence,
		}
		if ta := r.TradeAnalysis; ta != nil {
			out.Result.TradeAnalysis = &tradeAnalysisDTO{
				AcceptanceProbability: ta.AcceptanceProbability,
				ValueDelta:            ta.ValueDelta,
				RiskScore:             ta.RiskScore,
				Summary:               ta.Summary,
			}
		}
	}
	return out
}

func serviceStatusToDTO(s usecase.ServiceStatus) syncStatusDTO {
	circuits := make(map[string]circuitDTO, len(s.Circuits))
	for class, snap := range s.Circuits {
		item := circuitDTO{Status: string(snap.Status), ConsecutiveFailures: snap.ConsecutiveFailures}
		if !snap.OpenedAt.IsZero() {
			openedAt := snap.OpenedAt
			item.OpenedAt = &openedAt
		}
		circuits[string(class)] = item
	}

	stores := s.Stores
	if stores == nil {
		stores = []string{}
	}

	return syncStatusDTO{
		State:               string(s.Sync.State),
		Synced:              s.Sync.Synced,
		LastSyncTime:        s.Sync.LastSyncTime,
		ReconnectAttempts:   s.Sync.ReconnectAttempts,
		Circuits:            circuits,
		Stores:              stores,
		PendingChanges:      s.Pending,
		ActiveOptimizations: s.Active,
	}
}
