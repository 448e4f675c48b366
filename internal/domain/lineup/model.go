package lineup

import (
	"fmt"
	"strings"
	"time"
)

type Sport string

const (
	SportNFL Sport = "NFL"
	SportNBA Sport = "NBA"
	SportMLB Sport = "MLB"
)

func ParseSport(raw string) (Sport, error) {
	switch s := Sport(strings.ToUpper(strings.TrimSpace(raw))); s {
	case SportNFL, SportNBA, SportMLB:
		return s, nil
	default:
		return "", fmt.Errorf("unsupported sport %q", raw)
	}
}

type Position string

const (
	PositionQB  Position = "QB"
	PositionRB  Position = "RB"
	PositionWR  Position = "WR"
	PositionTE  Position = "TE"
	PositionK   Position = "K"
	PositionDEF Position = "DEF"

	PositionPG Position = "PG"
	PositionSG Position = "SG"
	PositionSF Position = "SF"
	PositionPF Position = "PF"
	PositionC  Position = "C"

	PositionP      Position = "P"
	PositionFirst  Position = "1B"
	PositionSecond Position = "2B"
	PositionThird  Position = "3B"
	PositionSS     Position = "SS"
	PositionOF     Position = "OF"
	PositionDH     Position = "DH"
)

// SportPositions lists the valid positions per sport.
var SportPositions = map[Sport][]Position{
	SportNFL: {PositionQB, PositionRB, PositionWR, PositionTE, PositionK, PositionDEF},
	SportNBA: {PositionPG, PositionSG, PositionSF, PositionPF, PositionC},
	SportMLB: {PositionP, PositionFirst, PositionSecond, PositionThird, PositionSS, PositionOF, PositionDH},
}

type WeatherImpact string

const (
	WeatherNone     WeatherImpact = "NONE"
	WeatherLow      WeatherImpact = "LOW"
	WeatherModerate WeatherImpact = "MODERATE"
	WeatherHigh     WeatherImpact = "HIGH"
	WeatherSevere   WeatherImpact = "SEVERE"
)

func (w WeatherImpact) Valid() bool {
	switch w {
	case WeatherNone, WeatherLow, WeatherModerate, WeatherHigh, WeatherSevere:
		return true
	default:
		return false
	}
}

type InjuryStatus string

const (
	InjuryActive       InjuryStatus = "ACTIVE"
	InjuryQuestionable InjuryStatus = "QUESTIONABLE"
	InjuryDoubtful     InjuryStatus = "DOUBTFUL"
	InjuryOut          InjuryStatus = "OUT"
	InjuryReserve      InjuryStatus = "IR"
)

// Slot is one roster position. A nil WeatherImpact means unknown.
type Slot struct {
	Position        Position
	PlayerID        string
	Locked          bool
	ProjectedPoints float64
	WeatherImpact   *WeatherImpact
	InjuryStatus    InjuryStatus
	OnBye           bool
}

func (s Slot) Equal(other Slot) bool {
	if s.Position != other.Position ||
		s.PlayerID != other.PlayerID ||
		s.Locked != other.Locked ||
		s.ProjectedPoints != other.ProjectedPoints ||
		s.InjuryStatus != other.InjuryStatus ||
		s.OnBye != other.OnBye {
		return false
	}
	switch {
	case s.WeatherImpact == nil && other.WeatherImpact == nil:
		return true
	case s.WeatherImpact == nil || other.WeatherImpact == nil:
		return false
	default:
		return *s.WeatherImpact == *other.WeatherImpact
	}
}

type ValidationStatus string

const (
	StatusValid    ValidationStatus = "VALID"
	StatusWarnings ValidationStatus = "WARNINGS"
	StatusInvalid  ValidationStatus = "INVALID"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue explains why a lineup is not VALID.
type Issue struct {
	Severity  Severity
	Code      string
	SlotIndex int
	Message   string
}

// Lineup is the roster for one team and scoring period. Slot index i
// addresses Starters[i] when i < len(Starters), Bench[i-len(Starters)]
// otherwise.
type Lineup struct {
	ID                string
	TeamID            string
	ScoringPeriod     int
	Sport             Sport
	Starters          []Slot
	Bench             []Slot
	OptimizationScore float64
	LastUpdated       time.Time
	ValidationStatus  ValidationStatus
	Issues            []Issue
}

func (l Lineup) SlotCount() int {
	return len(l.Starters) + len(l.Bench)
}

func (l Lineup) IsStarter(index int) bool {
	return index >= 0 && index < len(l.Starters)
}

func (l Lineup) SlotAt(index int) (Slot, bool) {
	switch {
	case index < 0:
		return Slot{}, false
	case index < len(l.Starters):
		return l.Starters[index], true
	case index < l.SlotCount():
		return l.Bench[index-len(l.Starters)], true
	default:
		return Slot{}, false
	}
}

// SetSlot writes s at index. It reports false for out-of-range indices.
func (l *Lineup) SetSlot(index int, s Slot) bool {
	switch {
	case index < 0:
		return false
	case index < len(l.Starters):
		l.Starters[index] = s
	case index < l.SlotCount():
		l.Bench[index-len(l.Starters)] = s
	default:
		return false
	}
	return true
}

// Clone returns a deep copy safe to hand to other goroutines.
func (l Lineup) Clone() Lineup {
	out := l
	out.Starters = cloneSlots(l.Starters)
	out.Bench = cloneSlots(l.Bench)
	if l.Issues != nil {
		out.Issues = append([]Issue(nil), l.Issues...)
	}
	return out
}

func cloneSlots(in []Slot) []Slot {
	if in == nil {
		return nil
	}
	out := make([]Slot, len(in))
	for i, s := range in {
		if s.WeatherImpact != nil {
			w := *s.WeatherImpact
			s.WeatherImpact = &w
		}
		out[i] = s
	}
	return out
}

func (l Lineup) ValidateBasic() error {
	if l.TeamID == "" {
		return fmt.Errorf("team id is required")
	}
	if l.ScoringPeriod < MinScoringPeriod || l.ScoringPeriod > MaxScoringPeriod {
		return fmt.Errorf("scoring period must be between %d and %d", MinScoringPeriod, MaxScoringPeriod)
	}
	return nil
}

const (
	MinScoringPeriod = 1
	MaxScoringPeriod = 53
)

type Operation string

const (
	OperationSwap       Operation = "swap"
	OperationBulkUpdate Operation = "bulk-update"
)

// Change is a local edit before it is applied: absolute slot values keyed
// by slot index.
type Change struct {
	Operation Operation
	Slots     map[int]Slot
}

// PendingChange is an optimistic edit awaiting confirmation.
type PendingChange struct {
	TargetLineupID string
	Operation      Operation
	SubmittedAt    time.Time
	RequestID      string
	Slots          map[int]Slot
}

// Delta is a change pushed by the remote source of truth.
type Delta struct {
	LineupID          string
	Slots             map[int]Slot
	OptimizationScore *float64
	Timestamp         time.Time
}
