package lineup

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSwap     = errors.New("invalid swap")
	ErrInvalidUpdate   = errors.New("invalid slot update")
	ErrTooManyChanges  = errors.New("too many slot changes")
	ErrUnknownPosition = errors.New("unknown position")
)

// MaxLineupChanges bounds a single bulk update.
const MaxLineupChanges = 10

// Rules stores roster constraints for one sport.
type Rules struct {
	Sport             Sport
	RequiredPositions []Position
	FlexPositions     map[Position]struct{}
	MaxStarters       int
	MaxBench          int
}

func DefaultRules(sport Sport) Rules {
	switch sport {
	case SportNBA:
		return Rules{
			Sport:             SportNBA,
			RequiredPositions: SportPositions[SportNBA],
			FlexPositions:     map[Position]struct{}{},
			MaxStarters:       5,
			MaxBench:          5,
		}
	case SportMLB:
		return Rules{
			Sport:             SportMLB,
			RequiredPositions: SportPositions[SportMLB],
			FlexPositions:     map[Position]struct{}{},
			MaxStarters:       9,
			MaxBench:          5,
		}
	default:
		return Rules{
			Sport:             SportNFL,
			RequiredPositions: SportPositions[SportNFL],
			FlexPositions: map[Position]struct{}{
				PositionRB: {},
				PositionWR: {},
				PositionTE: {},
			},
			MaxStarters: 9,
			MaxBench:    7,
		}
	}
}

// WithFlex replaces the flexible-position set.
func (r Rules) WithFlex(positions ...Position) Rules {
	r.FlexPositions = make(map[Position]struct{}, len(positions))
	for _, p := range positions {
		r.FlexPositions[p] = struct{}{}
	}
	return r
}

func (r Rules) IsFlexible(p Position) bool {
	_, ok := r.FlexPositions[p]
	return ok
}

func (r Rules) KnowsPosition(p Position) bool {
	for _, known := range SportPositions[r.Sport] {
		if known == p {
			return true
		}
	}
	return false
}

// CheckSwap is the single rule for moving players between two slots:
// both indices in range, neither slot locked, and positions identical or
// both flexible.
func CheckSwap(l Lineup, src, dst int, rules Rules) error {
	if src == dst {
		return fmt.Errorf("%w: source and target are the same slot %d", ErrInvalidSwap, src)
	}
	from, ok := l.SlotAt(src)
	if !ok {
		return fmt.Errorf("%w: source index %d out of range", ErrInvalidSwap, src)
	}
	to, ok := l.SlotAt(dst)
	if !ok {
		return fmt.Errorf("%w: target index %d out of range", ErrInvalidSwap, dst)
	}
	if from.Locked || to.Locked {
		return fmt.Errorf("%w: slot %d or %d is locked", ErrInvalidSwap, src, dst)
	}
	if from.Position == to.Position {
		return nil
	}
	if rules.IsFlexible(from.Position) && rules.IsFlexible(to.Position) {
		return nil
	}
	return fmt.Errorf("%w: %s and %s are not interchangeable", ErrInvalidSwap, from.Position, to.Position)
}

// SwapChange builds the change that exchanges two slots. Call CheckSwap first.
func SwapChange(l Lineup, src, dst int) Change {
	from, _ := l.SlotAt(src)
	to, _ := l.SlotAt(dst)
	return Change{
		Operation: OperationSwap,
		Slots: map[int]Slot{
			src: to,
			dst: from,
		},
	}
}

// CheckSlotUpdates validates a bulk update against ranges, locks and the
// sport's positions.
func CheckSlotUpdates(l Lineup, updates map[int]Slot, rules Rules) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: no slots given", ErrInvalidUpdate)
	}
	if len(updates) > MaxLineupChanges {
		return fmt.Errorf("%w: %d slots, max %d", ErrTooManyChanges, len(updates), MaxLineupChanges)
	}

	for index, next := range updates {
		current, ok := l.SlotAt(index)
		if !ok {
			return fmt.Errorf("%w: index %d out of range", ErrInvalidUpdate, index)
		}
		if current.Locked {
			return fmt.Errorf("%w: slot %d is locked", ErrInvalidUpdate, index)
		}
		if next.Locked {
			return fmt.Errorf("%w: slot %d cannot be locked by a client edit", ErrInvalidUpdate, index)
		}
		if next.WeatherImpact != nil && !next.WeatherImpact.Valid() {
			return fmt.Errorf("%w: slot %d weather impact %q", ErrInvalidUpdate, index, *next.WeatherImpact)
		}
		if rules.Sport != "" && !rules.KnowsPosition(next.Position) {
			return fmt.Errorf("%w: %s for %s", ErrUnknownPosition, next.Position, rules.Sport)
		}
	}
	return nil
}

// Validate computes the validation status of l. Errors make it INVALID,
// warnings alone make it WARNINGS.
func Validate(l Lineup, rules Rules) (ValidationStatus, []Issue) {
	issues := make([]Issue, 0)

	if rules.MaxStarters > 0 && len(l.Starters) > rules.MaxStarters {
		issues = append(issues, Issue{
			Severity:  SeverityError,
			Code:      "too_many_starters",
			SlotIndex: -1,
			Message:   fmt.Sprintf("%d starters, max %d", len(l.Starters), rules.MaxStarters),
		})
	}
	if rules.MaxBench > 0 && len(l.Bench) > rules.MaxBench {
		issues = append(issues, Issue{
			Severity:  SeverityError,
			Code:      "too_many_bench",
			SlotIndex: -1,
			Message:   fmt.Sprintf("%d bench players, max %d", len(l.Bench), rules.MaxBench),
		})
	}

	filled := make(map[Position]int)
	seen := make(map[string]int)
	for i := 0; i < l.SlotCount(); i++ {
		s, _ := l.SlotAt(i)
		if s.PlayerID == "" {
			continue
		}
		if first, dup := seen[s.PlayerID]; dup {
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Code:      "duplicate_player",
				SlotIndex: i,
				Message:   fmt.Sprintf("player %s already in slot %d", s.PlayerID, first),
			})
			continue
		}
		seen[s.PlayerID] = i

		if !l.IsStarter(i) {
			continue
		}
		filled[s.Position]++

		switch s.InjuryStatus {
		case InjuryOut, InjuryReserve:
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Code:      "inactive_starter",
				SlotIndex: i,
				Message:   fmt.Sprintf("starter %s is %s", s.PlayerID, s.InjuryStatus),
			})
		case InjuryQuestionable, InjuryDoubtful:
			issues = append(issues, Issue{
				Severity:  SeverityWarning,
				Code:      "injury_risk",
				SlotIndex: i,
				Message:   fmt.Sprintf("starter %s is %s", s.PlayerID, s.InjuryStatus),
			})
		}
		if s.OnBye {
			issues = append(issues, Issue{
				Severity:  SeverityWarning,
				Code:      "bye_week",
				SlotIndex: i,
				Message:   fmt.Sprintf("starter %s is on bye", s.PlayerID),
			})
		}
		if s.WeatherImpact != nil && *s.WeatherImpact == WeatherSevere {
			issues = append(issues, Issue{
				Severity:  SeverityWarning,
				Code:      "severe_weather",
				SlotIndex: i,
				Message:   fmt.Sprintf("starter %s faces severe weather", s.PlayerID),
			})
		}
	}

	for _, pos := range rules.RequiredPositions {
		if filled[pos] == 0 {
			issues = append(issues, Issue{
				Severity:  SeverityError,
				Code:      "missing_position",
				SlotIndex: -1,
				Message:   fmt.Sprintf("no starter assigned at %s", pos),
			})
		}
	}

	status := StatusValid
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			return StatusInvalid, issues
		}
		status = StatusWarnings
	}
	return status, issues
}

// Revalidate stores the computed status and issues on l.
func Revalidate(l *Lineup, rules Rules) {
	l.ValidationStatus, l.Issues = Validate(*l, rules)
}
