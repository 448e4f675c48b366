package optimization

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidParams = errors.New("invalid optimization params")

// Normalize fills defaults and trims identifiers.
func (p Params) Normalize() Params {
	p.TeamID = strings.TrimSpace(p.TeamID)
	if p.Kind == "" {
		p.Kind = KindLineup
	}
	if p.Simulations == 0 {
		p.Simulations = DefaultSimulations
	}
	if p.Kind != KindTrade {
		p.Trade = nil
	}
	if p.Trade != nil {
		trade := *p.Trade
		trade.CounterpartyTeamID = strings.TrimSpace(trade.CounterpartyTeamID)
		trade.OfferedPlayerIDs = trimAll(trade.OfferedPlayerIDs)
		trade.RequestedPlayerIDs = trimAll(trade.RequestedPlayerIDs)
		p.Trade = &trade
	}
	return p
}

// CheckTrade enforces the cross-field trade rules struct tags cannot express.
func (p Params) CheckTrade() error {
	if p.Kind != KindTrade || p.Trade == nil {
		return nil
	}
	offered := make(map[string]struct{}, len(p.Trade.OfferedPlayerIDs))
	for _, id := range p.Trade.OfferedPlayerIDs {
		offered[id] = struct{}{}
	}
	for _, id := range p.Trade.RequestedPlayerIDs {
		if _, ok := offered[id]; ok {
			return fmt.Errorf("%w: player %s is both offered and requested", ErrInvalidParams, id)
		}
	}
	if p.Trade.CounterpartyTeamID == p.TeamID {
		return fmt.Errorf("%w: counterparty must be another team", ErrInvalidParams)
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
