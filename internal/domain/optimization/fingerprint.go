package optimization

import (
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/bytedance/sonic"
	"github.com/zeebo/blake3"
)

const FingerprintPrefix = "opt:"

var canonicalJSON = sonic.Config{SortMapKeys: true}.Froze()

// Fingerprint derives the cache key of p. Trade player lists are sorted
// first so permutations of the same trade share a key.
func Fingerprint(p Params) (string, error) {
	if p.Trade != nil {
		trade := *p.Trade
		trade.OfferedPlayerIDs = slices.Sorted(slices.Values(trade.OfferedPlayerIDs))
		trade.RequestedPlayerIDs = slices.Sorted(slices.Values(trade.RequestedPlayerIDs))
		p.Trade = &trade
	}

	payload, err := canonicalJSON.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	sum := blake3.Sum256(payload)
	return FingerprintPrefix + hex.EncodeToString(sum[:]), nil
}
