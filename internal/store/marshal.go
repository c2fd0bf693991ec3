package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/roach88/pledgeflow/internal/ident"
	"github.com/roach88/pledgeflow/internal/pledge"
)

// marshalChain converts a delegation chain to canonical JSON TEXT.
// An empty chain is "[]".
func marshalChain(chain []pledge.AdminID) (string, error) {
	ids := make([]uint64, len(chain))
	for i, id := range chain {
		ids[i] = uint64(id)
	}
	data, err := ident.MarshalCanonical(ident.Uints(ids))
	if err != nil {
		return "", fmt.Errorf("marshal chain: %w", err)
	}
	return string(data), nil
}

// unmarshalChain parses a delegation chain. Uses json.Number so ids above
// 2^53 survive. An empty chain comes back nil.
func unmarshalChain(data string) ([]pledge.AdminID, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var raw []json.Number
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal chain %q: %w", data, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	chain := make([]pledge.AdminID, len(raw))
	for i, n := range raw {
		id, err := strconv.ParseUint(n.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unmarshal chain %q: %w", data, err)
		}
		chain[i] = pledge.AdminID(id)
	}
	return chain, nil
}

// formatUint stores a uint64 as decimal TEXT.
func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}

// parseUint reads a uint64 stored by formatUint.
func parseUint(column, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", column, s, err)
	}
	return v, nil
}

// eventID computes the journal identity of the idx-th event of a commit.
func eventID(txID string, idx int, ev pledge.Event) (string, error) {
	return ident.EventID(txID, idx, string(ev.Kind), ident.Object{
		"from":    ident.Int(int64(ev.From)),
		"to":      ident.Int(int64(ev.To)),
		"amount":  ident.Str(formatUint(ev.Amount)),
		"project": ident.Int(int64(ev.Project)),
	})
}
