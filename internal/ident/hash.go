package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for an algorithm migration.
const (
	DomainPledge = "pledgeflow/pledge/v1"
	DomainPlugin = "pledgeflow/plugin/v1"
	DomainEvent  = "pledgeflow/event/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PledgeTuple is the immutable configuration of a pledge. Amount is not part
// of it: two pledges with the same tuple are the same pledge.
type PledgeTuple struct {
	Owner           uint64
	Chain           []uint64
	IntendedProject uint64
	CommitTime      uint64
	OldPledge       uint64
	State           string
}

// PledgeKey computes the interning key of a pledge configuration.
// The chain is encoded as an ordered array, so [1,2] and [2,1] differ.
func PledgeKey(t PledgeTuple) (string, error) {
	obj := Object{
		"owner":            Int(int64(t.Owner)),
		"delegation_chain": Uints(t.Chain),
		"intended_project": Int(int64(t.IntendedProject)),
		"commit_time":      Int(int64(t.CommitTime)),
		"old_pledge":       Int(int64(t.OldPledge)),
		"state":            Str(t.State),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("PledgeKey: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPledge, canonical), nil
}

// MustPledgeKey is like PledgeKey but panics on error.
// Pledge tuples contain only integers and a state name, so it cannot fail
// for values produced by the ledger.
func MustPledgeKey(t PledgeTuple) string {
	key, err := PledgeKey(t)
	if err != nil {
		panic(err)
	}
	return key
}

// PluginCodeHash identifies plugin code for the plugin allow-list.
// code is whatever stable identity the caller has for the implementation,
// typically its fully qualified Go type name.
func PluginCodeHash(code string) string {
	canonical, err := MarshalCanonical(Object{"code": Str(code)})
	if err != nil {
		// Only invalid UTF-8 can fail here; hash the raw bytes instead.
		return hashWithDomain(DomainPlugin, []byte(code))
	}
	return hashWithDomain(DomainPlugin, canonical)
}

// EventID computes the identity of a journaled ledger event.
// (txID, index) is unique per committed transaction; the remaining fields
// bind the id to the event's content.
func EventID(txID string, index int, kind string, fields Object) (string, error) {
	obj := Object{
		"tx_id":  Str(txID),
		"index":  Int(int64(index)),
		"kind":   Str(kind),
		"fields": fields,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}
