// Package types holds the data-model shared by the peer registry, the
// scoreboard and the request router: peer identifiers, data-type
// enumeration, advertised ranges and the derived global summary.
package types

import (
	"fmt"

	"github.com/libp2p/go-libp2p-core/peer"
)

// NetworkTier partitions connected peers into the two-level polling
// policy described by the summary poller: priority peers are polled
// every tick, regular peers only stochastically.
type NetworkTier uint8

const (
	// TierPriority identifies closely trusted peers (e.g. validators).
	TierPriority NetworkTier = iota
	// TierRegular identifies everything else.
	TierRegular
)

func (t NetworkTier) String() string {
	switch t {
	case TierPriority:
		return "priority"
	case TierRegular:
		return "regular"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// PeerKey uniquely identifies a connected peer: its network tier plus
// its opaque peer identifier.
type PeerKey struct {
	Tier NetworkTier
	ID   peer.ID
}

func (k PeerKey) String() string {
	return fmt.Sprintf("%s/%s", k.Tier, k.ID.Pretty())
}

// DataType enumerates the verifiable data a peer may advertise and a
// caller may request.
type DataType uint8

const (
	Transactions DataType = iota
	TransactionOutputs
	EpochEndingLedgerInfos
	AccountStates
)

// AllDataTypes lists every DataType, in a stable order used whenever a
// component needs to iterate over the full set.
var AllDataTypes = []DataType{
	Transactions,
	TransactionOutputs,
	EpochEndingLedgerInfos,
	AccountStates,
}

func (d DataType) String() string {
	switch d {
	case Transactions:
		return "transactions"
	case TransactionOutputs:
		return "transaction_outputs"
	case EpochEndingLedgerInfos:
		return "epoch_ending_ledger_infos"
	case AccountStates:
		return "account_states"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(d))
	}
}

// CompleteDataRange is a closed interval [Lowest, Highest] a peer
// self-reports as fully serviceable for one data type.
type CompleteDataRange struct {
	Lowest  uint64
	Highest uint64
}

// Valid reports whether the range is well-formed (Lowest <= Highest).
func (r CompleteDataRange) Valid() bool {
	return r.Lowest <= r.Highest
}

// Includes reports whether the closed interval [lo, hi] lies entirely
// within r.
func (r CompleteDataRange) Includes(lo, hi uint64) bool {
	return r.Valid() && lo <= hi && r.Lowest <= lo && hi <= r.Highest
}

// Union merges two overlapping or adjacent ranges. Callers are
// expected to only union ranges that already overlap or touch; it is
// provided as a small helper for the global summary cache, which only
// ever unions ranges it already knows intersect the accumulator.
func (r CompleteDataRange) Union(o CompleteDataRange) CompleteDataRange {
	lo := r.Lowest
	if o.Lowest < lo {
		lo = o.Lowest
	}
	hi := r.Highest
	if o.Highest > hi {
		hi = o.Highest
	}
	return CompleteDataRange{Lowest: lo, Highest: hi}
}

// Overlaps reports whether r and o share at least one version, or are
// adjacent (touching at the boundary), and so can be merged by Union.
func (r CompleteDataRange) Overlaps(o CompleteDataRange) bool {
	return r.Lowest <= o.Highest+1 && o.Lowest <= r.Highest+1
}

// AdvertisedSummary is a peer's self-reported storage-server summary:
// the highest version it has committed (if any), the complete ranges
// it holds per data type, and the maximum chunk size it is willing to
// serve per data type.
type AdvertisedSummary struct {
	// SyncedLedgerInfoVersion is nil until the peer reports one.
	SyncedLedgerInfoVersion *uint64
	Ranges                  map[DataType]CompleteDataRange
	MaxChunkSizes           map[DataType]uint64
}

// RangeFor returns the advertised range for dt, and whether one was
// advertised at all.
func (s *AdvertisedSummary) RangeFor(dt DataType) (CompleteDataRange, bool) {
	if s == nil || s.Ranges == nil {
		return CompleteDataRange{}, false
	}
	r, ok := s.Ranges[dt]
	return r, ok
}

// Covers reports whether the summary both has a synced ledger info at
// or beyond proofVersion and advertises a range covering [lo, hi] for
// dt.
func (s *AdvertisedSummary) Covers(dt DataType, proofVersion, lo, hi uint64) bool {
	if s == nil || s.SyncedLedgerInfoVersion == nil || *s.SyncedLedgerInfoVersion < proofVersion {
		return false
	}
	r, ok := s.RangeFor(dt)
	return ok && r.Includes(lo, hi)
}

// OptimalChunkSizes is the derived, per-data-type recommended chunk
// size computed from the current set of healthy peer advertisements.
type OptimalChunkSizes map[DataType]uint64
