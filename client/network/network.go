// Package network defines the boundary between the data client core
// and its RPC transport / peer-manager collaborators. The core never
// parses wire bytes; it hands a Request to Client.SendRPC and receives
// a Response or an error.
package network

import (
	"context"
	"time"

	libp2pnetwork "github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/protocol"

	"github.com/aptos-labs/aptos-data-client/client/types"
)

// ProtocolStorageService is the capability tag a peer must advertise
// at connection time for the registry to track it.
const ProtocolStorageService protocol.ID = "/aptos/storage-service/1.0.0"

// CapabilitySet is the set of RPC protocols a peer advertises at
// connection time.
type CapabilitySet map[protocol.ID]struct{}

// Supports reports whether id is present in the set.
func (c CapabilitySet) Supports(id protocol.ID) bool {
	_, ok := c[id]
	return ok
}

// NewCapabilitySet builds a CapabilitySet from a protocol ID list.
func NewCapabilitySet(ids ...protocol.ID) CapabilitySet {
	c := make(CapabilitySet, len(ids))
	for _, id := range ids {
		c[id] = struct{}{}
	}
	return c
}

// RPCKind tags which of the five storage-service RPCs a Request/
// Response carries.
type RPCKind uint8

const (
	GetStorageServerSummary RPCKind = iota
	GetTransactionsWithProof
	GetTransactionOutputsWithProof
	GetAccountStatesChunk
	GetEpochEndingLedgerInfos
)

func (k RPCKind) String() string {
	switch k {
	case GetStorageServerSummary:
		return "GetStorageServerSummary"
	case GetTransactionsWithProof:
		return "GetTransactionsWithProof"
	case GetTransactionOutputsWithProof:
		return "GetTransactionOutputsWithProof"
	case GetAccountStatesChunk:
		return "GetAccountStatesChunk"
	case GetEpochEndingLedgerInfos:
		return "GetEpochEndingLedgerInfos"
	default:
		return "Unknown"
	}
}

// TransactionsWithProofRequest asks a peer for a contiguous range of
// transactions, proven relative to proofVersion.
type TransactionsWithProofRequest struct {
	ProofVersion  uint64
	StartVersion  uint64
	EndVersion    uint64
	IncludeEvents bool
}

// TransactionOutputsWithProofRequest asks a peer for a contiguous
// range of transaction outputs.
type TransactionOutputsWithProofRequest struct {
	ProofVersion uint64
	StartVersion uint64
	EndVersion   uint64
}

// EpochEndingLedgerInfosRequest asks a peer for epoch-change ledger
// infos covering [StartEpoch, EndEpoch].
type EpochEndingLedgerInfosRequest struct {
	StartEpoch uint64
	EndEpoch   uint64
}

// AccountStatesChunkRequest asks a peer for a chunk of the account
// state tree as of Version.
type AccountStatesChunkRequest struct {
	Version    uint64
	StartIndex uint64
	EndIndex   uint64
}

// Request is a tagged union over the five storage-service RPCs. Only
// the field matching Kind is populated; the core's dispatch code is
// the only place that knows which.
type Request struct {
	Kind          RPCKind
	Transactions  *TransactionsWithProofRequest
	Outputs       *TransactionOutputsWithProofRequest
	EpochEnding   *EpochEndingLedgerInfosRequest
	AccountStates *AccountStatesChunkRequest
}

// TransactionListWithProof is a contiguous, proven run of
// transactions. The core treats the payload opaquely; proof
// verification is an external collaborator's job.
type TransactionListWithProof struct {
	StartVersion uint64
	Transactions [][]byte
}

// Empty reports whether the list carries no transactions.
func (t *TransactionListWithProof) Empty() bool {
	return t == nil || len(t.Transactions) == 0
}

// TransactionOutputListWithProof is a contiguous, proven run of
// transaction outputs.
type TransactionOutputListWithProof struct {
	StartVersion uint64
	Outputs      [][]byte
}

// Empty reports whether the list carries no outputs.
func (t *TransactionOutputListWithProof) Empty() bool {
	return t == nil || len(t.Outputs) == 0
}

// EpochChangeProof is a proven run of epoch-ending ledger infos.
type EpochChangeProof struct {
	StartEpoch  uint64
	LedgerInfos [][]byte
}

// Empty reports whether the proof carries no ledger infos.
func (e *EpochChangeProof) Empty() bool {
	return e == nil || len(e.LedgerInfos) == 0
}

// AccountStatesChunkWithProof is a proven chunk of the account state
// tree.
type AccountStatesChunkWithProof struct {
	StartIndex uint64
	Accounts   [][]byte
}

// Empty reports whether the chunk carries no accounts.
func (a *AccountStatesChunkWithProof) Empty() bool {
	return a == nil || len(a.Accounts) == 0
}

// Response is a tagged union over the five storage-service RPC
// responses, plus the advertised summary a peer self-reports.
//
// Exactly one field should be populated for a well-formed response.
// The router's classification step treats a response whose field for
// its Kind is nil (wrong field populated, or none at all) as
// InvalidResponse; additional populated fields are not checked.
type Response struct {
	Kind          RPCKind
	Summary       *types.AdvertisedSummary
	Transactions  *TransactionListWithProof
	Outputs       *TransactionOutputListWithProof
	EpochChanges  *EpochChangeProof
	AccountStates *AccountStatesChunkWithProof
}

// MatchesKind reports whether the populated field actually agrees with
// Kind — the heart of the "Ok(wrong variant)" classification case the
// router's dispatch pipeline checks for.
func (r *Response) MatchesKind() bool {
	if r == nil {
		return false
	}
	switch r.Kind {
	case GetStorageServerSummary:
		return r.Summary != nil
	case GetTransactionsWithProof:
		return r.Transactions != nil
	case GetTransactionOutputsWithProof:
		return r.Outputs != nil
	case GetEpochEndingLedgerInfos:
		return r.EpochChanges != nil
	case GetAccountStatesChunk:
		return r.AccountStates != nil
	default:
		return false
	}
}

// PeerEventSource is the peer-manager collaborator: the host's real
// connection manager pushes connect/disconnect events through it. The
// registry only subscribes to these; it never initiates a connection
// itself or performs peer discovery.
type PeerEventSource interface {
	OnPeerConnected(key types.PeerKey, caps CapabilitySet, dir libp2pnetwork.Direction)
	OnPeerDisconnected(key types.PeerKey)
}

// Client is the RPC transport collaborator. Implementations do not
// parse wire bytes themselves from the core's point of view: they
// accept a typed Request and must return a typed Response or an
// error/timeout. A production implementation sits on top of a libp2p
// stream + codec; tests use the in-memory mock in mock.go.
type Client interface {
	SendRPC(ctx context.Context, p peer.ID, protocolID protocol.ID, req Request, timeout time.Duration) (*Response, error)
}
