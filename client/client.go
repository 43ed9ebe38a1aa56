// Package client assembles the peer registry, scoreboard, global
// summary cache and summary poller into the public data-client facade:
// one fetch method per data type, plus the request router's
// score-weighted peer selection and RPC response classification.
package client

import (
	"context"
	"errors"
	"math/rand"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	libp2pnetwork "github.com/libp2p/go-libp2p-core/network"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/aptos-labs/aptos-data-client/client/config"
	dataerrors "github.com/aptos-labs/aptos-data-client/client/errors"
	"github.com/aptos-labs/aptos-data-client/client/network"
	"github.com/aptos-labs/aptos-data-client/client/peers"
	"github.com/aptos-labs/aptos-data-client/client/peers/scorers"
	"github.com/aptos-labs/aptos-data-client/client/poller"
	"github.com/aptos-labs/aptos-data-client/client/summary"
	"github.com/aptos-labs/aptos-data-client/client/types"
)

var log = logrus.WithField("prefix", "client")

// Client implements network.PeerEventSource so a host's real
// peer-manager collaborator can wire connect/disconnect events
// straight into it.
var _ network.PeerEventSource = (*Client)(nil)

// candidate pairs a peer key with the score it was selected under, so
// the weighted-draw helper stays independent of the scoreboard type.
type candidate struct {
	key    types.PeerKey
	weight float64
}

// ResponseCallback lets a caller retroactively penalize the peer that
// served a response, after downstream proof verification rejects it.
// It holds no owning reference to the client's internal maps — only
// the peer key and a pointer to the scoreboard — so dropping it
// without calling NotifyBadResponse is a safe no-op, and it is safe to
// call more than once: only the first call has any effect.
type ResponseCallback struct {
	scorer  *scorers.Scorer
	key     types.PeerKey
	applied atomic.Bool
}

// NotifyBadResponse applies a record_bad_response penalty to the peer
// that served this response, unless one has already been applied
// through this callback.
func (c *ResponseCallback) NotifyBadResponse() {
	if c == nil {
		return
	}
	if c.applied.CompareAndSwap(false, true) {
		c.scorer.RecordBadResponse(c.key)
	}
}

// Response wraps a successfully classified RPC payload together with
// the callback the caller may use to retroactively penalize its
// source peer.
type Response struct {
	Payload   *network.Response
	Callback  *ResponseCallback
	RequestID uuid.UUID
}

// Client is the public data-client facade: the summary poller, the
// peer registry and scoreboard it drives, the derived global summary
// cache, and the request router's public fetch operations.
type Client struct {
	cfg        *config.DataClientConfig
	storageCfg *config.StorageServiceConfig
	clk        clock.Clock

	registry *peers.Status
	scorer   *scorers.Scorer
	cache    *summary.Cache
	poller   *poller.Poller
	net      network.Client
}

// New assembles a Client. Nil cfg/storageCfg fall back to their
// package defaults; a nil clk uses the real wall clock.
func New(cfg *config.DataClientConfig, storageCfg *config.StorageServiceConfig, clk clock.Clock, net network.Client) *Client {
	if cfg == nil {
		cfg = config.DefaultDataClientConfig()
	}
	if storageCfg == nil {
		storageCfg = config.DefaultStorageServiceConfig()
	}
	if clk == nil {
		clk = clock.New()
	}
	registry := peers.NewStatus(cfg, clk)
	scorer := scorers.New(nil)
	return &Client{
		cfg:        cfg,
		storageCfg: storageCfg,
		clk:        clk,
		registry:   registry,
		scorer:     scorer,
		cache:      summary.NewCache(storageCfg),
		poller:     poller.New(cfg, clk, registry, scorer, net),
		net:        net,
	}
}

// Start launches the background summary poller.
func (c *Client) Start(ctx context.Context) { c.poller.Start(ctx) }

// Stop halts the background summary poller.
func (c *Client) Stop() { c.poller.Stop() }

// OnPeerConnected registers a newly connected peer and seeds its
// score. The host's libp2p connection-event handler calls this.
func (c *Client) OnPeerConnected(key types.PeerKey, caps network.CapabilitySet, dir libp2pnetwork.Direction) {
	c.registry.OnConnect(key, caps, dir)
	c.scorer.Track(key)
}

// OnPeerDisconnected removes a peer's registry entry and, if it was
// ignored at disconnect time, notes it in the bounded reconnect-churn
// cache.
func (c *Client) OnPeerDisconnected(key types.PeerKey) {
	score := c.scorer.Score(key)
	c.registry.OnDisconnectWithScore(key, score, c.scorer.Params().IgnoreThreshold)
	c.scorer.Untrack(key)
}

// PollOnce runs a single summary-poll round synchronously, bypassing
// the background ticker. Hosts do not normally need this; it exists
// so tests can drive exact poll rounds against mock time.
func (c *Client) PollOnce(ctx context.Context) { c.poller.Tick(ctx) }

// UpdateSummary is a test back-door that installs a peer's advertised
// summary directly, bypassing the poller. Production hosts never call
// this; tests use it to set up peer state without driving a full poll
// round.
func (c *Client) UpdateSummary(key types.PeerKey, s *types.AdvertisedSummary) error {
	return c.registry.UpdateSummary(key, s)
}

// FetchPeersToPoll exposes the registry's two-tier rotation selection
// directly to the host, independent of the background poller's own
// ticking.
func (c *Client) FetchPeersToPoll() ([]types.PeerKey, error) {
	return c.registry.SelectPeersToPoll()
}

// UpdateGlobalDataSummaryCache recomputes the cached GlobalDataSummary
// from the current registry and scoreboard state. It is never called
// implicitly by a score update; hosts and tests call it at the points
// where they need a consistent view.
func (c *Client) UpdateGlobalDataSummaryCache() {
	c.cache.Rebuild(c.registry, c.scorer)
}

// GetGlobalDataSummary returns the last-computed snapshot.
func (c *Client) GetGlobalDataSummary() *summary.GlobalDataSummary {
	return c.cache.Get()
}

// GetTransactionsWithProof fetches a contiguous range of transactions
// proven relative to proofVersion, from a score-weighted random
// non-ignored peer that advertises sufficient coverage.
func (c *Client) GetTransactionsWithProof(ctx context.Context, proofVersion, startVersion, endVersion uint64, includeEvents bool) (*Response, error) {
	req := network.Request{
		Kind: network.GetTransactionsWithProof,
		Transactions: &network.TransactionsWithProofRequest{
			ProofVersion:  proofVersion,
			StartVersion:  startVersion,
			EndVersion:    endVersion,
			IncludeEvents: includeEvents,
		},
	}
	return c.dispatch(ctx, types.Transactions, proofVersion, startVersion, endVersion, req)
}

// GetTransactionOutputsWithProof fetches a contiguous range of
// transaction outputs proven relative to proofVersion.
func (c *Client) GetTransactionOutputsWithProof(ctx context.Context, proofVersion, startVersion, endVersion uint64) (*Response, error) {
	req := network.Request{
		Kind: network.GetTransactionOutputsWithProof,
		Outputs: &network.TransactionOutputsWithProofRequest{
			ProofVersion: proofVersion,
			StartVersion: startVersion,
			EndVersion:   endVersion,
		},
	}
	return c.dispatch(ctx, types.TransactionOutputs, proofVersion, startVersion, endVersion, req)
}

// GetEpochEndingLedgerInfos fetches epoch-change ledger infos covering
// [startEpoch, endEpoch].
func (c *Client) GetEpochEndingLedgerInfos(ctx context.Context, startEpoch, endEpoch uint64) (*Response, error) {
	req := network.Request{
		Kind: network.GetEpochEndingLedgerInfos,
		EpochEnding: &network.EpochEndingLedgerInfosRequest{
			StartEpoch: startEpoch,
			EndEpoch:   endEpoch,
		},
	}
	// Epoch ranges are not gated behind a proof-version check; pass 0.
	return c.dispatch(ctx, types.EpochEndingLedgerInfos, 0, startEpoch, endEpoch, req)
}

// GetAccountStatesWithProof fetches a chunk of the account state tree
// as of version, covering index range [startIndex, endIndex].
func (c *Client) GetAccountStatesWithProof(ctx context.Context, version, startIndex, endIndex uint64) (*Response, error) {
	req := network.Request{
		Kind: network.GetAccountStatesChunk,
		AccountStates: &network.AccountStatesChunkRequest{
			Version:    version,
			StartIndex: startIndex,
			EndIndex:   endIndex,
		},
	}
	return c.dispatch(ctx, types.AccountStates, version, startIndex, endIndex, req)
}

// dispatch implements the request router pipeline: cache lookup,
// candidate selection, score-weighted draw, RPC dispatch and response
// classification.
func (c *Client) dispatch(ctx context.Context, dt types.DataType, proofVersion, lo, hi uint64, req network.Request) (*Response, error) {
	if !c.GetGlobalDataSummary().Covers(dt, lo, hi) {
		return nil, dataerrors.ErrDataIsUnavailable("no peer advertises a covering range")
	}

	chosen, ok := c.selectCandidate(dt, proofVersion, lo, hi)
	if !ok {
		return nil, dataerrors.ErrDataIsUnavailable("no non-ignored candidate peer available")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.PerRequestTimeout)
	defer cancel()

	resp, err := c.net.SendRPC(reqCtx, chosen.ID, network.ProtocolStorageService, req, c.cfg.PerRequestTimeout)
	if err != nil {
		if ctx.Err() != nil {
			// Host cancelled the fetch; release the slot without
			// penalizing the peer.
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			c.scorer.RecordTimeout(chosen)
			return nil, dataerrors.New(dataerrors.Timeout, "request timed out")
		}
		c.scorer.RecordInternalError(chosen)
		return nil, dataerrors.Wrap(dataerrors.InternalError, err, "remote error")
	}

	if resp == nil || resp.Kind != req.Kind || !resp.MatchesKind() {
		c.scorer.RecordBadResponse(chosen)
		return nil, dataerrors.New(dataerrors.InvalidResponse, "response did not match requested kind")
	}

	c.scorer.RecordSuccess(chosen)
	log.WithFields(logrus.Fields{"peer": chosen.String(), "data_type": dt.String()}).Debug("fetch served")
	return &Response{
		Payload: resp,
		Callback: &ResponseCallback{
			scorer: c.scorer,
			key:    chosen,
		},
		RequestID: uuid.New(),
	}, nil
}

// selectCandidate picks one non-ignored peer advertising sufficient
// coverage for [lo, hi] at proofVersion, via score-weighted random
// choice: cumulative-weight prefix sums plus a single rand.Float64()
// draw, which degrades correctly to a deterministic pick when only one
// candidate exists and to a uniform pick when all weights are equal.
func (c *Client) selectCandidate(dt types.DataType, proofVersion, lo, hi uint64) (types.PeerKey, bool) {
	var candidates []candidate
	for _, tier := range []types.NetworkTier{types.TierPriority, types.TierRegular} {
		for _, entry := range c.registry.PeersOfTier(tier) {
			if c.scorer.IsIgnored(entry.Key) {
				continue
			}
			if entry.Summary == nil || !entry.Summary.Covers(dt, proofVersion, lo, hi) {
				continue
			}
			candidates = append(candidates, candidate{key: entry.Key, weight: c.scorer.Score(entry.Key)})
		}
	}
	if len(candidates) == 0 {
		return types.PeerKey{}, false
	}
	if len(candidates) == 1 {
		return candidates[0].key, true
	}

	total := 0.0
	for _, cand := range candidates {
		total += cand.weight
	}
	if total <= 0 {
		// Every candidate scored zero; fall back to a uniform pick
		// rather than dividing by zero.
		return candidates[rand.Intn(len(candidates))].key, true
	}

	draw := rand.Float64() * total
	cumulative := 0.0
	for _, cand := range candidates {
		cumulative += cand.weight
		if draw <= cumulative {
			return cand.key, true
		}
	}
	return candidates[len(candidates)-1].key, true
}
