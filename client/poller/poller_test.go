package poller_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aptos-labs/aptos-data-client/client/config"
	nettypes "github.com/aptos-labs/aptos-data-client/client/network"
	"github.com/aptos-labs/aptos-data-client/client/peers"
	"github.com/aptos-labs/aptos-data-client/client/peers/scorers"
	"github.com/aptos-labs/aptos-data-client/client/poller"
	"github.com/aptos-labs/aptos-data-client/client/types"
)

func setup(t *testing.T) (*peers.Status, *scorers.Scorer, *nettypes.MockClient, clock.Clock, types.PeerKey) {
	t.Helper()
	clk := clock.NewMock()
	registry := peers.NewStatus(nil, clk)
	scorer := scorers.New(nil)
	mock := nettypes.NewMockClient()

	key := types.PeerKey{Tier: types.TierPriority, ID: peer.ID("p1")}
	registry.OnConnect(key, nettypes.NewCapabilitySet(nettypes.ProtocolStorageService), network.DirInbound)
	scorer.Track(key)
	return registry, scorer, mock, clk, key
}

func TestPoller_Tick_SuccessUpdatesSummaryAndScore(t *testing.T) {
	registry, scorer, mock, clk, key := setup(t)
	version := uint64(42)
	mock.SetResponder(key.ID, func(ctx context.Context, req nettypes.Request) (*nettypes.Response, error) {
		return &nettypes.Response{
			Kind: nettypes.GetStorageServerSummary,
			Summary: &types.AdvertisedSummary{
				SyncedLedgerInfoVersion: &version,
			},
		}, nil
	})

	p := poller.New(config.DefaultDataClientConfig(), clk, registry, scorer, mock)
	p.Tick(context.Background())

	entry, ok := registry.Entry(key)
	require.True(t, ok)
	require.NotNil(t, entry.Summary)
	assert.Equal(t, version, *entry.Summary.SyncedLedgerInfoVersion)
	assert.Greater(t, scorer.Score(key), scorers.DefaultStartingScore-1)
}

func TestPoller_Tick_TimeoutPenalizesPeer(t *testing.T) {
	registry, scorer, mock, clk, key := setup(t)
	mock.SetResponder(key.ID, func(ctx context.Context, req nettypes.Request) (*nettypes.Response, error) {
		return nil, nettypes.ErrSimulatedTimeout
	})

	p := poller.New(config.DefaultDataClientConfig(), clk, registry, scorer, mock)
	p.Tick(context.Background())

	assert.Equal(t, scorers.DefaultStartingScore-scorers.DefaultBadEventPenalty, scorer.Score(key))
}

func TestPoller_Tick_WrongVariantPenalizesPeer(t *testing.T) {
	registry, scorer, mock, clk, key := setup(t)
	mock.SetResponder(key.ID, func(ctx context.Context, req nettypes.Request) (*nettypes.Response, error) {
		return &nettypes.Response{Kind: nettypes.GetStorageServerSummary, Transactions: &nettypes.TransactionListWithProof{}}, nil
	})

	p := poller.New(config.DefaultDataClientConfig(), clk, registry, scorer, mock)
	p.Tick(context.Background())

	assert.Equal(t, scorers.DefaultStartingScore-scorers.DefaultBadEventPenalty, scorer.Score(key))
}

func TestPoller_StartStop(t *testing.T) {
	registry, scorer, mock, clk, key := setup(t)
	mockClk := clk.(*clock.Mock)
	calls := 0
	mock.SetResponder(key.ID, func(ctx context.Context, req nettypes.Request) (*nettypes.Response, error) {
		calls++
		return &nettypes.Response{Kind: nettypes.GetStorageServerSummary, Summary: &types.AdvertisedSummary{}}, nil
	})

	cfg := config.DefaultDataClientConfig()
	cfg.SummaryPollInterval = time.Second
	p := poller.New(cfg, clk, registry, scorer, mock)
	p.Start(context.Background())
	defer p.Stop()

	mockClk.Add(time.Second)
	// allow the background goroutine to observe the tick
	time.Sleep(10 * time.Millisecond)
	assert.GreaterOrEqual(t, calls, 1)
}
