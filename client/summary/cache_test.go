package summary_test

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nettypes "github.com/aptos-labs/aptos-data-client/client/network"
	"github.com/aptos-labs/aptos-data-client/client/peers"
	"github.com/aptos-labs/aptos-data-client/client/peers/scorers"
	"github.com/aptos-labs/aptos-data-client/client/summary"
	"github.com/aptos-labs/aptos-data-client/client/types"
)

func connectWithSummary(t *testing.T, registry *peers.Status, scorer *scorers.Scorer, id string, lo, hi uint64) types.PeerKey {
	t.Helper()
	k := types.PeerKey{Tier: types.TierPriority, ID: peer.ID(id)}
	registry.OnConnect(k, nettypes.NewCapabilitySet(nettypes.ProtocolStorageService), network.DirInbound)
	scorer.Track(k)
	err := registry.UpdateSummary(k, &types.AdvertisedSummary{
		Ranges: map[types.DataType]types.CompleteDataRange{
			types.Transactions: {Lowest: lo, Highest: hi},
		},
		MaxChunkSizes: map[types.DataType]uint64{types.Transactions: 500},
	})
	require.NoError(t, err)
	return k
}

func TestCache_Rebuild_UnionsNonIgnoredPeers(t *testing.T) {
	registry := peers.NewStatus(nil, clock.NewMock())
	scorer := scorers.New(nil)
	connectWithSummary(t, registry, scorer, "p1", 0, 100)
	connectWithSummary(t, registry, scorer, "p2", 101, 200)

	cache := summary.NewCache(nil)
	cache.Rebuild(registry, scorer)

	r, ok := cache.Get().RangeFor(types.Transactions)
	require.True(t, ok)
	assert.Equal(t, types.CompleteDataRange{Lowest: 0, Highest: 200}, r)
}

func TestCache_Rebuild_ExcludesIgnoredPeer(t *testing.T) {
	registry := peers.NewStatus(nil, clock.NewMock())
	scorer := scorers.New(nil)
	good := connectWithSummary(t, registry, scorer, "good", 0, 100)
	bad := connectWithSummary(t, registry, scorer, "bad", 101, 200)

	for i := 0; i < 20; i++ {
		scorer.RecordBadResponse(bad)
	}
	require.True(t, scorer.IsIgnored(bad))

	cache := summary.NewCache(nil)
	cache.Rebuild(registry, scorer)

	r, ok := cache.Get().RangeFor(types.Transactions)
	require.True(t, ok)
	assert.Equal(t, types.CompleteDataRange{Lowest: 0, Highest: 100}, r)
	_ = good
}

func TestCache_Rebuild_ReflectsScoreChangeOnlyAfterExplicitCall(t *testing.T) {
	registry := peers.NewStatus(nil, clock.NewMock())
	scorer := scorers.New(nil)
	bad := connectWithSummary(t, registry, scorer, "p1", 0, 100)

	cache := summary.NewCache(nil)
	cache.Rebuild(registry, scorer)
	_, ok := cache.Get().RangeFor(types.Transactions)
	require.True(t, ok)

	for i := 0; i < 20; i++ {
		scorer.RecordBadResponse(bad)
	}
	// Score crossed the ignore threshold, but the cache only reflects
	// that once Rebuild is called again.
	_, ok = cache.Get().RangeFor(types.Transactions)
	assert.True(t, ok)

	cache.Rebuild(registry, scorer)
	_, ok = cache.Get().RangeFor(types.Transactions)
	assert.False(t, ok)
}

func TestCache_Rebuild_AdvertisingPeerCounts(t *testing.T) {
	registry := peers.NewStatus(nil, clock.NewMock())
	scorer := scorers.New(nil)
	connectWithSummary(t, registry, scorer, "p1", 0, 100)
	connectWithSummary(t, registry, scorer, "p2", 101, 200)

	cache := summary.NewCache(nil)
	cache.Rebuild(registry, scorer)

	counts := cache.Get().AdvertisingPeerCounts()
	assert.Equal(t, 2, counts[types.Transactions])
}
