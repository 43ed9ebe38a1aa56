// Package peers implements the peer registry: the set of connected
// peers per network tier, their latest advertised summary, and the
// two-tier summary-poll selection policy.
package peers

import (
	"math/rand"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/ristretto"
	"github.com/libp2p/go-libp2p-core/network"
	"github.com/paulbellamy/ratecounter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/aptos-labs/aptos-data-client/client/config"
	nettypes "github.com/aptos-labs/aptos-data-client/client/network"
	"github.com/aptos-labs/aptos-data-client/client/peers/peerdata"
	"github.com/aptos-labs/aptos-data-client/client/types"
)

var log = logrus.WithField("prefix", "peers")

// ErrPeerUnknown is returned when an operation references a peer the
// registry has no entry for.
var ErrPeerUnknown = errors.New("peer unknown")

// ErrDataIsUnavailable is returned by SelectPeersToPoll when no peer
// at all is connected.
var ErrDataIsUnavailable = errors.New("no connected peers to poll")

// pollRateWindow bounds the ratecounter's sliding window used for the
// diagnostic PeerEntry.PollRate.
const pollRateWindow = 1 * time.Minute

// badPeerCacheTTL is how long a disconnected peer that was ignored at
// disconnect time is remembered, bounding reconnection-churn bookkeeping
// without growing unboundedly.
const badPeerCacheTTL = 1 * time.Hour

// PeerEntry is the registry's per-peer record. Only the poller mutates
// Summary and LastPolled; it is otherwise read-only to callers once
// returned from the registry.
type PeerEntry struct {
	Key          types.PeerKey
	Capabilities nettypes.CapabilitySet
	Summary      *types.AdvertisedSummary
	LastPolled   *time.Time
	Direction    network.Direction
	ConnectedAt  time.Time
	PollRate     *ratecounter.RateCounter
}

// clone returns a shallow copy, used so registry mutations always
// install a fresh value rather than mutating a struct a caller might
// be concurrently reading.
func (e *PeerEntry) clone() *PeerEntry {
	c := *e
	return &c
}

// Status is the peer registry. The underlying peerdata.Store supplies
// the single mutex guarding both the entry map and the per-tier
// insertion-order slices below; no method blocks while holding it.
type Status struct {
	cfg *config.DataClientConfig
	clk clock.Clock

	store *peerdata.Store[types.PeerKey, *PeerEntry]
	order map[types.NetworkTier][]types.PeerKey

	badPeerCache *ristretto.Cache
}

// NewStatus builds an empty registry. A nil cfg uses
// config.DefaultDataClientConfig(); a nil clk uses the real wall clock.
func NewStatus(cfg *config.DataClientConfig, clk clock.Clock) *Status {
	if cfg == nil {
		cfg = config.DefaultDataClientConfig()
	}
	if clk == nil {
		clk = clock.New()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1e3,
		BufferItems: 64,
	})
	if err != nil {
		// ristretto.NewCache only fails on invalid static config; this
		// is a programmer error, not a runtime condition to propagate.
		log.WithError(err).Error("failed to build bad-peer admission cache, disabling it")
		cache = nil
	}
	return &Status{
		cfg:   cfg,
		clk:   clk,
		store: peerdata.NewStore[types.PeerKey, *PeerEntry](),
		order: map[types.NetworkTier][]types.PeerKey{
			types.TierPriority: {},
			types.TierRegular:  {},
		},
		badPeerCache: cache,
	}
}

// OnConnect inserts a new peer, or — idempotently — replaces the
// capability set of an existing one. Peers whose capability set does
// not advertise the storage-service protocol are not tracked at all.
func (s *Status) OnConnect(key types.PeerKey, caps nettypes.CapabilitySet, dir network.Direction) {
	if !caps.Supports(nettypes.ProtocolStorageService) {
		log.WithField("peer", key.String()).Debug("ignoring peer without storage-service capability")
		return
	}
	s.store.Lock()
	defer s.store.Unlock()

	if existing, ok := s.store.GetLocked(key); ok {
		updated := existing.clone()
		updated.Capabilities = caps
		updated.Direction = dir
		s.store.SetLocked(key, updated)
		return
	}

	entry := &PeerEntry{
		Key:          key,
		Capabilities: caps,
		Direction:    dir,
		ConnectedAt:  s.clk.Now(),
		PollRate:     ratecounter.NewRateCounter(pollRateWindow),
	}
	s.store.SetLocked(key, entry)
	s.order[key.Tier] = append(s.order[key.Tier], key)
	log.WithField("peer", key.String()).Debug("peer connected")
}

// OnDisconnect removes key's entry. Calling it for an unknown peer is
// a no-op.
func (s *Status) OnDisconnect(key types.PeerKey) {
	s.store.Lock()
	defer s.store.Unlock()
	s.removeLocked(key)
	log.WithField("peer", key.String()).Debug("peer disconnected")
}

// OnDisconnectWithScore is OnDisconnect, additionally noting key in
// the bounded bad-peer admission cache if score was below
// ignoreThreshold at disconnect time, so a flapping bad peer does not
// get a clean slate from a quick reconnect churn.
func (s *Status) OnDisconnectWithScore(key types.PeerKey, score, ignoreThreshold float64) {
	s.store.Lock()
	s.removeLocked(key)
	s.store.Unlock()
	if score < ignoreThreshold && s.badPeerCache != nil {
		s.badPeerCache.SetWithTTL(key.String(), true, 1, badPeerCacheTTL)
	}
}

// RecentlyMisbehaved reports whether key recently disconnected while
// ignored, per OnDisconnectWithScore. Purely a diagnostic signal: the
// registry never refuses a connection.
func (s *Status) RecentlyMisbehaved(key types.PeerKey) bool {
	if s.badPeerCache == nil {
		return false
	}
	_, found := s.badPeerCache.Get(key.String())
	return found
}

func (s *Status) removeLocked(key types.PeerKey) {
	s.store.DeleteLocked(key)
	order := s.order[key.Tier]
	for i, k := range order {
		if k == key {
			s.order[key.Tier] = append(order[:i], order[i+1:]...)
			break
		}
	}
}

// UpdateSummary sets the latest advertised summary for key. Only the
// poller calls this in production use.
func (s *Status) UpdateSummary(key types.PeerKey, summary *types.AdvertisedSummary) error {
	s.store.Lock()
	defer s.store.Unlock()
	existing, ok := s.store.GetLocked(key)
	if !ok {
		return ErrPeerUnknown
	}
	updated := existing.clone()
	updated.Summary = summary
	s.store.SetLocked(key, updated)
	return nil
}

// Entry returns a snapshot of key's entry, if connected.
func (s *Status) Entry(key types.PeerKey) (*PeerEntry, bool) {
	return s.store.Get(key)
}

// PeersOfTier returns a snapshot of every connected peer entry in the
// given tier, in insertion order.
func (s *Status) PeersOfTier(tier types.NetworkTier) []*PeerEntry {
	s.store.RLock()
	defer s.store.RUnlock()
	order := s.order[tier]
	out := make([]*PeerEntry, 0, len(order))
	for _, k := range order {
		if e, ok := s.store.GetLocked(k); ok {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many peers are connected in the given tier.
func (s *Status) Count(tier types.NetworkTier) int {
	s.store.RLock()
	defer s.store.RUnlock()
	return len(s.order[tier])
}

// All returns every connected peer key across both tiers.
func (s *Status) All() []types.PeerKey {
	return s.store.Keys()
}

// SelectPeersToPoll implements the two-tier rotation policy: up to
// PriorityPollFanout priority peers every call, plus — independently,
// with probability RegularPollProbability — up to RegularPollFanout
// regular peers. Within a tier, never-polled peers are preferred (in
// insertion order), then the least-recently-polled peer. Selected
// peers have LastPolled set to now.
func (s *Status) SelectPeersToPoll() ([]types.PeerKey, error) {
	s.store.Lock()
	defer s.store.Unlock()

	nPriority := len(s.order[types.TierPriority])
	nRegular := len(s.order[types.TierRegular])
	if nPriority == 0 && nRegular == 0 {
		return nil, ErrDataIsUnavailable
	}

	now := s.clk.Now()
	selected := s.selectFromTierLocked(types.TierPriority, s.cfg.PriorityPollFanout, now)

	if nRegular > 0 && rand.Float64() < s.cfg.RegularPollProbability {
		selected = append(selected, s.selectFromTierLocked(types.TierRegular, s.cfg.RegularPollFanout, now)...)
	}
	return selected, nil
}

// selectFromTierLocked applies the rotation rule within a single tier.
// Caller must hold s.store's write lock.
func (s *Status) selectFromTierLocked(tier types.NetworkTier, fanout int, now time.Time) []types.PeerKey {
	if fanout <= 0 {
		return nil
	}
	order := s.order[tier]
	if len(order) == 0 {
		return nil
	}

	var neverPolled, polled []types.PeerKey
	for _, k := range order {
		entry, ok := s.store.GetLocked(k)
		if !ok {
			continue
		}
		if entry.LastPolled == nil {
			neverPolled = append(neverPolled, k)
		} else {
			polled = append(polled, k)
		}
	}
	sort.Slice(polled, func(i, j int) bool {
		ei, _ := s.store.GetLocked(polled[i])
		ej, _ := s.store.GetLocked(polled[j])
		return ei.LastPolled.Before(*ej.LastPolled)
	})

	ranked := append(neverPolled, polled...)
	if fanout < len(ranked) {
		ranked = ranked[:fanout]
	}

	for _, k := range ranked {
		entry, ok := s.store.GetLocked(k)
		if !ok {
			continue
		}
		updated := entry.clone()
		t := now
		updated.LastPolled = &t
		if updated.PollRate != nil {
			updated.PollRate.Incr(1)
		}
		s.store.SetLocked(k, updated)
	}
	return ranked
}
