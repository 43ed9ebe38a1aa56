package summary

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/aptos-labs/aptos-data-client/client/config"
	"github.com/aptos-labs/aptos-data-client/client/peers"
	"github.com/aptos-labs/aptos-data-client/client/peers/scorers"
	"github.com/aptos-labs/aptos-data-client/client/types"
)

var log = logrus.WithField("prefix", "summary")

// GlobalDataSummary is the derived, process-wide view of what data the
// network can currently serve: the union of advertised ranges across
// every non-ignored peer, plus the optimal chunk sizes computed from
// their advertised caps.
type GlobalDataSummary struct {
	Ranges            map[types.DataType]types.CompleteDataRange
	OptimalChunkSizes types.OptimalChunkSizes

	// advertisingPeerCounts is not part of routing decisions — only
	// logged — so it is unexported and populated solely by Rebuild.
	advertisingPeerCounts map[types.DataType]int
}

// AdvertisingPeerCounts returns, per data type, how many non-ignored
// peers contributed to the last rebuild. Used for logging only; never
// consulted by candidate selection.
func (g *GlobalDataSummary) AdvertisingPeerCounts() map[types.DataType]int {
	if g == nil {
		return nil
	}
	return g.advertisingPeerCounts
}

// RangeFor returns the unioned advertised range for dt, if any peer
// advertised one.
func (g *GlobalDataSummary) RangeFor(dt types.DataType) (types.CompleteDataRange, bool) {
	if g == nil || g.Ranges == nil {
		return types.CompleteDataRange{}, false
	}
	r, ok := g.Ranges[dt]
	return r, ok
}

// Covers reports whether the global summary's unioned range for dt
// contains [lo, hi].
func (g *GlobalDataSummary) Covers(dt types.DataType, lo, hi uint64) bool {
	r, ok := g.RangeFor(dt)
	return ok && r.Includes(lo, hi)
}

// Cache holds the current GlobalDataSummary behind a read-mostly lock.
// Rebuild recomputes it from the registry and scoreboard; Get returns
// the last-built snapshot without blocking on a rebuild.
type Cache struct {
	storageCfg *config.StorageServiceConfig

	mu      sync.RWMutex
	current *GlobalDataSummary
}

// NewCache builds an empty Cache. A nil storageCfg uses
// config.DefaultStorageServiceConfig().
func NewCache(storageCfg *config.StorageServiceConfig) *Cache {
	if storageCfg == nil {
		storageCfg = config.DefaultStorageServiceConfig()
	}
	return &Cache{
		storageCfg: storageCfg,
		current:    &GlobalDataSummary{Ranges: map[types.DataType]types.CompleteDataRange{}},
	}
}

// Get returns the current snapshot. Never nil.
func (c *Cache) Get() *GlobalDataSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Rebuild recomputes the summary from every connected, non-ignored
// peer's latest advertisement. An ignored peer's advertised ranges are
// excluded entirely until it is readmitted. Each data type keeps a
// single contiguous range: peers are visited priority tier first, each
// tier in connection order, and a range that neither overlaps nor
// touches the range accumulated so far is left out of the union.
func (c *Cache) Rebuild(registry *peers.Status, scorer *scorers.Scorer) {
	ranges := map[types.DataType]types.CompleteDataRange{}
	peerCounts := map[types.DataType]int{}
	var maxChunkSizes []map[types.DataType]uint64

	for _, tier := range []types.NetworkTier{types.TierPriority, types.TierRegular} {
		for _, entry := range registry.PeersOfTier(tier) {
			if scorer.IsIgnored(entry.Key) {
				continue
			}
			if entry.Summary == nil {
				continue
			}
			for dt, r := range entry.Summary.Ranges {
				if !r.Valid() {
					continue
				}
				if existing, ok := ranges[dt]; ok && existing.Overlaps(r) {
					ranges[dt] = existing.Union(r)
				} else if !ok {
					ranges[dt] = r
				}
				peerCounts[dt]++
			}
			if entry.Summary.MaxChunkSizes != nil {
				maxChunkSizes = append(maxChunkSizes, entry.Summary.MaxChunkSizes)
			}
		}
	}

	next := &GlobalDataSummary{
		Ranges:                ranges,
		OptimalChunkSizes:     CalculateOptimalChunkSizes(maxChunkSizes, c.storageCfg),
		advertisingPeerCounts: peerCounts,
	}

	c.mu.Lock()
	c.current = next
	c.mu.Unlock()

	log.WithFields(logrus.Fields{"data_types": len(ranges), "advertising_peers": peerCounts}).Debug("global data summary rebuilt")
}
