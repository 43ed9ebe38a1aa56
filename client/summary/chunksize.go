// Package summary implements the global data summary cache and the
// optimal chunk-size calculator — folding many peers' self-reported
// state into one process-wide snapshot behind a single read-mostly
// lock.
package summary

import (
	"sort"

	"github.com/aptos-labs/aptos-data-client/client/config"
	"github.com/aptos-labs/aptos-data-client/client/types"
)

// CalculateOptimalChunkSizes derives the per-data-type chunk size this
// client should request, from the max-chunk-size each peer in
// maxChunkSizesByPeer advertised for that data type (the global summary
// cache passes only non-ignored peers): the upper median of the advertised
// values, clamped to this client's own configured ceiling. A data type
// with no advertisements at all falls back to the configured ceiling.
//
// "Upper median" means: for an even-length list, the higher of the two
// middle elements is taken rather than an interpolated average, so the
// result is always one of the advertised values.
func CalculateOptimalChunkSizes(maxChunkSizesByPeer []map[types.DataType]uint64, cfg *config.StorageServiceConfig) types.OptimalChunkSizes {
	if cfg == nil {
		cfg = config.DefaultStorageServiceConfig()
	}
	ceilings := map[types.DataType]uint64{
		types.Transactions:           cfg.MaxTransactionChunkSize,
		types.TransactionOutputs:     cfg.MaxTransactionOutputChunkSize,
		types.EpochEndingLedgerInfos: cfg.MaxEpochChunkSize,
		types.AccountStates:          cfg.MaxAccountStatesChunkSize,
	}

	result := make(types.OptimalChunkSizes, len(types.AllDataTypes))
	for _, dt := range types.AllDataTypes {
		ceiling := ceilings[dt]

		var values []uint64
		for _, peerSizes := range maxChunkSizesByPeer {
			if v, ok := peerSizes[dt]; ok {
				values = append(values, v)
			}
		}
		if len(values) == 0 {
			result[dt] = ceiling
			continue
		}

		median := upperMedian(values)
		if median > ceiling {
			median = ceiling
		}
		result[dt] = median
	}
	return result
}

// upperMedian returns the higher of the two middle elements for an
// even-length input, or the single middle element for odd length.
func upperMedian(values []uint64) uint64 {
	sorted := append([]uint64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}
