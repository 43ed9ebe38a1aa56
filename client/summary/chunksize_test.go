package summary_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aptos-labs/aptos-data-client/client/config"
	"github.com/aptos-labs/aptos-data-client/client/summary"
	"github.com/aptos-labs/aptos-data-client/client/types"
)

func perPeerSizes(tx, epoch, output, account []uint64) []map[types.DataType]uint64 {
	n := len(tx)
	if len(epoch) > n {
		n = len(epoch)
	}
	if len(output) > n {
		n = len(output)
	}
	if len(account) > n {
		n = len(account)
	}
	out := make([]map[types.DataType]uint64, 0, n)
	for i := 0; i < n; i++ {
		m := map[types.DataType]uint64{}
		if i < len(tx) {
			m[types.Transactions] = tx[i]
		}
		if i < len(epoch) {
			m[types.EpochEndingLedgerInfos] = epoch[i]
		}
		if i < len(output) {
			m[types.TransactionOutputs] = output[i]
		}
		if i < len(account) {
			m[types.AccountStates] = account[i]
		}
		out = append(out, m)
	}
	return out
}

func chunkSizeCaps() *config.StorageServiceConfig {
	return &config.StorageServiceConfig{
		MaxTransactionChunkSize:       700,
		MaxEpochChunkSize:             600,
		MaxTransactionOutputChunkSize: 800,
		MaxAccountStatesChunkSize:     500,
	}
}

func TestCalculateOptimalChunkSizes_EmptyInputsUsesCapsAsDefault(t *testing.T) {
	result := summary.CalculateOptimalChunkSizes(nil, chunkSizeCaps())
	assert.Equal(t, uint64(700), result[types.Transactions])
	assert.Equal(t, uint64(600), result[types.EpochEndingLedgerInfos])
	assert.Equal(t, uint64(800), result[types.TransactionOutputs])
	assert.Equal(t, uint64(500), result[types.AccountStates])
}

func TestCalculateOptimalChunkSizes_UpperMedianPerDataType(t *testing.T) {
	peerSizes := perPeerSizes(
		[]uint64{100, 200, 300, 100},
		[]uint64{7, 5, 6, 8, 10},
		[]uint64{900, 700, 500},
		[]uint64{40},
	)
	result := summary.CalculateOptimalChunkSizes(peerSizes, chunkSizeCaps())

	assert.Equal(t, uint64(200), result[types.Transactions])
	assert.Equal(t, uint64(7), result[types.EpochEndingLedgerInfos])
	assert.Equal(t, uint64(700), result[types.TransactionOutputs])
	assert.Equal(t, uint64(40), result[types.AccountStates])
}

// The upper median of tx=[1000,1000,2000,3000] is 2000, which exceeds
// the configured 700 cap, so the clamp applies and the result is 700.
// Likewise the outputs median 7000 is clamped to its 800 cap.
func TestCalculateOptimalChunkSizes_ClampsToConfiguredCeiling(t *testing.T) {
	peerSizes := perPeerSizes(
		[]uint64{1000, 1000, 2000, 3000},
		[]uint64{70, 50, 60, 80, 100},
		[]uint64{9000, 7000, 5000},
		[]uint64{400},
	)
	result := summary.CalculateOptimalChunkSizes(peerSizes, chunkSizeCaps())

	assert.Equal(t, uint64(700), result[types.Transactions])
	assert.Equal(t, uint64(70), result[types.EpochEndingLedgerInfos])
	assert.Equal(t, uint64(800), result[types.TransactionOutputs])
	assert.Equal(t, uint64(400), result[types.AccountStates])
}
