// Package config holds the two configuration structs the data client
// is built from. Neither reads from a file or environment variable —
// configuration is constructed in-process by the host, as a plain
// struct with a DefaultXxxConfig constructor.
package config

import "time"

// Default values. Chosen to satisfy the bounded-steps-to-ignored and
// recovery-within-20-iterations properties documented in DESIGN.md.
const (
	DefaultSummaryPollInterval    = 1 * time.Second
	DefaultPriorityPollFanout     = 2
	DefaultRegularPollFanout      = 1
	DefaultRegularPollProbability = 0.3
	DefaultPerRequestTimeout      = 5 * time.Second
	DefaultSummaryPollTimeout     = 2 * time.Second
	DefaultMaxPeerLimit           = 100
)

// DataClientConfig configures the summary poller and the request
// router.
type DataClientConfig struct {
	// SummaryPollInterval is how often the poller ticks.
	SummaryPollInterval time.Duration
	// PriorityPollFanout bounds how many priority peers are polled per
	// tick.
	PriorityPollFanout int
	// RegularPollFanout bounds how many regular peers are (stochastically)
	// polled per tick.
	RegularPollFanout int
	// RegularPollProbability is the independent per-tick probability of
	// polling any regular peers at all.
	RegularPollProbability float64
	// PerRequestTimeout bounds a single data-fetch RPC.
	PerRequestTimeout time.Duration
	// SummaryPollTimeout bounds a single GetStorageServerSummary RPC.
	SummaryPollTimeout time.Duration
	// MaxPeerLimit is carried in the configuration only: the registry
	// does not read it and retains every connected peer.
	MaxPeerLimit int
}

// DefaultDataClientConfig returns the recommended configuration.
func DefaultDataClientConfig() *DataClientConfig {
	return &DataClientConfig{
		SummaryPollInterval:    DefaultSummaryPollInterval,
		PriorityPollFanout:     DefaultPriorityPollFanout,
		RegularPollFanout:      DefaultRegularPollFanout,
		RegularPollProbability: DefaultRegularPollProbability,
		PerRequestTimeout:      DefaultPerRequestTimeout,
		SummaryPollTimeout:     DefaultSummaryPollTimeout,
		MaxPeerLimit:           DefaultMaxPeerLimit,
	}
}

// Default per-data-type chunk-size caps used by StorageServiceConfig.
const (
	DefaultMaxTransactionChunkSize       = 1000
	DefaultMaxTransactionOutputChunkSize = 1000
	DefaultMaxEpochChunkSize             = 100
	DefaultMaxAccountStatesChunkSize     = 5000
)

// StorageServiceConfig carries the per-data-type maximum chunk sizes
// this client (as a storage-service server for others, or as a cap on
// what it will request) is configured with.
type StorageServiceConfig struct {
	MaxTransactionChunkSize       uint64
	MaxTransactionOutputChunkSize uint64
	MaxEpochChunkSize             uint64
	MaxAccountStatesChunkSize     uint64
}

// DefaultStorageServiceConfig returns the recommended configuration.
func DefaultStorageServiceConfig() *StorageServiceConfig {
	return &StorageServiceConfig{
		MaxTransactionChunkSize:       DefaultMaxTransactionChunkSize,
		MaxTransactionOutputChunkSize: DefaultMaxTransactionOutputChunkSize,
		MaxEpochChunkSize:             DefaultMaxEpochChunkSize,
		MaxAccountStatesChunkSize:     DefaultMaxAccountStatesChunkSize,
	}
}
