package network

import (
	"context"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/libp2p/go-libp2p-core/protocol"
	"github.com/pkg/errors"
)

// ErrSimulatedTimeout is returned by a Responder to make MockClient
// report a timeout to the caller (surfaced as context.DeadlineExceeded,
// the same signal a real deadline-exceeded stream read would produce).
var ErrSimulatedTimeout = errors.New("network: simulated timeout")

// ErrNoResponder is returned when a peer has no registered behavior.
var ErrNoResponder = errors.New("network: no responder registered for peer")

// Responder computes a canned Response for a Request, simulating a
// remote peer's behavior. Returning ErrSimulatedTimeout simulates a
// deadline-exceeded RPC; any other non-nil error simulates a remote/
// transport failure.
type Responder func(ctx context.Context, req Request) (*Response, error)

// MockClient is an in-memory network.Client used by the client and
// poller tests in place of a real libp2p transport, keeping the
// scoring and selection logic under test against deterministic,
// injectable peer behavior.
type MockClient struct {
	mu         sync.RWMutex
	responders map[peer.ID]Responder
	calls      map[peer.ID]int
}

// NewMockClient returns an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{
		responders: make(map[peer.ID]Responder),
		calls:      make(map[peer.ID]int),
	}
}

// SetResponder installs the behavior used for every subsequent RPC to
// p, replacing any previous one.
func (m *MockClient) SetResponder(p peer.ID, r Responder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responders[p] = r
}

// CallCount returns how many times SendRPC has been invoked for p.
func (m *MockClient) CallCount(p peer.ID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[p]
}

// SendRPC implements Client.
func (m *MockClient) SendRPC(ctx context.Context, p peer.ID, _ protocol.ID, req Request, _ time.Duration) (*Response, error) {
	m.mu.Lock()
	m.calls[p]++
	r, ok := m.responders[p]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoResponder
	}
	resp, err := r(ctx, req)
	if errors.Is(err, ErrSimulatedTimeout) {
		return nil, context.DeadlineExceeded
	}
	return resp, err
}
