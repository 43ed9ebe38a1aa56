// Package poller implements the summary poller: a periodic background
// task that refreshes peers' advertised summaries. It runs a
// ticker-driven decay-style goroutine started from an
// injectable clock, and uses golang.org/x/sync/errgroup for the
// concurrent per-peer RPC fan-out within a tick.
package poller

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/aptos-labs/aptos-data-client/client/config"
	"github.com/aptos-labs/aptos-data-client/client/network"
	"github.com/aptos-labs/aptos-data-client/client/peers"
	"github.com/aptos-labs/aptos-data-client/client/peers/scorers"
	"github.com/aptos-labs/aptos-data-client/client/types"
)

var log = logrus.WithField("prefix", "poller")

// Poller drives periodic GetStorageServerSummary RPCs against the
// peers the registry's rotation policy selects.
type Poller struct {
	cfg      *config.DataClientConfig
	clk      clock.Clock
	registry *peers.Status
	scorer   *scorers.Scorer
	client   network.Client

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Poller. A nil cfg uses config.DefaultDataClientConfig().
func New(cfg *config.DataClientConfig, clk clock.Clock, registry *peers.Status, scorer *scorers.Scorer, client network.Client) *Poller {
	if cfg == nil {
		cfg = config.DefaultDataClientConfig()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Poller{
		cfg:      cfg,
		clk:      clk,
		registry: registry,
		scorer:   scorer,
		client:   client,
	}
}

// Start launches the poller's ticker loop in a background goroutine.
// Calling Start on an already-running Poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.run(ctx)
}

// Stop signals the poller's loop to exit and blocks until it has, if
// it was running.
func (p *Poller) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.mu.Lock()
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (p *Poller) run(ctx context.Context) {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	defer close(done)

	ticker := p.clk.Ticker(p.cfg.SummaryPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one polling round synchronously: select peers, fan out
// GetStorageServerSummary RPCs concurrently, and update the registry
// and scoreboard with each outcome. Exported so tests can drive exact
// rounds without waiting on the ticker.
func (p *Poller) Tick(ctx context.Context) {
	selected, err := p.registry.SelectPeersToPoll()
	if err != nil {
		log.WithError(err).Debug("no peers available to poll this tick")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range selected {
		key := key
		g.Go(func() error {
			p.pollOne(gctx, key)
			return nil
		})
	}
	_ = g.Wait() // pollOne never returns an error; per-peer failures are absorbed, not propagated.
}

func (p *Poller) pollOne(ctx context.Context, key types.PeerKey) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.SummaryPollTimeout)
	defer cancel()

	resp, err := p.client.SendRPC(reqCtx, key.ID, network.ProtocolStorageService, network.Request{Kind: network.GetStorageServerSummary}, p.cfg.SummaryPollTimeout)
	if err != nil {
		log.WithError(err).WithField("peer", key.String()).Debug("summary poll failed")
		p.scorer.RecordTimeout(key)
		return
	}
	if !resp.MatchesKind() || resp.Summary == nil {
		log.WithField("peer", key.String()).Warn("summary poll returned malformed response")
		p.scorer.RecordBadResponse(key)
		return
	}

	if err := p.registry.UpdateSummary(key, resp.Summary); err != nil {
		// Peer disconnected between selection and response; nothing to
		// update, and not a fault of the peer.
		log.WithError(err).WithField("peer", key.String()).Debug("peer vanished before summary could be recorded")
		return
	}
	p.scorer.RecordSuccess(key)
}
