// Package scorers implements the peer scoreboard: per-peer reputation
// that decays on timeout/malformed/bad responses and grows on
// success, with threshold-based ignore/readmit behavior — a
// continuous score rather than a bad-response counter.
package scorers

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/aptos-labs/aptos-data-client/client/types"
)

var log = logrus.WithField("prefix", "scorers")

// Scorer owns PeerScore, keyed by types.PeerKey. It is process-wide
// shared state; every exported method is safe for concurrent use, and
// no method blocks.
type Scorer struct {
	cfg *Config

	mu     sync.RWMutex
	scores map[types.PeerKey]float64
}

// New builds a Scorer. A nil cfg uses DefaultConfig().
func New(cfg *Config) *Scorer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scorer{
		cfg:    cfg,
		scores: make(map[types.PeerKey]float64),
	}
}

// Params returns the configuration this Scorer was built with.
func (s *Scorer) Params() *Config {
	return s.cfg
}

// track ensures key has a score entry, seeding it at StartingScore on
// first use. Caller must hold s.mu for writing.
func (s *Scorer) track(key types.PeerKey) float64 {
	score, ok := s.scores[key]
	if !ok {
		score = s.cfg.StartingScore
		s.scores[key] = score
	}
	return score
}

// Track explicitly seeds a score entry for key at StartingScore, if
// one does not already exist. Called by the client facade on peer connect
// so a brand-new peer is never treated as ignored before its first
// scoring event.
func (s *Scorer) Track(key types.PeerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track(key)
}

// Untrack drops key's score entirely. Called by the client facade on
// peer disconnect.
func (s *Scorer) Untrack(key types.PeerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scores, key)
}

// Score returns key's current score, or StartingScore if never seen.
func (s *Scorer) Score(key types.PeerKey) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if score, ok := s.scores[key]; ok {
		return score
	}
	return s.cfg.StartingScore
}

// IsIgnored reports whether key's score has fallen below
// IgnoreThreshold. An untracked peer is never ignored.
func (s *Scorer) IsIgnored(key types.PeerKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[key]
	if !ok {
		return false
	}
	return score < s.cfg.IgnoreThreshold
}

// RecordSuccess additively bumps key's score by SuccessDelta, capped
// at MaxScore.
func (s *Scorer) RecordSuccess(key types.PeerKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score := s.track(key) + s.cfg.SuccessDelta
	if score > s.cfg.MaxScore {
		score = s.cfg.MaxScore
	}
	s.scores[key] = score
}

// RecordTimeout penalizes key for an RPC deadline exceeded.
func (s *Scorer) RecordTimeout(key types.PeerKey) {
	s.penalize(key, "timeout")
}

// RecordInternalError penalizes key for a remote-reported error or
// transport/serialization failure.
func (s *Scorer) RecordInternalError(key types.PeerKey) {
	s.penalize(key, "internal_error")
}

// RecordBadResponse penalizes key for a response that mismatched the
// request, advertised a wrong range, or failed verification.
func (s *Scorer) RecordBadResponse(key types.PeerKey) {
	s.penalize(key, "bad_response")
}

func (s *Scorer) penalize(key types.PeerKey, reason string) {
	s.mu.Lock()
	score := s.track(key) - s.cfg.BadEventPenalty
	if score < 0 {
		score = 0
	}
	s.scores[key] = score
	s.mu.Unlock()
	log.WithFields(logrus.Fields{"peer": key.String(), "reason": reason, "score": score}).Debug("peer score penalized")
}

// Peers returns a snapshot of every tracked peer key.
func (s *Scorer) Peers() []types.PeerKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]types.PeerKey, 0, len(s.scores))
	for k := range s.scores {
		keys = append(keys, k)
	}
	return keys
}
