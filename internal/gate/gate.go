// SPDX-License-Identifier: Apache-2.0

// Package gate holds the process-wide feature-flag and kill-switch
// state. A Gate is constructed once at startup from static config and
// injected explicitly; there is no hidden singleton.
package gate

import (
	"log/slog"
	"sync"

	"github.com/patternloop/assistant-runtime/internal/domain"
)

// Features consulted by the pipeline and the streaming broker.
const (
	FeatureDerive    = "learning.derive"
	FeatureBroadcast = "stream.broadcast"
	FeatureChat      = "stream.chat"
)

type Gate struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	disabled map[string]bool
	killed   map[string]bool
}

// New builds a Gate with the given features disabled at boot. Every
// feature not listed is enabled by default.
func New(disabled []string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}

	d := make(map[string]bool, len(disabled))
	for _, f := range disabled {
		d[f] = true
	}

	return &Gate{
		logger:   logger,
		disabled: d,
		killed:   make(map[string]bool),
	}
}

// IsEnabled reports whether the feature may produce externally visible
// side effects. Read-only surfacing never consults the gate.
func (g *Gate) IsEnabled(feature string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return !g.disabled[feature] && !g.killed[feature]
}

// Disable turns the feature off until Enable or process exit. Idempotent.
func (g *Gate) Disable(feature string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.disabled[feature] {
		g.logger.Warn("feature disabled", "feature", feature)
	}
	g.disabled[feature] = true
}

// Enable turns a disabled feature back on. A killed feature stays dead:
// lifting a kill requires a process restart.
func (g *Gate) Enable(feature string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.killed[feature] {
		return domain.ErrFeatureKilled
	}
	delete(g.disabled, feature)
	return nil
}

// Kill forces the feature off immediately and irreversibly for the
// process lifetime.
func (g *Gate) Kill(feature string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.killed[feature] {
		g.logger.Warn("feature killed", "feature", feature)
	}
	g.killed[feature] = true
}

// Killed reports whether the feature has been killed.
func (g *Gate) Killed(feature string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.killed[feature]
}
