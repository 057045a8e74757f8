// File: internal/useragent/useragent.go

// Package useragent synthesizes a plausible desktop Chrome identity: a
// user-agent string drawn from a refreshable pool of currently shipping
// browsers, plus the structured Client Hints metadata derived from it.
// Both halves of the identity must be applied to the browser together;
// a mismatch between the script-visible string and the wire-level metadata
// is itself a bot signal.
package useragent

import (
	_ "embed"
	"errors"
	"math/rand"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

//go:embed agents.json
var embeddedAgents []byte

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyPool is returned when no Chrome-branded desktop identity survives
// filtering.
var ErrEmptyPool = errors.New("user agent pool contains no desktop Chrome identities")

// Pool holds the candidate user-agent strings. The zero value is unusable;
// construct with NewPool.
type Pool struct {
	mu     sync.RWMutex
	agents []string
}

// NewPool creates a pool seeded from the embedded snapshot of the
// externally maintained user-agents list.
func NewPool() (*Pool, error) {
	var agents []string
	if err := json.Unmarshal(embeddedAgents, &agents); err != nil {
		return nil, err
	}
	return &Pool{agents: agents}, nil
}

// Replace swaps the pool contents, typically after a remote refresh.
// Empty updates are ignored so a failed refresh never degrades the pool.
func (p *Pool) Replace(agents []string) {
	if len(agents) == 0 {
		return
	}
	p.mu.Lock()
	p.agents = agents
	p.mu.Unlock()
}

// Pick returns a random desktop Chrome-branded user agent from the pool.
// Rebranded Chromium variants (Edge, Opera) and mobile builds are excluded:
// their Client Hints brand lists differ from stock Chrome, and mixing them
// with Chrome-shaped metadata is detectable.
func (p *Pool) Pick(rng *rand.Rand) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	candidates := make([]string, 0, len(p.agents))
	for _, ua := range p.agents {
		if isDesktopChrome(ua) {
			candidates = append(candidates, ua)
		}
	}
	if len(candidates) == 0 {
		return "", ErrEmptyPool
	}
	return candidates[rng.Intn(len(candidates))], nil
}

func isDesktopChrome(ua string) bool {
	return strings.Contains(ua, "Chrome/") &&
		!strings.Contains(ua, "Edg") &&
		!strings.Contains(ua, "OPR/") &&
		!strings.Contains(ua, "Mobile")
}
