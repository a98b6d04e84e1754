package chainpool

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/abhishek7776/cryptowallet/internal/config"
	"go.uber.org/zap"
)

// ConfigurationError means a request named a network the pool was never
// configured for. It is fatal to the request, not to the process.
type ConfigurationError struct {
	Network string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no endpoints configured for network %q", e.Network)
}

// endpointSet holds the failover state for one network: the fixed endpoint
// order, the cursor, and the lazily-dialed handle at the cursor. Cursor and
// handle are only touched under mu so a concurrent Client never observes a
// half-advanced slot.
type endpointSet struct {
	mu        sync.Mutex
	endpoints []string
	chainID   *big.Int
	cursor    int
	handle    Client
}

// NewPool builds the per-network failover state from static configuration.
// Endpoints are tried in configured order; Advance wraps modulo the list
// length and there is no health-based reordering. Callers bound attempts via
// WithRetry, so the wrap-around never loops forever.
func NewPool(networks map[string]config.NetworkConfig, dial Dialer, logger *zap.Logger) *Pool {
	sets := make(map[string]*endpointSet, len(networks))
	for name, nc := range networks {
		sets[name] = &endpointSet{
			endpoints: nc.Endpoints,
			chainID:   big.NewInt(nc.ChainID),
		}
	}
	return &Pool{sets: sets, dial: dial, logger: logger}
}

type Pool struct {
	sets   map[string]*endpointSet
	dial   Dialer
	logger *zap.Logger
}

// Client returns the connected handle at the current cursor for network,
// dialing it on first use. It does not retry on dial failure; the caller is
// expected to Advance and try again (WithRetry does exactly that).
func (p *Pool) Client(network string) (Client, error) {
	set, ok := p.sets[network]
	if !ok || len(set.endpoints) == 0 {
		return nil, &ConfigurationError{Network: network}
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	if set.handle != nil {
		return set.handle, nil
	}

	url := set.endpoints[set.cursor]
	client, err := p.dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing %s endpoint %s: %w", network, url, err)
	}
	set.handle = client
	p.logger.Debug("dialed endpoint",
		zap.String("network", network), zap.Int("cursor", set.cursor))
	return client, nil
}

// Advance moves the cursor to the next endpoint and discards any handle so
// the next Client call re-dials. A failed endpoint is never silently reused
// with stale connection state.
func (p *Pool) Advance(network string) {
	set, ok := p.sets[network]
	if !ok {
		return
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	if set.handle != nil {
		set.handle.Close()
		set.handle = nil
	}
	set.cursor = (set.cursor + 1) % len(set.endpoints)
	p.logger.Info("advanced to next endpoint",
		zap.String("network", network), zap.Int("cursor", set.cursor))
}

// ChainID returns the configured chain ID for network.
func (p *Pool) ChainID(network string) (*big.Int, error) {
	set, ok := p.sets[network]
	if !ok {
		return nil, &ConfigurationError{Network: network}
	}
	return set.chainID, nil
}

// Cursor reports the current endpoint index for network. Diagnostic only,
// not part of the failover logic.
func (p *Pool) Cursor(network string) int {
	set, ok := p.sets[network]
	if !ok {
		return -1
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	return set.cursor
}
