// Package netmon reports network connectivity by periodically dialing a
// well-known endpoint, standing in for the online/offline signal a browser
// environment provides.
package netmon

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"lectura/domain/repositories"
)

const (
	defaultTarget   = "1.1.1.1:443"
	defaultInterval = 3 * time.Second
	dialTimeout     = 2 * time.Second
)

// Probe is a dial-based connectivity monitor. It starts optimistic and
// corrects itself on the first probe.
type Probe struct {
	target   string
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	online  bool
	changes chan bool
	stop    chan struct{}
	once    sync.Once
}

var _ repositories.ConnectivityMonitor = (*Probe)(nil)

// NewProbe starts a connectivity probe. Empty target and zero interval select
// the defaults.
func NewProbe(target string, interval time.Duration, logger *zap.Logger) *Probe {
	if target == "" {
		target = defaultTarget
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	p := &Probe{
		target:   target,
		interval: interval,
		logger:   logger,
		online:   true,
		changes:  make(chan bool, 4),
		stop:     make(chan struct{}),
	}
	go p.run()
	return p
}

// Online reports the last observed connectivity state.
func (p *Probe) Online() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.online
}

// Changes returns a channel receiving a value on each connectivity
// transition. Delivery is best-effort; consumers must not rely on it alone.
func (p *Probe) Changes() <-chan bool {
	return p.changes
}

// Close stops the probe.
func (p *Probe) Close() error {
	p.once.Do(func() { close(p.stop) })
	return nil
}

func (p *Probe) run() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.observe(p.probe())
		select {
		case <-p.stop:
			return
		case <-ticker.C:
		}
	}
}

func (p *Probe) probe() bool {
	conn, err := net.DialTimeout("tcp", p.target, dialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

func (p *Probe) observe(online bool) {
	p.mu.Lock()
	changed := online != p.online
	p.online = online
	p.mu.Unlock()

	if !changed {
		return
	}
	p.logger.Info("connectivity changed", zap.Bool("online", online))
	select {
	case p.changes <- online:
	default:
	}
}
