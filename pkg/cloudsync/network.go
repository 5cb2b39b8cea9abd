package cloudsync

import (
	"context"
	"sync"
	"time"

	"github.com/klokku/ritual/internal/event_bus"
	log "github.com/sirupsen/logrus"
)

const ProbeRemotePing = "remote-ping"

// NetworkMonitor pings the remote and publishes network.online whenever it
// becomes reachable after having been unreachable.
type NetworkMonitor struct {
	remote   Remote
	eventBus *event_bus.EventBus
	interval time.Duration

	mu     sync.Mutex
	online bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewNetworkMonitor(remote Remote, eventBus *event_bus.EventBus, interval time.Duration) *NetworkMonitor {
	return &NetworkMonitor{remote: remote, eventBus: eventBus, interval: interval, online: true}
}

// Check pings once and reports reachability.
func (m *NetworkMonitor) Check(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err := m.remote.Ping(pingCtx)
	cancel()
	online := err == nil

	m.mu.Lock()
	cameBack := online && !m.online
	if !online && m.online {
		log.Warnf("cloud sync: remote unreachable: %v", err)
	}
	m.online = online
	m.mu.Unlock()

	if cameBack {
		log.Info("cloud sync: remote reachable again")
		if err := m.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.NetworkOnline, event_bus.Online{Probe: ProbeRemotePing})); err != nil {
			log.Warnf("cloud sync: network.online listeners failed: %v", err)
		}
	}
	return online
}

func (m *NetworkMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Start checks every interval until Stop or ctx is done.
func (m *NetworkMonitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Check(ctx)
			}
		}
	}()
}

func (m *NetworkMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}
