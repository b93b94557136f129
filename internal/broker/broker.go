// Package broker implements the Automation Broker: a TCP server that
// authenticates clients with a shared token and exposes the Session/Pane
// Registry and Channel Registry over a line-oriented text protocol.
package broker

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"ptybroker/internal/channel"
	"ptybroker/internal/eventlog"
	"ptybroker/internal/registry"
)

// DefaultBindAddr is the broker's default listen address: loopback only.
const DefaultBindAddr = "127.0.0.1:6379"

// Broker composes the registries, the auth token, and the TCP listener. One
// Broker is created per call to Start and freed entirely on Stop.
type Broker struct {
	Sessions *registry.Registry
	Channels *channel.Registry

	token  string
	log    *slog.Logger
	events *eventlog.Logger
	ln     net.Listener
	connID atomic.Uint64

	mu       sync.Mutex
	conns    map[uint64]*connection
	stopping bool
	wg       sync.WaitGroup
}

// Config controls queue capacities and logging; zero value uses the
// package defaults.
type Config struct {
	QueueCapacity      int
	SubscriberCapacity int
	Logger             *slog.Logger

	// ActivityLogPath, if non-empty, enables JSON-Lines activity logging
	// of connection lifecycle events (auth outcomes, subscriptions) to
	// this file. Never includes the token.
	ActivityLogPath string
}

// Start opens the TCP listener on bindAddr, wires up the registries with
// token, and begins accepting connections in a background goroutine.
func Start(bindAddr, token string, cfg Config) (*Broker, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("broker: listen on %s: %w", bindAddr, err)
	}

	queueCap := cfg.QueueCapacity
	if queueCap <= 0 {
		queueCap = channel.DefaultQueueCapacity
	}
	subCap := cfg.SubscriberCapacity
	if subCap <= 0 {
		subCap = channel.DefaultSubscriberCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := eventlog.Nop()
	if cfg.ActivityLogPath != "" {
		events = eventlog.New(true, cfg.ActivityLogPath, "broker", bindAddr)
	}

	b := &Broker{
		Sessions: registry.New(),
		Channels: channel.NewWithCapacity(queueCap, subCap),
		token:    token,
		log:      logger,
		events:   events,
		ln:       ln,
		conns:    make(map[uint64]*connection),
	}

	b.wg.Add(1)
	go b.acceptLoop()
	return b, nil
}

// Addr returns the listener's bound address, useful when bindAddr was
// ":0" for tests.
func (b *Broker) Addr() net.Addr {
	return b.ln.Addr()
}

func (b *Broker) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			b.mu.Lock()
			stopping := b.stopping
			b.mu.Unlock()
			if stopping {
				return
			}
			b.log.Error("broker: accept failed", "error", err)
			return
		}

		id := b.connID.Add(1)
		c := newConnection(id, conn, b)

		b.mu.Lock()
		b.conns[id] = c
		b.mu.Unlock()

		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			c.serve()
			b.mu.Lock()
			delete(b.conns, id)
			b.mu.Unlock()
		}()
	}
}

// Stop disables accept, closes every open connection, and destroys all
// sessions. Idempotent.
func (b *Broker) Stop() {
	b.mu.Lock()
	if b.stopping {
		b.mu.Unlock()
		return
	}
	b.stopping = true
	conns := make([]*connection, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	b.ln.Close()
	for _, c := range conns {
		c.close()
	}
	b.wg.Wait()

	for _, sid := range b.Sessions.ListSessions() {
		b.Sessions.CloseSession(sid, func(p *registry.Pane) {
			b.Channels.Destroy(p.InputChannel())
			b.Channels.Destroy(p.OutputChannel())
		})
	}
	b.events.Close()
}
