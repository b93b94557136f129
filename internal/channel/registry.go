// Package channel implements the broker's bounded FIFO pub/sub channel
// registry: named channels with a shared queue and per-subscriber bounded
// receive queues, all under a single reader-writer lock.
package channel

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultQueueCapacity is Q, the default per-channel queue depth.
	DefaultQueueCapacity = 10_000
	// DefaultSubscriberCapacity is S, the default per-subscriber receive
	// queue depth.
	DefaultSubscriberCapacity = 1024
)

type chanState struct {
	queue *boundedQueue
	subs  map[string]*boundedQueue // connection id -> receive queue
}

// Registry owns every named Channel. Zero value is not usable; use New.
type Registry struct {
	mu  sync.RWMutex
	ch  map[string]*chanState
	seq uint64

	queueCap int
	subCap   int
}

// New constructs a Registry using the default queue and subscriber
// capacities.
func New() *Registry {
	return NewWithCapacity(DefaultQueueCapacity, DefaultSubscriberCapacity)
}

// NewWithCapacity constructs a Registry with explicit capacities, used by
// tests and by brokerconfig overrides.
func NewWithCapacity(queueCap, subCap int) *Registry {
	return &Registry{
		ch:       make(map[string]*chanState),
		queueCap: queueCap,
		subCap:   subCap,
	}
}

func (r *Registry) getOrCreate(name string) *chanState {
	cs, ok := r.ch[name]
	if !ok {
		cs = &chanState{
			queue: newBoundedQueue(r.queueCap),
			subs:  make(map[string]*boundedQueue),
		}
		r.ch[name] = cs
	}
	return cs
}

// Publish appends payload as a new Message on name, creating the channel if
// needed, then fans it out to every subscriber's receive queue. Returns the
// number of subscribers the message was pushed to (whether or not it caused
// a head-drop in that subscriber's queue) and whether the channel's own
// queue had to evict its oldest message to make room.
func (r *Registry) Publish(name, payload string) (delivered int, channelQueueDropped bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	msg := &Message{
		Seq:       r.seq,
		ID:        uuid.New().String(),
		Payload:   payload,
		Timestamp: time.Now(),
	}

	cs := r.getOrCreate(name)
	channelQueueDropped = cs.queue.push(msg)

	for _, sq := range cs.subs {
		sq.push(msg)
		delivered++
	}
	return delivered, channelQueueDropped
}

// Subscribe adds connID to name's subscriber set, creating the channel
// lazily. Idempotent; does not replay history into the new subscription.
func (r *Registry) Subscribe(name, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs := r.getOrCreate(name)
	if _, ok := cs.subs[connID]; !ok {
		cs.subs[connID] = newBoundedQueue(r.subCap)
	}
}

// Unsubscribe removes connID from name's subscriber set. Idempotent; a
// no-op if the channel or subscription doesn't exist.
func (r *Registry) Unsubscribe(name, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.ch[name]
	if !ok {
		return
	}
	delete(cs.subs, connID)
}

// UnsubscribeAll removes connID from every channel's subscriber set; used
// when a connection closes.
func (r *Registry) UnsubscribeAll(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cs := range r.ch {
		delete(cs.subs, connID)
	}
}

// Drain pops every pending message from connID's receive queue on name, in
// FIFO order. Used by the connection handler's async delivery loop.
func (r *Registry) Drain(name, connID string) []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.ch[name]
	if !ok {
		return nil
	}
	sq, ok := cs.subs[connID]
	if !ok {
		return nil
	}
	var out []*Message
	for {
		m, ok := sq.popFront()
		if !ok {
			break
		}
		out = append(out, m)
	}
	return out
}

// Rpop removes and returns the front of name's channel queue.
func (r *Registry) Rpop(name string) (*Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.ch[name]
	if !ok {
		return nil, false
	}
	return cs.queue.popFront()
}

// Llen returns the current length of name's channel queue (0 if absent).
func (r *Registry) Llen(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.ch[name]
	if !ok {
		return 0
	}
	return cs.queue.len()
}

// Destroy unconditionally removes name. A subsequent operation on the same
// name behaves as if it were never created.
func (r *Registry) Destroy(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ch, name)
}

// List returns the names of every channel that currently exists (has been
// published to, subscribed to, or otherwise created), in no particular
// order. Backs the LIST CHANNELS command.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ch))
	for name := range r.ch {
		names = append(names, name)
	}
	return names
}

// SubscriberCount returns how many connections are currently subscribed to
// name.
func (r *Registry) SubscriberCount(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cs, ok := r.ch[name]
	if !ok {
		return 0
	}
	return len(cs.subs)
}
