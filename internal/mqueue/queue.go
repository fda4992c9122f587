// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package mqueue is the bounded, lossy, non-blocking-producer message queue
// used for two purposes: a single log queue shared by every producer of log
// records (packet ingest, virtual-packet flush, the message logger), and
// one uplink queue per configured network device. Both are instances of the
// same Queue primitive, identified by name, single-consumer/multi-producer,
// capped at a fixed number of fixed-size messages — the Go analogue of a
// POSIX mqueue opened O_NONBLOCK.
package mqueue

import (
	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/metrics"
	"github.com/WillMerges/GSW-2021-sub000/pkg/log"
)

// Depth is the maximum number of messages a Queue holds before Send starts
// dropping.
const Depth = 10

// MaxMessageSize is the largest payload a Queue accepts.
const MaxMessageSize = 4096

// Queue is a fixed-capacity, single-consumer/multi-producer pipe of byte
// messages. Producers never block: Send either enqueues immediately or
// drops the message and reports gswerr.Blocked so the caller can log the
// loss, matching mq_send with O_NONBLOCK returning EAGAIN on a full queue.
type Queue struct {
	name string
	ch   chan []byte
}

// New returns a Queue with the standard depth and per-message size limit.
func New(name string) *Queue {
	return &Queue{name: name, ch: make(chan []byte, Depth)}
}

// Name returns the queue's identifying name.
func (q *Queue) Name() string {
	return q.name
}

// Send copies msg into the queue. It never blocks: if the queue is full the
// message is dropped and gswerr.Blocked is returned; the caller is expected
// to log the loss (Send itself does not log, since the producer knows the
// richer context — device, packet, etc; Registry.SendNamed does log).
// A message larger than MaxMessageSize is rejected outright.
func (q *Queue) Send(msg []byte) gswerr.Result {
	if len(msg) > MaxMessageSize {
		return gswerr.Failure
	}

	cp := make([]byte, len(msg))
	copy(cp, msg)

	select {
	case q.ch <- cp:
		return gswerr.Success
	default:
		metrics.QueueDrops.WithLabelValues(q.name).Inc()
		return gswerr.Blocked
	}
}

// Receive blocks the single consumer until a message is available or the
// queue is closed, in which case ok is false.
func (q *Queue) Receive() (msg []byte, ok bool) {
	msg, ok = <-q.ch
	return msg, ok
}

// Close signals Receive to stop blocking once drained. Only the consumer
// side (the logger daemon, the uplink child) should call this, at shutdown.
func (q *Queue) Close() {
	close(q.ch)
}

// Registry is a named set of Queues: the log queue plus one uplink queue
// per configured network device, all reachable by name the way the
// original addresses a POSIX mqueue by its path.
type Registry struct {
	queues map[string]*Queue
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{queues: map[string]*Queue{}}
}

// GetOrCreate returns the named queue, creating it on first use.
func (r *Registry) GetOrCreate(name string) *Queue {
	if q, ok := r.queues[name]; ok {
		return q
	}
	q := New(name)
	r.queues[name] = q
	return q
}

// Get returns the named queue, or nil if it has never been created.
func (r *Registry) Get(name string) *Queue {
	return r.queues[name]
}

// SendNamed looks up (or creates) the named queue and sends msg on it,
// logging the drop itself — a convenience for producers (ingest, flush)
// that don't otherwise need a *Queue handle.
func (r *Registry) SendNamed(name string, msg []byte) gswerr.Result {
	res := r.GetOrCreate(name).Send(msg)
	if res == gswerr.Blocked {
		log.Warnf("mqueue: queue %q full, dropping %d-byte message", name, len(msg))
	}
	return res
}

// CloseAll closes every queue currently registered, releasing every
// blocked consumer (PublishBridge, an uplink drain loop).
func (r *Registry) CloseAll() {
	for _, q := range r.queues {
		q.Close()
	}
}
