// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metrics is the leaf Prometheus collector set shared by every
// component that wants to expose a counter on the daemon's /metrics
// surface (internal/api), without those components needing to import
// internal/api themselves. Kept dependency-free beyond client_golang so
// internal/tshm, internal/mqueue, and internal/ingest can import it without
// risking an import cycle back through internal/api.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// PacketsWritten counts successful TShm.Write calls, by packet index.
	PacketsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gsw",
		Subsystem: "tshm",
		Name:      "packets_written_total",
		Help:      "Successful TShm.Write calls, by packet index.",
	}, []string{"packet"})

	// PacketsRead counts ReadLock calls that returned with at least one
	// packet updated, by packet index.
	PacketsRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gsw",
		Subsystem: "tshm",
		Name:      "packets_read_total",
		Help:      "ReadLock observations of a changed packet, by packet index.",
	}, []string{"packet"})

	// FutexWaits counts calls into FUTEX_WAIT_BITSET from ReadLock.
	FutexWaits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gsw",
		Subsystem: "tshm",
		Name:      "futex_waits_total",
		Help:      "Number of times ReadLock blocked on FUTEX_WAIT_BITSET.",
	})

	// FutexWakes counts calls into FUTEX_WAKE_BITSET from Write.
	FutexWakes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gsw",
		Subsystem: "tshm",
		Name:      "futex_wakes_total",
		Help:      "Number of times Write issued FUTEX_WAKE_BITSET.",
	})

	// QueueDrops counts mqueue.Queue.Send calls that dropped a message
	// because the queue was full, by queue name.
	QueueDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gsw",
		Subsystem: "mqueue",
		Name:      "drops_total",
		Help:      "Messages dropped because a queue was full, by queue name.",
	}, []string{"queue"})
)

func init() {
	prometheus.MustRegister(PacketsWritten, PacketsRead, FutexWaits, FutexWakes, QueueDrops)
}
