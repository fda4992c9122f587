// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sched runs periodic daemon housekeeping (currently one job, a
// debug-level report of the registered uplink queues) on a gocron scheduler, the same periodic-job
// idiom as the teacher's retention/checkpointing loop, retargeted at this
// domain's shared-memory and queue bookkeeping instead of time-series
// archival.
package sched

import (
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/WillMerges/GSW-2021-sub000/internal/mqueue"
	"github.com/WillMerges/GSW-2021-sub000/pkg/log"
)

// Scheduler wraps a gocron.Scheduler with the jobs this daemon needs.
type Scheduler struct {
	inner gocron.Scheduler
}

// New starts a Scheduler with no jobs registered yet.
func New() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Scheduler{inner: s}, nil
}

// Start runs the scheduler in the background. It does not block.
func (s *Scheduler) Start() {
	s.inner.Start()
}

// Shutdown stops the scheduler, waiting for any in-flight job to finish.
func (s *Scheduler) Shutdown() error {
	return s.inner.Shutdown()
}

// ReportQueueDepth registers a job that, every interval, logs at debug level
// that each uplink queue is still registered. Queue depth is not measured,
// and the log queue is not included.
func (s *Scheduler) ReportQueueDepth(interval time.Duration, mgr *mqueue.Manager) error {
	_, err := s.inner.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			for _, name := range mgr.UplinkDevices() {
				q := mgr.UplinkQueue(name)
				if q == nil {
					continue
				}
				log.Debugf("sched: uplink queue %q alive", name)
			}
		}),
	)
	return err
}
