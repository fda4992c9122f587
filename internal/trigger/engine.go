// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package trigger is the virtual-telemetry engine: it parses a trigger file
// naming (source measurement, function, argument measurements) tuples,
// groups them by the packet their source measurement lives in, and on each
// update cycle invokes every trigger whose source packet changed, batching
// the resulting writes through a single writer.Flush.
package trigger

import (
	"fmt"
	"time"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/mqueue"
	"github.com/WillMerges/GSW-2021-sub000/internal/tshm"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
	"github.com/WillMerges/GSW-2021-sub000/internal/viewer"
	"github.com/WillMerges/GSW-2021-sub000/internal/writer"
)

// Engine owns the parsed trigger set and the viewer/writer pair it drives
// them through.
type Engine struct {
	vehicle  *vcm.Vehicle
	shm      *tshm.TShm
	viewer   *viewer.Viewer
	writer   *writer.Writer
	triggers []*Trigger

	// byPacket maps packet index to the triggers whose source measurement
	// has a location in that packet, built once at load time.
	byPacket map[int][]*Trigger

	// log, if set via SetLogQueue, receives one log record per virtual
	// packet this engine flushes, per §4.8's "virtual-packet flush" log
	// producer.
	log *mqueue.Manager
}

// Load parses the vehicle's trigger file and builds an Engine ready to run,
// subscribing its internal viewer to every packet that is either a trigger
// source or a trigger argument.
func Load(vehicle *vcm.Vehicle, shm *tshm.TShm) (*Engine, error) {
	triggers, err := parseFile(vehicle)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		vehicle:  vehicle,
		shm:      shm,
		viewer:   viewer.New(vehicle, shm),
		writer:   writer.New(vehicle, shm),
		triggers: triggers,
		byPacket: map[int][]*Trigger{},
	}

	for _, t := range triggers {
		packets := map[int]bool{}
		for _, loc := range t.Source.Locations {
			packets[loc.PacketIndex] = true
		}
		for p := range packets {
			e.byPacket[p] = append(e.byPacket[p], t)
		}

		if res := e.viewer.AddMeasurement(t.Source.Name); res != gswerr.Success {
			return nil, fmt.Errorf("trigger: failed to subscribe to source measurement %s", t.Source.Name)
		}
		for _, a := range t.Args {
			if res := e.viewer.AddMeasurement(a.Name); res != gswerr.Success {
				return nil, fmt.Errorf("trigger: failed to subscribe to argument measurement %s", a.Name)
			}
		}
	}

	e.viewer.SetMode(viewer.Blocking)

	return e, nil
}

// RunOnce executes one event-loop cycle per spec §4.7: blocking update,
// lock every virtual output, fire each trigger whose source packet updated
// (ascending packet index, triggers in insertion order within a packet,
// each trigger firing at most once even if its source spans multiple
// updated packets), flush if anything succeeded, then unlock.
//
// timeoutMs is forwarded to the viewer's blocking update (0 waits forever).
// It returns the update's result directly when that didn't succeed
// (Interrupted, Timeout, or Failure), so a caller's main loop can tell a
// clean shutdown request apart from a wait that just expired.
func (e *Engine) RunOnce(timeoutMs uint32) gswerr.Result {
	if res := e.viewer.Update(timeoutMs); res != gswerr.Success {
		return res
	}

	if res := e.writer.Lock(false); res != gswerr.Success {
		return res
	}
	defer e.writer.Unlock()

	fired := map[int]bool{}
	anySuccess := false

	for i := 0; i < e.vehicle.NumPackets(); i++ {
		if !e.viewer.PacketUpdated(i) {
			continue
		}

		for _, t := range e.byPacket[i] {
			if fired[t.UniqueID] {
				continue
			}
			fired[t.UniqueID] = true

			if res := t.Func(e.viewer, e.writer, t.Args); res == gswerr.Success {
				anySuccess = true
			}
		}
	}

	if anySuccess {
		res, touched := e.writer.FlushTouched()
		if res != gswerr.Success {
			return res
		}
		e.logFlushedPackets(touched)
	}

	return gswerr.Success
}

// logFlushedPackets pushes one log record per flushed virtual packet index,
// if a log queue manager is wired.
func (e *Engine) logFlushedPackets(touched []int) {
	if e.log == nil {
		return
	}
	now := time.Now()
	for _, i := range touched {
		buf := e.shm.GetBuffer(i)
		if buf == nil {
			continue
		}
		e.log.PushLogRecord(&mqueue.LogRecord{
			Sec:     now.Unix(),
			Usec:    int64(now.Nanosecond() / 1000),
			Device:  e.vehicle.Device,
			Payload: buf,
		})
	}
}

// SetLogQueue wires a message-queue manager so every cycle's flushed
// virtual packets are also pushed as log records, matching the other two
// log-record producers (ingest, the message logger). Passing nil (the
// default) disables log-record emission.
func (e *Engine) SetLogQueue(m *mqueue.Manager) {
	e.log = m
}

// SigHandler releases a blocked RunOnce from a signal handler.
func (e *Engine) SigHandler() {
	e.viewer.SigHandler()
}

// Triggers returns the parsed trigger set, in file order.
func (e *Engine) Triggers() []*Trigger {
	return e.triggers
}
