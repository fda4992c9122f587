// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingest

import (
	"context"
	"sort"
	"time"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/mqueue"
	"github.com/WillMerges/GSW-2021-sub000/pkg/log"
)

// PlaybackCommand is one scripted uplink message, due At a relative offset
// from playback start.
type PlaybackCommand struct {
	At      time.Duration
	Payload []byte
}

// Playback replays a sorted set of commands against a device's uplink
// queue at the wall-clock offsets they were recorded at — a minimal,
// compiling realization of the engine-controller command-playback feature
// that failed to build in the original implementation (§9). It is scoped
// to what this system's Non-goals allow: no packet-loss recovery, no
// multi-host replay, just timed injection into the same uplink queue a
// live commander would use.
type Playback struct {
	commands []PlaybackCommand
}

// NewPlayback sorts commands by At and returns a Playback ready to Run.
func NewPlayback(commands []PlaybackCommand) *Playback {
	sorted := append([]PlaybackCommand(nil), commands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })
	return &Playback{commands: sorted}
}

// Run replays every command onto q at its scheduled offset from the call
// to Run, stopping early if ctx is canceled.
func (p *Playback) Run(ctx context.Context, q *mqueue.Queue) {
	start := time.Now()
	for _, cmd := range p.commands {
		wait := cmd.At - time.Since(start)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}

		if res := q.Send(cmd.Payload); res != gswerr.Success {
			log.Warnf("playback: command at %s dropped: %s", cmd.At, res)
		}
	}
}
