// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingest

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/mqueue"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
	"github.com/WillMerges/GSW-2021-sub000/pkg/log"
)

// Uplink drains one mqueue uplink queue per configured network device and
// sends each message to the device's passively-learned address, sharing
// PortBindings with an Ingester so that address is the same one ingest
// last received from (§4.9's "master process forks one child per
// configured network device").
type Uplink struct {
	vehicle  *vcm.Vehicle
	queues   *mqueue.Manager
	bindings *Ingester
}

// NewUplink returns an Uplink for vehicle's configured net devices, using
// bindings to share PortBindings with an already-running Ingester.
func NewUplink(vehicle *vcm.Vehicle, queues *mqueue.Manager, bindings *Ingester) *Uplink {
	return &Uplink{vehicle: vehicle, queues: queues, bindings: bindings}
}

// devicePort extracts a net device's UDP port from its declaration args
// (the last token of "net <name> <mode> <args...>", e.g. the "9000" in
// "net WIRELESS auto 9000").
func devicePort(nd *vcm.NetDevice) (int, error) {
	if len(nd.Args) == 0 {
		return 0, fmt.Errorf("ingest: net device %q declares no port", nd.Name)
	}
	port, err := strconv.Atoi(nd.Args[len(nd.Args)-1])
	if err != nil || port <= 0 {
		return 0, fmt.Errorf("ingest: net device %q has no usable port in args %v", nd.Name, nd.Args)
	}
	return port, nil
}

// Run drains every configured net device's uplink queue. It returns once
// every such queue has been Closed by the caller (mqueue.Manager.Close),
// the same consumer-side shutdown idiom as mqueue.PublishBridge — a
// context isn't useful here since the call that should unblock a
// consumer's blocking Receive is closing the queue, not canceling a ctx.
func (u *Uplink) Run() error {
	var wg sync.WaitGroup

	for _, nd := range u.vehicle.NetDevices {
		port, err := devicePort(nd)
		if err != nil {
			log.Warnf("%s", err)
			continue
		}

		binding, err := u.bindings.Binding(port)
		if err != nil {
			return err
		}

		q := u.queues.UplinkQueue(nd.Name)
		if q == nil {
			log.Warnf("ingest: no uplink queue registered for device %q", nd.Name)
			continue
		}

		wg.Add(1)
		go func(name string, q *mqueue.Queue, b *PortBinding) {
			defer wg.Done()
			u.drain(name, q, b)
		}(nd.Name, q, binding)
	}

	wg.Wait()
	return nil
}

func (u *Uplink) drain(name string, q *mqueue.Queue, b *PortBinding) {
	for {
		msg, ok := q.Receive()
		if !ok {
			return
		}

		if res := b.SendTo(msg); res != gswerr.Success {
			log.Warnf("uplink: %s: sendto failed (%s; no learned address yet?)", name, res)
		}
	}
}
