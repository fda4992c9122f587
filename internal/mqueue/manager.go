// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mqueue

import (
	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
)

// LogQueueName is the single, well-known log queue every producer
// (ingest, flush, message logger) shares.
const LogQueueName = "log"

// UplinkQueueName returns the per-device uplink queue name for device.
func UplinkQueueName(device string) string {
	return "uplink." + device
}

// Manager owns the log queue and one uplink queue per network device
// configured for a vehicle, built once at process startup and shared by
// every component (ingest, trigger flush, uplink children) that needs to
// push or drain a named queue.
type Manager struct {
	registry *Registry
	uplinks  []string
}

// NewManager builds a Manager for vehicle: the log queue always exists,
// plus one uplink queue per vcm.NetDevice.
func NewManager(vehicle *vcm.Vehicle) *Manager {
	m := &Manager{registry: NewRegistry()}
	m.registry.GetOrCreate(LogQueueName)

	for _, nd := range vehicle.NetDevices {
		name := UplinkQueueName(nd.Name)
		m.registry.GetOrCreate(name)
		m.uplinks = append(m.uplinks, name)
	}
	return m
}

// LogQueue returns the shared log queue.
func (m *Manager) LogQueue() *Queue {
	return m.registry.Get(LogQueueName)
}

// UplinkQueue returns the named device's uplink queue, or nil if device
// isn't configured.
func (m *Manager) UplinkQueue(device string) *Queue {
	return m.registry.Get(UplinkQueueName(device))
}

// UplinkDevices lists every configured uplink queue name, in vehicle
// NetDevice declaration order.
func (m *Manager) UplinkDevices() []string {
	return m.uplinks
}

// PushLogRecord encodes rec and enqueues it on the log queue, the single
// call site ingest, trigger flush, and the message logger all share.
func (m *Manager) PushLogRecord(rec *LogRecord) gswerr.Result {
	return m.registry.SendNamed(LogQueueName, EncodeLogRecord(rec))
}

// Close closes every queue the Manager owns, the shutdown signal every
// blocking Queue.Receive consumer (PublishBridge, Uplink's drain loop)
// waits on.
func (m *Manager) Close() {
	m.registry.CloseAll()
}
