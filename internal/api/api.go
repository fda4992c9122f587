// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api is the read-only HTTP status surface exposed by the daemons:
// /healthz, /metrics, /status, and /swagger/. It carries no authentication
// and no mutation endpoints (§6) — a process wanting to change shared-memory
// state uses the Viewer/Writer APIs directly, never this surface.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/WillMerges/GSW-2021-sub000/internal/tshm"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
	"github.com/WillMerges/GSW-2021-sub000/internal/viewer"
	"github.com/WillMerges/GSW-2021-sub000/pkg/log"
)

// Server serves the status/metrics HTTP surface over one Vehicle/TShm pair.
// It owns a private Viewer added to every packet in Nonblocking mode. A
// /status request reads only that Viewer's per-packet updated flags and
// never calls Update, so it takes no lock.
type Server struct {
	httpServer *http.Server
	vehicle    *vcm.Vehicle
	view       *viewer.Viewer
}

// packetStatus is the JSON shape of one packet in the /status response.
type packetStatus struct {
	Index     int      `json:"index"`
	Port      int      `json:"port,omitempty"`
	IsVirtual bool     `json:"is_virtual"`
	Updated   bool     `json:"updated"`
	Fields    []string `json:"measurements"`
}

// statusResponse is the JSON shape of the /status response.
type statusResponse struct {
	Device  string         `json:"device"`
	Packets []packetStatus `json:"packets"`
}

// New builds a Server for addr ("" disables listening — callers should skip
// calling Run). vehicle and shm are never mutated by this package.
func New(addr string, vehicle *vcm.Vehicle, shm *tshm.TShm) *Server {
	s := &Server{vehicle: vehicle}

	if shm != nil {
		v := viewer.New(vehicle, shm)
		v.AddAll()
		v.SetMode(viewer.Nonblocking)
		s.view = v
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/swagger/doc.json", s.handleSwaggerDoc).Methods(http.MethodGet)
	r.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	handler := handlers.CompressHandler(r)
	handler = handlers.CustomLoggingHandler(logWriter{}, handler, logFormatter)
	handler = handlers.RecoveryHandler()(handler)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Run listens and serves until the server is Shutdown, returning
// http.ErrServerClosed in that case (the caller should not treat it as an
// error).
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.httpServer.Close()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// swaggerDoc is a hand-written OpenAPI 2.0 document describing this
// read-only surface — small and static enough not to warrant a generated
// docs package.
const swaggerDoc = `{
  "swagger": "2.0",
  "info": {
    "title": "GSW telemetry bus status API",
    "description": "Read-only status, health, and metrics surface. No authentication, no mutation endpoints.",
    "version": "1.0"
  },
  "paths": {
    "/healthz": {
      "get": {
        "summary": "Liveness check",
        "responses": { "200": { "description": "ok" } }
      }
    },
    "/metrics": {
      "get": {
        "summary": "Prometheus metrics",
        "responses": { "200": { "description": "text exposition format" } }
      }
    },
    "/status": {
      "get": {
        "summary": "Vehicle packet table snapshot",
        "responses": { "200": { "description": "JSON status document" } }
      }
    }
  }
}`

func (s *Server) handleSwaggerDoc(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(swaggerDoc))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Device: s.vehicle.Device}

	for _, p := range s.vehicle.Packets {
		updated := false
		if s.view != nil {
			updated = s.view.PacketUpdated(p.Index)
		}
		resp.Packets = append(resp.Packets, packetStatus{
			Index:     p.Index,
			Port:      p.Port,
			IsVirtual: p.IsVirtual,
			Updated:   updated,
			Fields:    p.Measurement,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Infof("%s", string(p))
	return len(p), nil
}

func logFormatter(writer io.Writer, params handlers.LogFormatterParams) {
	writer.Write([]byte(params.Request.Method + " " + params.URL.Path + "\n"))
}
