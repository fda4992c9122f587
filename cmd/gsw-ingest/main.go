// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command gsw-ingest is the packet-ingest daemon: it opens a vehicle's
// telemetry shared memory, binds one UDP listener per non-virtual packet,
// writes every correctly-sized datagram into its shared-memory slot, and
// drains one uplink queue per configured network device back out over the
// same learned address (§4.9).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"

	"github.com/WillMerges/GSW-2021-sub000/internal/api"
	"github.com/WillMerges/GSW-2021-sub000/internal/config"
	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/ingest"
	"github.com/WillMerges/GSW-2021-sub000/internal/mqueue"
	"github.com/WillMerges/GSW-2021-sub000/internal/runtimeEnv"
	"github.com/WillMerges/GSW-2021-sub000/internal/sched"
	"github.com/WillMerges/GSW-2021-sub000/internal/tshm"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
	"github.com/WillMerges/GSW-2021-sub000/pkg/log"
)

func main() {
	var (
		flagConfigFile = flag.String("config", "./config.json", "daemon configuration file")
		flagVehicle    = flag.String("vehicle", "", "vehicle configuration file (net/packet/measurement grammar)")
		flagGops       = flag.Bool("gops", false, "listen via github.com/google/gops/agent (for debugging)")
	)
	flag.Parse()

	if *flagVehicle == "" {
		log.Fatal("gsw-ingest: -vehicle is required")
	}

	if err := runtimeEnv.LoadEnvFile("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("gsw-ingest: parsing './.env': %s", err.Error())
	}

	if err := config.Init(*flagConfigFile); err != nil {
		log.Fatalf("gsw-ingest: %s", err.Error())
	}
	log.SetLogLevel(config.Keys.LogLevel)

	if *flagGops || config.Keys.Gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gsw-ingest: gops/agent.Listen: %s", err.Error())
		}
	}

	vehicle, err := vcm.Load(*flagVehicle)
	if err != nil {
		log.Fatalf("gsw-ingest: loading vehicle %s: %s", *flagVehicle, err.Error())
	}

	shmRoot := config.Keys.GswHome + "/shm"
	shm := tshm.New(shmRoot, vehicle)
	if res := shm.Open(); res != gswerr.Success {
		log.Fatalf("gsw-ingest: opening shared memory at %s: %s", shmRoot, res)
	}
	defer shm.Close()

	queues := mqueue.NewManager(vehicle)

	ingester := ingest.New(vehicle, shm, queues)
	uplink := ingest.NewUplink(vehicle, queues, ingester)

	scheduler, err := sched.New()
	if err != nil {
		log.Fatalf("gsw-ingest: scheduler: %s", err.Error())
	}
	if err := scheduler.ReportQueueDepth(time.Minute, queues); err != nil {
		log.Fatalf("gsw-ingest: scheduling queue-depth report: %s", err.Error())
	}
	scheduler.Start()
	defer scheduler.Shutdown()

	httpServer := api.New(config.Keys.HttpAddr, vehicle, shm)
	if config.Keys.HttpAddr != "" {
		go func() {
			if err := httpServer.Run(); err != nil {
				log.Debugf("gsw-ingest: status server stopped: %s", err.Error())
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 2)
	go func() { done <- ingester.Run(ctx) }()
	go func() { done <- uplink.Run() }()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	runtimeEnv.SystemdNotifiy(true, "running")

	remaining := 2
	select {
	case <-sigs:
		log.Info("gsw-ingest: shutting down")
	case err := <-done:
		remaining--
		if err != nil {
			log.Errorf("gsw-ingest: worker exited: %s", err.Error())
		}
	}

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	cancel()
	queues.Close()
	httpServer.Shutdown()
	for ; remaining > 0; remaining-- {
		<-done
	}
}
