// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command gsw-trigger is the virtual-telemetry daemon: it opens a vehicle's
// telemetry shared memory, loads the trigger file, and runs the trigger
// engine's blocking event loop until shut down, logging one record per
// flushed virtual packet.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gops/agent"

	"github.com/WillMerges/GSW-2021-sub000/internal/api"
	"github.com/WillMerges/GSW-2021-sub000/internal/config"
	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/mqueue"
	"github.com/WillMerges/GSW-2021-sub000/internal/runtimeEnv"
	"github.com/WillMerges/GSW-2021-sub000/internal/tshm"
	"github.com/WillMerges/GSW-2021-sub000/internal/trigger"
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
		log.Fatal("gsw-trigger: -vehicle is required")
	}

	if err := runtimeEnv.LoadEnvFile("./.env"); err != nil && !os.IsNotExist(err) {
		log.Fatalf("gsw-trigger: parsing './.env': %s", err.Error())
	}

	if err := config.Init(*flagConfigFile); err != nil {
		log.Fatalf("gsw-trigger: %s", err.Error())
	}
	log.SetLogLevel(config.Keys.LogLevel)

	if *flagGops || config.Keys.Gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gsw-trigger: gops/agent.Listen: %s", err.Error())
		}
	}

	vehicle, err := vcm.Load(*flagVehicle)
	if err != nil {
		log.Fatalf("gsw-trigger: loading vehicle %s: %s", *flagVehicle, err.Error())
	}

	shmRoot := config.Keys.GswHome + "/shm"
	shm := tshm.New(shmRoot, vehicle)
	if res := shm.Open(); res != gswerr.Success {
		log.Fatalf("gsw-trigger: opening shared memory at %s: %s", shmRoot, res)
	}
	defer shm.Close()

	engine, err := trigger.Load(vehicle, shm)
	if err != nil {
		log.Fatalf("gsw-trigger: loading trigger file: %s", err.Error())
	}

	queues := mqueue.NewManager(vehicle)
	engine.SetLogQueue(queues)

	httpServer := api.New(config.Keys.HttpAddr, vehicle, shm)
	if config.Keys.HttpAddr != "" {
		go func() {
			if err := httpServer.Run(); err != nil {
				log.Debugf("gsw-trigger: status server stopped: %s", err.Error())
			}
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("gsw-trigger: shutting down")
		engine.SigHandler()
	}()

	runtimeEnv.SystemdNotifiy(true, "running")

	for {
		res := engine.RunOnce(0)
		switch res {
		case gswerr.Success:
			continue
		case gswerr.Interrupted:
			log.Info("gsw-trigger: interrupted, exiting")
		default:
			log.Errorf("gsw-trigger: event loop exited: %s", res)
		}
		break
	}

	runtimeEnv.SystemdNotifiy(false, "shutting down")
	queues.Close()
	httpServer.Shutdown()
}
