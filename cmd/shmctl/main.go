// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command shmctl creates or destroys a vehicle's telemetry shared-memory
// segments, the Go analogue of the original's shmctl(-on|-off) operator
// tool (§6). It is deliberately tiny: no daemon loop, no HTTP surface, just
// one Create or Destroy call and an exit code.
package main

import (
	"flag"
	"os"

	"github.com/WillMerges/GSW-2021-sub000/internal/gswerr"
	"github.com/WillMerges/GSW-2021-sub000/internal/tshm"
	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
	"github.com/WillMerges/GSW-2021-sub000/pkg/log"
)

func main() {
	var (
		on         = flag.Bool("on", false, "create the vehicle's shared-memory segments")
		off        = flag.Bool("off", false, "destroy the vehicle's shared-memory segments")
		configFile = flag.String("f", "", "vehicle configuration file")
		shmRoot    = flag.String("shm-root", "", "root directory for shared-memory segment files (defaults to $GSW_HOME/shm)")
	)
	flag.Parse()

	if *on == *off {
		log.Crit("shmctl: exactly one of -on or -off is required")
		os.Exit(1)
	}
	if *configFile == "" {
		log.Crit("shmctl: -f <config file> is required")
		os.Exit(1)
	}

	root := *shmRoot
	if root == "" {
		home := os.Getenv("GSW_HOME")
		if home == "" {
			log.Crit("shmctl: -shm-root not set and GSW_HOME not set in environment")
			os.Exit(1)
		}
		root = home + "/shm"
	}

	vehicle, err := vcm.Load(*configFile)
	if err != nil {
		log.Critf("shmctl: loading %s: %s", *configFile, err)
		os.Exit(1)
	}

	shm := tshm.New(root, vehicle)

	var res gswerr.Result
	if *on {
		res = shm.Create()
	} else {
		res = shm.Destroy()
	}

	if res != gswerr.Success {
		log.Critf("shmctl: %s", res)
		os.Exit(1)
	}
}
