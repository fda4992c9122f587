// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package trigger

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/WillMerges/GSW-2021-sub000/internal/vcm"
)

// Trigger is one parsed trigger-file line: when Source's packet updates,
// Func is invoked with Args.
type Trigger struct {
	Source   *vcm.Measurement
	Func     Func
	FuncName string
	Args     []*vcm.Measurement
	UniqueID int
}

// parseFile reads the trigger file named by veh.TriggerFile (or, if empty,
// $GSW_HOME/data/default/virtual, mirroring calc.cpp's two-overload
// parse_vfile) and returns the triggers it declares, in file order.
//
// Grammar per line: "<source_meas> <FUNCTION_NAME> <arg_meas>*" — blank
// lines and lines starting with '#' are skipped. The leading measurement
// only decides *when* the trigger fires (the same measurement it names is
// not implicitly prepended to the argument list; the line must list every
// argument each function needs explicitly, matching trigger_func_list's
// min/max arity in the original).
func parseFile(veh *vcm.Vehicle) ([]*Trigger, error) {
	path := veh.TriggerFile
	if path == "" {
		home := os.Getenv("GSW_HOME")
		if home == "" {
			return nil, fmt.Errorf("trigger: GSW_HOME is not set and no trigger file was given")
		}
		path = home + "/data/default/virtual"
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, errFileNotFound{path}
	}
	if err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}
	defer f.Close()

	var triggers []*Trigger
	uniqueID := 0

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("trigger: %s:%d: missing information on line: %q", path, lineNo, line)
		}

		sourceName, funcName := fields[0], fields[1]

		source := veh.GetInfo(sourceName)
		if source == nil {
			return nil, fmt.Errorf("trigger: %s:%d: no such measurement: %s", path, lineNo, sourceName)
		}

		e, ok := registry[funcName]
		if !ok {
			return nil, fmt.Errorf("trigger: %s:%d: no such trigger function: %s", path, lineNo, funcName)
		}

		argNames := fields[2:]
		args := make([]*vcm.Measurement, 0, len(argNames))
		for _, name := range argNames {
			m := veh.GetInfo(name)
			if m == nil {
				return nil, fmt.Errorf("trigger: %s:%d: no such measurement: %s", path, lineNo, name)
			}
			args = append(args, m)
		}

		if len(args) < e.minArgs {
			return nil, fmt.Errorf("trigger: %s:%d: too few arguments for trigger: %s", path, lineNo, funcName)
		}
		if len(args) > e.maxArgs {
			return nil, fmt.Errorf("trigger: %s:%d: too many arguments for trigger: %s", path, lineNo, funcName)
		}

		triggers = append(triggers, &Trigger{
			Source:   source,
			Func:     e.fn,
			FuncName: funcName,
			Args:     args,
			UniqueID: uniqueID,
		})
		uniqueID++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("trigger: %s: %w", path, err)
	}

	return triggers, nil
}

type errFileNotFound struct{ path string }

func (e errFileNotFound) Error() string {
	return fmt.Sprintf("trigger: file not found: %s", e.path)
}
