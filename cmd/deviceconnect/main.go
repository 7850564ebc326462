// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/thejerf/suture/v4"

	"github.com/edgetether/deviceconnect/internal/devicehost"
	"github.com/edgetether/deviceconnect/internal/logging"
	_ "github.com/edgetether/deviceconnect/lib/automaxprocs"
	"github.com/edgetether/deviceconnect/lib/build"
	"github.com/edgetether/deviceconnect/lib/config"
	"github.com/edgetether/deviceconnect/lib/control"
	"github.com/edgetether/deviceconnect/lib/debugapi"
	"github.com/edgetether/deviceconnect/lib/engine"
	"github.com/edgetether/deviceconnect/lib/fileproto"
	"github.com/edgetether/deviceconnect/lib/liveness"
	"github.com/edgetether/deviceconnect/lib/portforward"
	"github.com/edgetether/deviceconnect/lib/shellproto"
	"github.com/edgetether/deviceconnect/lib/transport"
	"github.com/edgetether/deviceconnect/lib/updatetrigger"
)

var l = logging.NewAdapter("main")

// CLI is the top-level command surface, parsed by kong into a flat
// flag/env-backed struct.
type CLI struct {
	Host                string        `help:"Server URL to connect to." default:""`
	AuthToken           string        `help:"Bearer token used to authenticate the transport connection." env:"DEVICECONNECT_AUTH_TOKEN"`
	HealthcheckInterval time.Duration `help:"How often to run the liveness tick. <=0 disables it." default:"30s"`
	DialTimeout         time.Duration `help:"Timeout for a single transport connect attempt (stored in the config; not applied by the WebSocket transport)." default:"10s"`
	DebugListenAddr     string        `help:"Address to serve /metrics and /healthz on. Empty disables it." default:""`
	DisablePortForward  bool          `help:"Disable the PORT_FORWARD handler, answering it with an error." default:"false"`
	UpdateCheckCommand  string        `help:"Shell command run on a check_update trigger." default:""`
	InventoryCommand    string        `help:"Shell command run on a send_inventory trigger." default:""`
	Version             bool          `help:"Print the version and exit." default:"false"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli)

	log.SetFlags(0)
	if cli.Version {
		fmt.Println(build.LongVersion())
		return
	}
	l.Infof("%s", build.LongVersion())
	if !build.IsValidVersion(build.Version) {
		l.Warnf("build version %q does not look like a release tag", build.Version)
	}

	if err := run(cli); err != nil {
		l.Errorf("%s: %v", kctx.Command(), err)
		os.Exit(1)
	}
}

func run(cli CLI) error {
	cfg := config.Config{
		Host:                   cli.Host,
		AuthToken:              cli.AuthToken,
		HealthcheckInterval:    cli.HealthcheckInterval,
		HealthcheckIntervalSet: true,
		DialTimeout:            cli.DialTimeout,
		DebugListenAddr:        cli.DebugListenAddr,
	}.WithDefaults()

	root := suture.New("deviceconnect", suture.Spec{
		PassThroughPanics: true,
	})

	ws := transport.NewWebSocketTransport(transport.WebSocketConfig{
		Host:      cfg.Host,
		Path:      config.ConnectPath,
		AuthToken: cfg.AuthToken,
	})

	var eng *engine.Engine

	shellHost := devicehost.NewShell(func(data []byte) {
		if err := eng.EmitShellPrint(data); err != nil {
			l.Warnf("emit shell output: %v", err)
		}
	})

	var pf *portforward.Handler
	if !cli.DisablePortForward {
		pfHost := devicehost.NewPortForward(func(data []byte) {
			if err := eng.EmitPortForwardData(data); err != nil {
				l.Warnf("emit port-forward data: %v", err)
			}
		})
		pf = portforward.New(pfHost)
	}

	checkCmd := splitCommand(cli.UpdateCheckCommand)
	inventoryCmd := splitCommand(cli.InventoryCommand)

	eng = engine.New(engine.Deps{
		Transport:     ws,
		Shell:         shellproto.New(shellHost),
		File:          fileproto.New(devicehost.NewFile()),
		PortForward:   pf,
		UpdateTrigger: updatetrigger.New(devicehost.NewUpdate(checkCmd, inventoryCmd)),
		Control:       control.New(),
	})
	root.Add(eng)

	root.Add(liveness.New(eng, engine.NoopNetworkAccess{}, cfg.HealthcheckInterval))

	root.Add(debugapi.New(cfg.DebugListenAddr, ws))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return root.Serve(ctx)
}

// splitCommand turns a whitespace-separated command string into argv, or
// nil if empty. Quoting is not supported; configure a wrapper script for
// anything more complex.
func splitCommand(s string) []string {
	return strings.Fields(s)
}
