// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// quicsockd serves a key/value store over quicsock.
//
//	Usage: quicsockd <port>
//
// The configuration is read from data/config.toml or the file named by the
// QUICSOCK_CONFIG environment variable.
package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicsock/pkg/admin"
	"github.com/dtn7/quicsock/pkg/discovery"
	"github.com/dtn7/quicsock/pkg/kvstore"
	"github.com/dtn7/quicsock/pkg/message"
	"github.com/dtn7/quicsock/pkg/socket"
)

// waitSigint blocks the current thread until a SIGINT or SIGTERM appears.
func waitSigint() {
	signalSyn := make(chan os.Signal, 1)
	signal.Notify(signalSyn, os.Interrupt, syscall.SIGTERM)

	<-signalSyn
}

// parsePort from the command line argument.
func parsePort(arg string) (uint16, error) {
	port, err := strconv.ParseUint(arg, 10, 16)
	return uint16(port), err
}

// daemon bundles everything started by main.
type daemon struct {
	store     kvstore.Store
	engine    *socket.Engine
	ctx       *socket.Context
	listener  *socket.Listener
	admin     *admin.Server
	discovery *discovery.Manager
}

func startDaemon(conf daemonConf, port uint16) (d *daemon, err error) {
	d = &daemon{}
	defer func() {
		if err != nil {
			if closeErr := d.close(); closeErr != nil {
				log.WithError(closeErr).Warn("Cleaning up after failed start errored")
			}
			d = nil
		}
	}()

	if err = conf.ensureCredentials(); err != nil {
		return
	}

	if d.store, err = conf.openStore(); err != nil {
		return
	}
	service := kvstore.NewService(d.store)

	router := message.NewRouter()
	service.Register(router)
	observer := admin.NewObserver(router)

	d.engine = socket.NewEngine(conf.workers, conf.queueSize)
	if d.ctx, err = d.engine.Acquire(conf.socket); err != nil {
		return
	}

	if d.listener, err = socket.Bind(d.ctx, port, observer); err != nil {
		return
	}

	if conf.adminListen != "" {
		d.admin = admin.NewServer(d.listener, d.engine, observer)
		d.admin.AddStats("store", func() interface{} { return service.Stats() })

		if _, err = d.admin.ListenAndServe(conf.adminListen); err != nil {
			return
		}
	}

	if conf.discovery.IPv4 || conf.discovery.IPv6 {
		announcements := []discovery.Announcement{{ALPN: conf.socket.ALPN, Port: uint(d.listener.Port())}}
		d.discovery, err = discovery.NewManager(
			announcements, nil, time.Duration(conf.discovery.Interval)*time.Second,
			conf.discovery.IPv4, conf.discovery.IPv6)
		if err != nil {
			return
		}
	}

	return
}

// close everything in reverse order of starting it.
func (d *daemon) close() error {
	var result *multierror.Error

	if d.discovery != nil {
		d.discovery.Close()
	}
	if d.admin != nil {
		if err := d.admin.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if d.listener != nil {
		if err := d.listener.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if d.ctx != nil {
		d.ctx.Release()
	}
	if d.engine != nil {
		d.engine.Shutdown()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("Usage: %s <port>", os.Args[0])
	}

	port, err := parsePort(os.Args[1])
	if err != nil {
		log.WithFields(log.Fields{
			"port":  os.Args[1],
			"error": err,
		}).Fatal("Invalid port")
	}

	configFile := os.Getenv("QUICSOCK_CONFIG")
	if configFile == "" {
		configFile = defaultConfigFile
	}

	conf, err := parseConfig(configFile)
	if err != nil {
		log.WithFields(log.Fields{
			"file":  configFile,
			"error": err,
		}).Fatal("Failed to parse config")
	}

	if conf.profiling {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	d, err := startDaemon(conf, port)
	if err != nil {
		log.WithError(err).Fatal("Failed to start")
	}

	waitSigint()
	log.Info("Shutting down..")

	if err := d.close(); err != nil {
		log.WithError(err).Warn("Shutdown errored")
	}
}
