// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/dtn7/quicsock/pkg/kvstore"
	"github.com/dtn7/quicsock/pkg/socket"
)

// defaultConfigFile is read if QUICSOCK_CONFIG is unset.
const defaultConfigFile = "data/config.toml"

// tomlConfig describes the configuration file.
type tomlConfig struct {
	Logging   logConf       `toml:"logging" yaml:"logging"`
	Socket    socketConf    `toml:"socket" yaml:"socket"`
	Store     storeConf     `toml:"store" yaml:"store"`
	Admin     adminConf     `toml:"admin" yaml:"admin"`
	Discovery discoveryConf `toml:"discovery" yaml:"discovery"`
	Profiling bool          `toml:"profiling" yaml:"profiling"`
}

// logConf describes the Logging-configuration block.
type logConf struct {
	Level        string `toml:"level" yaml:"level"`
	ReportCaller bool   `toml:"report-caller" yaml:"report-caller"`
	Format       string `toml:"format" yaml:"format"`
}

// socketConf describes the Socket-configuration block.
type socketConf struct {
	IdleTimeout         string `toml:"idle-timeout" yaml:"idle-timeout"`
	MaxBidiStreams      *int64 `toml:"max-bidi-streams" yaml:"max-bidi-streams"`
	MaxUniStreams       *int64 `toml:"max-uni-streams" yaml:"max-uni-streams"`
	MaxMessageSize      int    `toml:"max-message-size" yaml:"max-message-size"`
	Allow0RTT           *bool  `toml:"allow-0rtt" yaml:"allow-0rtt"`
	CertFile            string `toml:"cert-file" yaml:"cert-file"`
	KeyFile             string `toml:"key-file" yaml:"key-file"`
	GenerateCredentials bool   `toml:"generate-credentials" yaml:"generate-credentials"`
	WatchCredentials    bool   `toml:"watch-credentials" yaml:"watch-credentials"`
	ReusePort           bool   `toml:"reuse-port" yaml:"reuse-port"`
	Workers             int    `toml:"workers" yaml:"workers"`
	QueueSize           int    `toml:"queue-size" yaml:"queue-size"`
}

// storeConf describes the Store-configuration block.
type storeConf struct {
	Backend string `toml:"backend" yaml:"backend"`
	Path    string `toml:"path" yaml:"path"`
}

// adminConf describes the Admin-configuration block.
type adminConf struct {
	Listen string `toml:"listen" yaml:"listen"`
}

// discoveryConf describes the Discovery-configuration block.
type discoveryConf struct {
	IPv4     bool `toml:"ipv4" yaml:"ipv4"`
	IPv6     bool `toml:"ipv6" yaml:"ipv6"`
	Interval uint `toml:"interval" yaml:"interval"`
}

// daemonConf is the parsed configuration.
type daemonConf struct {
	socket    socket.Config
	workers   int
	queueSize int

	generateCredentials bool

	storeBackend string
	storePath    string

	adminListen string

	discovery discoveryConf
	profiling bool
}

// decodeConfig reads a TOML or, based on the file extension, YAML file. A
// missing file results in the default configuration.
func decodeConfig(filename string) (conf tomlConfig, err error) {
	data, err := os.ReadFile(filename)
	if errors.Is(err, fs.ErrNotExist) {
		log.WithField("file", filename).Info("No configuration file found, using defaults")
		return conf, nil
	} else if err != nil {
		return
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &conf)
	default:
		_, err = toml.Decode(string(data), &conf)
	}
	if err != nil {
		err = fmt.Errorf("parsing %s failed: %w", filename, err)
	}
	return
}

// setupLogging applies the Logging-configuration block.
func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// parseSocket derives the socket.Config, starting from its defaults.
func parseSocket(conf socketConf) (sockConf socket.Config, err error) {
	sockConf = socket.DefaultConfig()

	if conf.IdleTimeout != "" {
		if sockConf.IdleTimeout, err = time.ParseDuration(conf.IdleTimeout); err != nil {
			err = fmt.Errorf("socket.idle-timeout: %w", err)
			return
		}
	}
	if conf.MaxBidiStreams != nil {
		sockConf.MaxBidiStreams = *conf.MaxBidiStreams
	}
	if conf.MaxUniStreams != nil {
		sockConf.MaxUniStreams = *conf.MaxUniStreams
	}
	if conf.MaxMessageSize != 0 {
		sockConf.MaxMessageSize = conf.MaxMessageSize
	}
	if conf.Allow0RTT != nil {
		sockConf.Allow0RTT = *conf.Allow0RTT
	}
	if conf.CertFile != "" {
		sockConf.CertFile = conf.CertFile
	}
	if conf.KeyFile != "" {
		sockConf.KeyFile = conf.KeyFile
	}
	sockConf.WatchCredentials = conf.WatchCredentials
	sockConf.ReusePort = conf.ReusePort

	err = sockConf.Validate()
	return
}

// parseConfig reads and checks the whole configuration.
func parseConfig(filename string) (conf daemonConf, err error) {
	tomlConf, err := decodeConfig(filename)
	if err != nil {
		return
	}

	setupLogging(tomlConf.Logging)

	if conf.socket, err = parseSocket(tomlConf.Socket); err != nil {
		return
	}
	conf.workers = tomlConf.Socket.Workers
	conf.queueSize = tomlConf.Socket.QueueSize
	conf.generateCredentials = tomlConf.Socket.GenerateCredentials

	switch tomlConf.Store.Backend {
	case "", "memory":
		conf.storeBackend = "memory"
	case "badger":
		if tomlConf.Store.Path == "" {
			err = fmt.Errorf("store.path is empty")
			return
		}
		conf.storeBackend = "badger"
		conf.storePath = tomlConf.Store.Path
	default:
		err = fmt.Errorf("unknown store.backend \"%s\"", tomlConf.Store.Backend)
		return
	}

	conf.adminListen = tomlConf.Admin.Listen

	conf.discovery = tomlConf.Discovery
	if conf.discovery.Interval == 0 {
		conf.discovery.Interval = 10
	}

	conf.profiling = tomlConf.Profiling
	return
}

// openStore for the configured backend.
func (conf daemonConf) openStore() (kvstore.Store, error) {
	if conf.storeBackend == "badger" {
		return kvstore.NewBadgerStore(conf.storePath)
	}
	return kvstore.NewMemoryStore(), nil
}

// ensureCredentials writes self-signed credentials if configured and the files are missing.
func (conf daemonConf) ensureCredentials() error {
	if !conf.generateCredentials {
		return nil
	}

	_, certErr := os.Stat(conf.socket.CertFile)
	_, keyErr := os.Stat(conf.socket.KeyFile)
	if certErr == nil && keyErr == nil {
		return nil
	}

	log.WithFields(log.Fields{
		"cert": conf.socket.CertFile,
		"key":  conf.socket.KeyFile,
	}).Info("Generating self-signed credentials")

	for _, file := range []string{conf.socket.CertFile, conf.socket.KeyFile} {
		if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
			return err
		}
	}

	hostname, _ := os.Hostname()
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if hostname != "" {
		hosts = append(hosts, hostname)
	}
	return socket.WriteSelfSignedCredentials(conf.socket.CertFile, conf.socket.KeyFile, hosts...)
}
