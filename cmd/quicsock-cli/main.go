// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// quicsock-cli is an interactive shell for a quicsockd key/value store.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicsock/pkg/client"
	"github.com/dtn7/quicsock/pkg/discovery"
	"github.com/dtn7/quicsock/pkg/socket"
)

// printUsage of quicsock-cli and exit with an error code afterwards.
func printUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n\n", os.Args[0])

	_, _ = fmt.Fprintf(os.Stderr, "%s address port\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Connects to a quicsockd and starts an interactive shell.\n\n")

	_, _ = fmt.Fprintf(os.Stderr, "%s discover [seconds]\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  Lists quicsockd instances announcing themselves in the local network.\n\n")

	os.Exit(1)
}

func discover(args []string) {
	timeout := 3 * time.Second
	if len(args) == 1 {
		seconds, err := time.ParseDuration(args[0] + "s")
		if err != nil {
			printUsage()
		}
		timeout = seconds
	} else if len(args) > 1 {
		printUsage()
	}

	peers, err := discovery.Discover(timeout, socket.ALPN, true, false)
	if err != nil {
		log.WithError(err).Fatal("Discovery failed")
	}
	for _, peer := range peers {
		fmt.Println(peer.Addr())
	}
}

func connect(host, port string) {
	address := net.JoinHostPort(host, port)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := client.Dial(ctx, address, client.Options{InsecureSkipVerify: true})
	cancel()
	if err != nil {
		log.WithFields(log.Fields{
			"address": address,
			"error":   err,
		}).Fatal("Connecting failed")
	}
	defer conn.Close()

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-conn.Done()
		cancel()
	}()

	if err := newShell(conn).run(ctx, address+"> "); err != nil {
		log.WithError(err).Error("Shell errored")
	}
}

func main() {
	switch {
	case len(os.Args) >= 2 && os.Args[1] == "discover":
		discover(os.Args[2:])

	case len(os.Args) == 3:
		connect(os.Args[1], os.Args[2])

	default:
		printUsage()
	}
}
