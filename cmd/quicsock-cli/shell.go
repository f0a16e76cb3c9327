// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/dtn7/quicsock/pkg/kvstore"
	"github.com/dtn7/quicsock/pkg/message"
)

// errExit ends the shell.
var errExit = errors.New("exit")

// commandTimeout bounds a single command.
const commandTimeout = 10 * time.Second

const helpText = `Commands:
  get <key>          print a key's value
  set <key> <value>  store a value
  del <key>          delete a key
  ping               measure the round trip time
  help               show this help
  exit               leave the shell`

// shell executes the commands entered by the user.
type shell struct {
	conn message.Conn
	kv   *kvstore.Client
}

func newShell(conn message.Conn) *shell {
	return &shell{
		conn: conn,
		kv:   kvstore.NewClient(conn),
	}
}

// execute a single command line and return its output.
func (sh *shell) execute(ctx context.Context, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "get":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: get <key>")
		}
		value, found, err := sh.kv.Get(ctx, args[0])
		if err != nil {
			return "", err
		} else if !found {
			return "(not found)", nil
		}
		return string(value), nil

	case "set":
		if len(args) < 2 {
			return "", fmt.Errorf("usage: set <key> <value>")
		}
		// The value is everything after the key, including inner whitespace.
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), cmd))
		value := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		if err := sh.kv.Set(ctx, args[0], []byte(value)); err != nil {
			return "", err
		}
		return "OK", nil

	case "del", "delete":
		if len(args) != 1 {
			return "", fmt.Errorf("usage: del <key>")
		}
		if err := sh.kv.Delete(ctx, args[0]); err != nil {
			return "", err
		}
		return "OK", nil

	case "ping":
		rtt, err := message.Ping(ctx, sh.conn)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pong after %v", rtt), nil

	case "help":
		return helpText, nil

	case "exit", "quit":
		return "", errExit

	default:
		return "", fmt.Errorf("unknown command %q, try help", cmd)
	}
}

// run the interactive loop until the user exits or the connection is gone.
func (sh *shell) run(ctx context.Context, prompt string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("get"),
			readline.PcItem("set"),
			readline.PcItem("del"),
			readline.PcItem("ping"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		out, err := sh.execute(ctx, line)
		if errors.Is(err, errExit) {
			return nil
		} else if err != nil {
			fmt.Fprintf(rl.Stderr(), "error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Fprintln(rl.Stdout(), out)
		}
	}
}
