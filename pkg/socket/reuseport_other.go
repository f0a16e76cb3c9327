// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux
// +build !linux

package socket

import (
	"fmt"
	"runtime"
	"syscall"
)

// reusePortControl is only implemented on Linux.
func reusePortControl(_, _ string, _ syscall.RawConn) error {
	return fmt.Errorf("SO_REUSEPORT is not supported on %s", runtime.GOOS)
}
