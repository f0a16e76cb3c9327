// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery announces quicsock listeners in the local network and
// finds announced listeners through UDP multicast packages.
package discovery

const (
	// address4 is the default multicast IPv4 address used for discovery.
	address4 = "224.23.23.24"

	// address6 is the default multicast IPv6 address used for discovery.
	address6 = "ff02::24"

	// port is the default multicast UDP port used for discovery.
	port = 35040
)
