// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2020 Markus Sommer
// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/schollz/peerdiscovery"
)

// Peer is an announced listener together with the address it was heard from.
type Peer struct {
	Address      string
	Announcement Announcement
}

// Addr is the host:port to dial this Peer's listener.
func (peer Peer) Addr() string {
	return net.JoinHostPort(peer.Address, strconv.FormatUint(uint64(peer.Announcement.Port), 10))
}

func (peer Peer) String() string {
	return fmt.Sprintf("Peer(%s,%s)", peer.Addr(), peer.Announcement.ALPN)
}

// Manager publishes Announcements and reports received ones.
type Manager struct {
	NotifyFunc func(Peer)

	stopChan4 chan struct{}
	stopChan6 chan struct{}
	closeOnce sync.Once
}

// NewManager for Announcements will be created and started. NotifyFunc may
// be nil if only announcing is of interest.
func NewManager(
	announcements []Announcement, notifyFunc func(Peer),
	announcementInterval time.Duration, ipv4, ipv6 bool) (*Manager, error) {

	if !ipv4 && !ipv6 {
		return nil, fmt.Errorf("neither IPv4 nor IPv6 is enabled")
	}

	var manager = &Manager{
		NotifyFunc: notifyFunc,
	}
	// Buffered, so that stopping an already failed discovery does not block.
	if ipv4 {
		manager.stopChan4 = make(chan struct{}, 1)
	}
	if ipv6 {
		manager.stopChan6 = make(chan struct{}, 1)
	}

	log.WithFields(log.Fields{
		"interval":      announcementInterval,
		"IPv4":          ipv4,
		"IPv6":          ipv6,
		"announcements": announcements,
	}).Info("Starting discovery Manager")

	msg, err := MarshalAnnouncements(announcements)
	if err != nil {
		return nil, err
	}

	for _, set := range settings(ipv4, ipv6) {
		set.Payload = msg
		set.Delay = announcementInterval
		set.TimeLimit = -1
		set.Notify = manager.notify

		if set.IPVersion == peerdiscovery.IPv4 {
			set.StopChan = manager.stopChan4
		} else {
			set.StopChan = manager.stopChan6
		}

		discoverErrChan := make(chan error)
		go func(set peerdiscovery.Settings) {
			_, discoverErr := peerdiscovery.Discover(set)
			discoverErrChan <- discoverErr
		}(set)

		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				manager.Close()
				return nil, discoverErr
			}

		case <-time.After(time.Second):
			break
		}
	}

	return manager, nil
}

// settings for each enabled IP version.
func settings(ipv4, ipv6 bool) (sets []peerdiscovery.Settings) {
	versions := []struct {
		active           bool
		multicastAddress string
		ipVersion        peerdiscovery.IPVersion
	}{
		{ipv4, address4, peerdiscovery.IPv4},
		{ipv6, address6, peerdiscovery.IPv6},
	}

	for _, version := range versions {
		if !version.active {
			continue
		}

		sets = append(sets, peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", port),
			MulticastAddress: version.multicastAddress,
			AllowSelf:        true,
			IPVersion:        version.ipVersion,
		})
	}
	return
}

func (manager *Manager) notify(discovered peerdiscovery.Discovered) {
	peers, err := parseDiscovered(discovered)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"discovery": manager,
			"peer":      discovered.Address,
		}).Warn("Peer discovery failed to parse incoming package")

		return
	}

	for _, peer := range peers {
		log.WithFields(log.Fields{
			"discovery": manager,
			"peer":      peer,
		}).Debug("Peer discovery received an announcement")

		if manager.NotifyFunc != nil {
			manager.NotifyFunc(peer)
		}
	}
}

func parseDiscovered(discovered peerdiscovery.Discovered) ([]Peer, error) {
	announcements, err := UnmarshalAnnouncements(discovered.Payload)
	if err != nil {
		return nil, err
	}

	peers := make([]Peer, 0, len(announcements))
	for _, announcement := range announcements {
		peers = append(peers, Peer{Address: discovered.Address, Announcement: announcement})
	}
	return peers, nil
}

// Close this Manager.
func (manager *Manager) Close() {
	manager.closeOnce.Do(func() {
		for _, c := range []chan struct{}{manager.stopChan4, manager.stopChan6} {
			if c != nil {
				c <- struct{}{}
			}
		}
	})
}

func (manager *Manager) String() string {
	return "discovery"
}

// Discover listens for the given duration and returns every announced
// listener with the given ALPN. An empty ALPN matches all listeners.
func Discover(timeout time.Duration, alpn string, ipv4, ipv6 bool) ([]Peer, error) {
	// An empty list is sent, so that others can parse our packages.
	msg, err := MarshalAnnouncements(nil)
	if err != nil {
		return nil, err
	}

	var (
		mutex sync.Mutex
		peers []Peer
		seen  = make(map[string]struct{})
		errs  []error
	)

	var wg sync.WaitGroup
	for _, set := range settings(ipv4, ipv6) {
		set.Payload = msg
		set.Delay = 250 * time.Millisecond
		set.TimeLimit = timeout

		wg.Add(1)
		go func(set peerdiscovery.Settings) {
			defer wg.Done()

			discovered, discoverErr := peerdiscovery.Discover(set)

			mutex.Lock()
			defer mutex.Unlock()

			if discoverErr != nil {
				errs = append(errs, discoverErr)
				return
			}

			for _, d := range discovered {
				found, parseErr := parseDiscovered(d)
				if parseErr != nil {
					continue
				}
				for _, peer := range found {
					if alpn != "" && peer.Announcement.ALPN != alpn {
						continue
					}
					if _, ok := seen[peer.Addr()]; ok {
						continue
					}
					seen[peer.Addr()] = struct{}{}
					peers = append(peers, peer)
				}
			}
		}(set)
	}
	wg.Wait()

	if len(peers) == 0 && len(errs) > 0 {
		return nil, errs[0]
	}
	return peers, nil
}
