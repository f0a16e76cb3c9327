// SPDX-FileCopyrightText: 2026 The quicsock Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package kvstore

import (
	"context"
	"fmt"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/quicsock/pkg/message"
	"github.com/dtn7/quicsock/pkg/socket"
)

// ServiceStats counts the handled operations.
type ServiceStats struct {
	Gets    uint64 `json:"gets"`
	Sets    uint64 `json:"sets"`
	Deletes uint64 `json:"deletes"`
}

// Service serves a Store through a message.Router.
type Service struct {
	store Store

	gets    atomic.Uint64
	sets    atomic.Uint64
	deletes atomic.Uint64
}

// NewService for the given Store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Register this Service's routes.
func (service *Service) Register(router *message.Router) {
	router.HandleRequest(Domain, ContentGet, service.handleGet)
	router.HandlePush(Domain, ContentSet, service.handleSet)
	router.HandlePush(Domain, ContentDelete, service.handleDelete)
}

// Stats returns a snapshot of the counters.
func (service *Service) Stats() ServiceStats {
	return ServiceStats{
		Gets:    service.gets.Load(),
		Sets:    service.sets.Load(),
		Deletes: service.deletes.Load(),
	}
}

func (service *Service) handleGet(session *socket.Session, env message.Envelope) (message.Envelope, error) {
	var req GetRequest
	if err := decodeRecord(env, &req); err != nil {
		return message.Envelope{}, err
	} else if req.Key == "" {
		return message.Envelope{}, ErrEmptyKey
	}

	value, found, err := service.store.Get(req.Key)
	if err != nil {
		log.WithFields(log.Fields{
			"session": session,
			"key":     req.Key,
			"error":   err,
		}).Error("Store failed to get key")
		return message.Envelope{}, fmt.Errorf("store failure")
	}

	service.gets.Add(1)
	return encodeRecord(ContentGet, GetReply{Key: req.Key, Value: value, Found: found})
}

func (service *Service) handleSet(session *socket.Session, env message.Envelope) error {
	var req SetRequest
	if err := decodeRecord(env, &req); err != nil {
		return err
	} else if req.Key == "" {
		return ErrEmptyKey
	}

	if err := service.store.Set(req.Key, req.Value); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"session": session,
		"key":     req.Key,
		"size":    len(req.Value),
	}).Debug("Stored key")

	service.sets.Add(1)
	return nil
}

func (service *Service) handleDelete(session *socket.Session, env message.Envelope) error {
	var req DeleteRequest
	if err := decodeRecord(env, &req); err != nil {
		return err
	} else if req.Key == "" {
		return ErrEmptyKey
	}

	if err := service.store.Delete(req.Key); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"session": session,
		"key":     req.Key,
	}).Debug("Deleted key")

	service.deletes.Add(1)
	return nil
}

// Client issues key/value operations over a connection.
type Client struct {
	conn message.Conn
}

// NewClient on top of a connection, e.g., a *client.Client.
func NewClient(conn message.Conn) *Client {
	return &Client{conn: conn}
}

// Get a key's value.
func (c *Client) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	env, err := encodeRecord(ContentGet, GetRequest{Key: key})
	if err != nil {
		return
	}

	reply, err := message.Call(ctx, c.conn, env)
	if err != nil {
		return
	}

	var rec GetReply
	if err = decodeRecord(reply, &rec); err != nil {
		return
	}
	return rec.Value, rec.Found, nil
}

// Set a key's value. Sets are pushed, so failures on the remote side are not reported.
func (c *Client) Set(ctx context.Context, key string, value []byte) error {
	env, err := encodeRecord(ContentSet, SetRequest{Key: key, Value: value})
	if err != nil {
		return err
	}
	return message.Send(ctx, c.conn, env)
}

// Delete a key. Deletes are pushed like sets.
func (c *Client) Delete(ctx context.Context, key string) error {
	env, err := encodeRecord(ContentDelete, DeleteRequest{Key: key})
	if err != nil {
		return err
	}
	return message.Send(ctx, c.conn, env)
}
