// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Binary protocol message types for the remote block store.
const (
	msgHello   uint16 = 1
	msgPut     uint16 = 2
	msgGet     uint16 = 3
	msgHas     uint16 = 4
	msgError   uint16 = 255
)

// Default timeouts.
const (
	DefaultDialTimeout    = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// RemoteClient speaks a small length-prefixed binary protocol to a remote
// block server. It implements BlockStore directly, so it can be handed to
// the WNFS core wherever a local store would go.
type RemoteClient struct {
	conn    net.Conn
	mu      sync.Mutex
	reqID   atomic.Uint64
	timeout time.Duration
	closed  bool

	sessionID uint64
	clientTag string
}

// ClientOption configures RemoteClient behavior.
type ClientOption func(*clientOptions)

type clientOptions struct {
	dialTimeout    time.Duration
	requestTimeout time.Duration
	clientTag      string
}

// WithDialTimeout sets the connection timeout.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.dialTimeout = d }
}

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.requestTimeout = d }
}

// WithClientTag sets the client identifier tag sent in the HELLO handshake.
func WithClientTag(tag string) ClientOption {
	return func(o *clientOptions) { o.clientTag = tag }
}

// Dial connects to a remote block server over plain TCP.
func Dial(addr string, opts ...ClientOption) (*RemoteClient, error) {
	o := resolveClientOptions(opts)

	conn, err := net.DialTimeout("tcp", addr, o.dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("store: dial: %w", err)
	}
	return newRemoteClient(conn, o)
}

// DialTLS connects to a remote block server over TLS.
func DialTLS(addr string, opts ...ClientOption) (*RemoteClient, error) {
	o := resolveClientOptions(opts)

	dialer := &net.Dialer{Timeout: o.dialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: dial tls: %w", err)
	}
	return newRemoteClient(conn, o)
}

func resolveClientOptions(opts []ClientOption) clientOptions {
	o := clientOptions{
		dialTimeout:    DefaultDialTimeout,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clientTag == "" {
		o.clientTag = uuid.NewString()
	}
	return o
}

func newRemoteClient(conn net.Conn, o clientOptions) (*RemoteClient, error) {
	c := &RemoteClient{
		conn:      conn,
		timeout:   o.requestTimeout,
		clientTag: o.clientTag,
	}
	if err := c.sendHello(o.clientTag, o.dialTimeout); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: hello: %w", err)
	}
	return c, nil
}

// Close closes the connection to the server.
func (c *RemoteClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// SessionID returns the session ID assigned by the server during HELLO.
func (c *RemoteClient) SessionID() uint64 { return c.sessionID }

// ClientTag returns the client tag used for this connection.
func (c *RemoteClient) ClientTag() string { return c.clientTag }

func (c *RemoteClient) sendHello(clientTag string, timeout time.Duration) error {
	payload := &bytes.Buffer{}
	_ = binary.Write(payload, binary.LittleEndian, uint16(1)) // protocol version
	_ = binary.Write(payload, binary.LittleEndian, uint16(len(clientTag)))
	payload.WriteString(clientTag)

	if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer func() { _ = c.conn.SetDeadline(time.Time{}) }()

	reqID := c.reqID.Add(1)
	if err := c.writeFrame(msgHello, reqID, payload.Bytes()); err != nil {
		return err
	}

	resp, err := c.readFrame()
	if err != nil {
		return err
	}
	if resp.msgType == msgError {
		return parseServerError(resp.payload)
	}
	if resp.msgType != msgHello {
		return fmt.Errorf("unexpected response type: %d", resp.msgType)
	}
	if len(resp.payload) >= 8 {
		c.sessionID = binary.LittleEndian.Uint64(resp.payload[0:8])
	}
	return nil
}

type frame struct {
	msgType uint16
	reqID   uint64
	payload []byte
}

func (c *RemoteClient) sendRequest(ctx context.Context, msgType uint16, payload []byte) (*frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	defer func() { _ = c.conn.SetDeadline(time.Time{}) }()

	reqID := c.reqID.Add(1)
	if err := c.writeFrame(msgType, reqID, payload); err != nil {
		return nil, err
	}

	resp, err := c.readFrame()
	if err != nil {
		return nil, err
	}
	if resp.msgType == msgError {
		return nil, parseServerError(resp.payload)
	}
	return resp, nil
}

func (c *RemoteClient) writeFrame(msgType uint16, reqID uint64, payload []byte) error {
	header := &bytes.Buffer{}
	_ = binary.Write(header, binary.LittleEndian, uint32(len(payload)))
	_ = binary.Write(header, binary.LittleEndian, msgType)
	_ = binary.Write(header, binary.LittleEndian, uint16(0)) // flags
	_ = binary.Write(header, binary.LittleEndian, reqID)

	_, err := c.conn.Write(append(header.Bytes(), payload...))
	return err
}

func (c *RemoteClient) readFrame() (*frame, error) {
	header := make([]byte, 16)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	msgType := binary.LittleEndian.Uint16(header[4:6])
	reqID := binary.LittleEndian.Uint64(header[8:16])

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	return &frame{msgType: msgType, reqID: reqID, payload: payload}, nil
}

func parseServerError(payload []byte) error {
	if len(payload) < 8 {
		return &ServerError{Code: 0, Detail: "unknown error"}
	}
	code := binary.LittleEndian.Uint32(payload[0:4])
	detailLen := binary.LittleEndian.Uint32(payload[4:8])
	detail := ""
	if int(detailLen) <= len(payload)-8 {
		detail = string(payload[8 : 8+detailLen])
	}
	return &ServerError{Code: code, Detail: detail}
}
