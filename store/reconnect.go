// Copyright 2025 StrongDM Inc
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/ipfs/go-cid"
)

// Default reconnection settings.
const (
	DefaultMaxRetries    = 5
	DefaultRetryDelay    = 100 * time.Millisecond
	DefaultMaxRetryDelay = 30 * time.Second
	DefaultQueueSize     = 10_000
)

// DialFunc creates a new RemoteClient connection. Used for dependency
// injection in tests.
type DialFunc func() (*RemoteClient, error)

// ReconnectingStore wraps a RemoteClient with automatic reconnection and
// request queuing, so that transient network failures against the backing
// block server don't have to be handled by every caller. It implements
// BlockStore.
type ReconnectingStore struct {
	client *RemoteClient
	mu     sync.Mutex

	addr    string
	useTLS  bool
	options []ClientOption

	dialFunc DialFunc

	maxRetries    int
	retryDelay    time.Duration
	maxRetryDelay time.Duration
	onReconnect   func(sessionID uint64)

	queue     chan *queuedRequest
	queueSize int

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    bool
}

type queuedRequest struct {
	ctx      context.Context
	op       func(*RemoteClient) error
	resultCh chan error
	desc     string
}

// ReconnectOption configures reconnection behavior.
type ReconnectOption func(*ReconnectingStore)

// WithMaxRetries sets maximum reconnection attempts (default: 5).
func WithMaxRetries(n int) ReconnectOption {
	return func(rc *ReconnectingStore) { rc.maxRetries = n }
}

// WithRetryDelay sets initial retry delay with exponential backoff (default: 100ms).
func WithRetryDelay(d time.Duration) ReconnectOption {
	return func(rc *ReconnectingStore) { rc.retryDelay = d }
}

// WithMaxRetryDelay sets maximum retry delay cap (default: 30s).
func WithMaxRetryDelay(d time.Duration) ReconnectOption {
	return func(rc *ReconnectingStore) { rc.maxRetryDelay = d }
}

// WithQueueSize sets the maximum number of queued requests (default: 10,000).
func WithQueueSize(n int) ReconnectOption {
	return func(rc *ReconnectingStore) { rc.queueSize = n }
}

// WithOnReconnect sets a callback invoked after successful reconnection.
func WithOnReconnect(fn func(sessionID uint64)) ReconnectOption {
	return func(rc *ReconnectingStore) { rc.onReconnect = fn }
}

// DialReconnecting creates a store with automatic reconnection and request
// queuing against a remote block server reachable over plain TCP.
func DialReconnecting(addr string, ropts []ReconnectOption, opts ...ClientOption) (*ReconnectingStore, error) {
	return dialReconnecting(addr, false, ropts, opts...)
}

// DialTLSReconnecting is DialReconnecting over TLS.
func DialTLSReconnecting(addr string, ropts []ReconnectOption, opts ...ClientOption) (*ReconnectingStore, error) {
	return dialReconnecting(addr, true, ropts, opts...)
}

func dialReconnecting(addr string, useTLS bool, ropts []ReconnectOption, opts ...ClientOption) (*ReconnectingStore, error) {
	ctx, cancel := context.WithCancel(context.Background())

	rc := &ReconnectingStore{
		addr:          addr,
		useTLS:        useTLS,
		options:       opts,
		maxRetries:    DefaultMaxRetries,
		retryDelay:    DefaultRetryDelay,
		maxRetryDelay: DefaultMaxRetryDelay,
		queueSize:     DefaultQueueSize,
		ctx:           ctx,
		cancel:        cancel,
	}

	rc.dialFunc = func() (*RemoteClient, error) {
		if useTLS {
			return DialTLS(addr, opts...)
		}
		return Dial(addr, opts...)
	}

	for _, opt := range ropts {
		opt(rc)
	}

	rc.queue = make(chan *queuedRequest, rc.queueSize)

	client, err := rc.dialFunc()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("initial connection failed: %w", err)
	}
	rc.client = client

	rc.wg.Add(1)
	go rc.sender()

	slog.Info("[wnfs] reconnecting store initialized",
		"addr", addr, "tls", useTLS, "queue_size", rc.queueSize, "session_id", client.SessionID())

	return rc, nil
}

func (rc *ReconnectingStore) sender() {
	defer rc.wg.Done()
	for {
		select {
		case <-rc.ctx.Done():
			rc.drainQueue(errors.New("store closed"))
			return
		case req := <-rc.queue:
			rc.processRequest(req)
		}
	}
}

func (rc *ReconnectingStore) processRequest(req *queuedRequest) {
	if req.ctx.Err() != nil {
		req.resultCh <- req.ctx.Err()
		return
	}

	rc.mu.Lock()
	client := rc.client
	rc.mu.Unlock()

	err := req.op(client)

	if err != nil && isConnectionError(err) {
		slog.Error("[wnfs] connection error, attempting reconnect", "error", err, "operation", req.desc)

		if reconnErr := rc.reconnect(req.ctx); reconnErr != nil {
			slog.Error("[wnfs] reconnection failed", "error", reconnErr, "original_error", err, "operation", req.desc)
			req.resultCh <- fmt.Errorf("%w (reconnect failed: %v)", err, reconnErr)
			return
		}

		rc.mu.Lock()
		client = rc.client
		rc.mu.Unlock()

		err = req.op(client)
		if err != nil {
			slog.Error("[wnfs] operation failed after reconnect", "error", err, "operation", req.desc)
		}
	}

	req.resultCh <- err
}

func (rc *ReconnectingStore) reconnect(ctx context.Context) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	delay := rc.retryDelay
	var lastErr error

	for attempt := 1; attempt <= rc.maxRetries; attempt++ {
		if attempt > 1 {
			slog.Info("[wnfs] reconnect attempt", "attempt", attempt, "max_attempts", rc.maxRetries, "delay", delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("reconnect cancelled: %w", ctx.Err())
			case <-rc.ctx.Done():
				return errors.New("store closed during reconnect")
			case <-time.After(delay):
			}

			delay = min(delay*2, rc.maxRetryDelay)
		}

		if rc.client != nil {
			rc.client.Close()
			rc.client = nil
		}

		newClient, err := rc.dialFunc()
		if err != nil {
			lastErr = err
			slog.Error("[wnfs] reconnect dial failed", "attempt", attempt, "error", err)
			continue
		}

		rc.client = newClient
		slog.Info("[wnfs] reconnected successfully", "attempt", attempt, "new_session_id", newClient.SessionID())

		if rc.onReconnect != nil {
			rc.onReconnect(newClient.SessionID())
		}
		return nil
	}

	return fmt.Errorf("reconnect failed after %d attempts: %w", rc.maxRetries, lastErr)
}

func (rc *ReconnectingStore) drainQueue(err error) {
	for {
		select {
		case req := <-rc.queue:
			req.resultCh <- err
		default:
			return
		}
	}
}

func (rc *ReconnectingStore) enqueue(ctx context.Context, desc string, op func(*RemoteClient) error) error {
	rc.mu.Lock()
	if rc.closed {
		rc.mu.Unlock()
		return ErrClientClosed
	}
	rc.mu.Unlock()

	req := &queuedRequest{ctx: ctx, op: op, resultCh: make(chan error, 1), desc: desc}

	select {
	case rc.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	default:
		slog.Error("[wnfs] request queue full, dropping request", "operation", desc, "queue_size", rc.queueSize)
		return errors.New("store: request queue full")
	}

	select {
	case err := <-req.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the store and drains any pending requests.
func (rc *ReconnectingStore) Close() error {
	var err error
	rc.closeOnce.Do(func() {
		rc.mu.Lock()
		rc.closed = true
		rc.mu.Unlock()

		rc.cancel()
		rc.wg.Wait()

		rc.mu.Lock()
		if rc.client != nil {
			err = rc.client.Close()
		}
		rc.mu.Unlock()

		slog.Info("[wnfs] reconnecting store closed")
	})
	return err
}

// SessionID returns the current session ID. It may change after reconnection.
func (rc *ReconnectingStore) SessionID() uint64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.client == nil {
		return 0
	}
	return rc.client.SessionID()
}

// QueueLength returns the current number of queued requests.
func (rc *ReconnectingStore) QueueLength() int { return len(rc.queue) }

// --- BlockStore ---

// Put implements BlockStore.
func (rc *ReconnectingStore) Put(ctx context.Context, data []byte, codec uint64) (cid.Cid, error) {
	var result cid.Cid
	err := rc.enqueue(ctx, "Put", func(c *RemoteClient) error {
		var opErr error
		result, opErr = c.Put(ctx, data, codec)
		return opErr
	})
	return result, err
}

// Get implements BlockStore.
func (rc *ReconnectingStore) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	var result []byte
	err := rc.enqueue(ctx, "Get", func(c *RemoteClient) error {
		var opErr error
		result, opErr = c.Get(ctx, id)
		return opErr
	})
	return result, err
}

// Has implements BlockStore.
func (rc *ReconnectingStore) Has(ctx context.Context, id cid.Cid) (bool, error) {
	var result bool
	err := rc.enqueue(ctx, "Has", func(c *RemoteClient) error {
		var opErr error
		result, opErr = c.Has(ctx, id)
		return opErr
	})
	return result, err
}

// --- Connection error detection ---

var connectionSyscallErrors = map[syscall.Errno]bool{
	syscall.ECONNRESET:   true,
	syscall.ECONNREFUSED: true,
	syscall.EPIPE:        true,
	syscall.ECONNABORTED: true,
	syscall.ENETUNREACH:  true,
	syscall.EHOSTUNREACH: true,
	syscall.ENETDOWN:     true,
	syscall.ETIMEDOUT:    true,
}

// IsConnectionError reports whether err indicates a broken connection that
// may be recoverable via reconnection. Exported so callers not using
// ReconnectingStore can implement their own retry logic.
func IsConnectionError(err error) bool { return isConnectionError(err) }

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrClientClosed) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return connectionSyscallErrors[errno]
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Err != nil {
			return isConnectionError(opErr.Err)
		}
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection reset", "connection refused", "broken pipe",
		"use of closed network connection", "network is unreachable",
		"no route to host", "connection timed out", "i/o timeout",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
