// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtuovertcp carries plain RTU frames, CRC included and without an
// MBAP header, over a TCP stream, as serial device servers do.
package rtuovertcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu/internal/config"
)

const (
	tcpTimeout = 10 * time.Second
)

// Port is a transport/rtu Port on a TCP connection. It dials on first use,
// bounds every exchange by Timeout and drops the connection after any I/O
// error so the next request starts on a clean stream.
type Port struct {
	Address string
	Timeout time.Duration

	mu       sync.Mutex
	conn     net.Conn
	deadline time.Time
}

// NewPort allocates a Port for cfg.
func NewPort(cfg config.TcpConfig) *Port {
	p := &Port{
		Address: cfg.Address,
		Timeout: cfg.Timeout,
	}
	if p.Timeout <= 0 {
		p.Timeout = tcpTimeout
	}
	return p
}

// Connect dials the remote end unless already connected.
func (p *Port) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connect(ctx)
}

// connect ensures there is an active connection. Caller must hold the mutex.
func (p *Port) connect(ctx context.Context) error {
	if p.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: p.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return fmt.Errorf("modbus: failed to connect to %s: %w", p.Address, err)
	}
	slog.Debug("modbus: connected", "addr", p.Address)
	p.conn = conn
	return nil
}

// Write sends b, connecting first if needed. Writing starts an exchange:
// the connection deadline is reset to Timeout from now, or to the deadline
// set by SetDeadline if that is earlier.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(context.Background()); err != nil {
		return 0, err
	}
	if err := p.conn.SetDeadline(p.exchangeDeadline()); err != nil {
		p.close()
		return 0, err
	}
	n, err := p.conn.Write(b)
	if err != nil {
		// force reconnect next time
		p.close()
	}
	return n, err
}

// Read reads from the connection. Without a connection it returns io.EOF.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return 0, io.EOF
	}
	n, err := conn.Read(b)
	if err != nil {
		// a late reply would desynchronise the stream
		p.mu.Lock()
		if p.conn == conn {
			p.close()
		}
		p.mu.Unlock()
	}
	return n, err
}

// Flush is a no-op: TCP gives no way to know when bytes are on the wire.
func (p *Port) Flush() error {
	return nil
}

// SetDeadline bounds the current exchange further than Timeout does. The
// zero time clears it.
func (p *Port) SetDeadline(t time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.deadline = t
	if p.conn == nil {
		return nil
	}
	return p.conn.SetDeadline(p.exchangeDeadline())
}

func (p *Port) exchangeDeadline() time.Time {
	d := time.Now().Add(p.Timeout)
	if !p.deadline.IsZero() && p.deadline.Before(d) {
		return p.deadline
	}
	return d
}

// Close closes the connection.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.close()
	return nil
}

// close closes the connection and resets the state. Caller must hold the mutex.
func (p *Port) close() {
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
