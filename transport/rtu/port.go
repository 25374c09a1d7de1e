// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"bufio"
	"io"
	"time"

	rtupacket "github.com/ffutop/modbus-rtu/modbus/rtu"
)

// Port is the byte transport a Client drives. Write must write all bytes
// or fail; Flush returns once everything written has reached the line.
// The port owns serial line timing and never interprets frame contents.
type Port interface {
	io.Reader
	io.Writer
	Flush() error
}

// deadliner is implemented by ports that can bound blocking I/O, such as
// net.Conn.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// NopFlusher adapts rw, whose writes are on the wire once Write returns.
func NopFlusher(rw io.ReadWriter) Port {
	return nopFlusher{rw}
}

type nopFlusher struct {
	io.ReadWriter
}

func (nopFlusher) Flush() error {
	return nil
}

func (p nopFlusher) SetDeadline(t time.Time) error {
	if d, ok := p.ReadWriter.(deadliner); ok {
		return d.SetDeadline(t)
	}
	return nil
}

// BufferedPort collects a request in memory and hands it to rw in one
// Write on Flush.
type BufferedPort struct {
	rw io.ReadWriter
	w  *bufio.Writer
}

// NewBufferedPort wraps rw with a buffer large enough for any request.
func NewBufferedPort(rw io.ReadWriter) *BufferedPort {
	return &BufferedPort{
		rw: rw,
		w:  bufio.NewWriterSize(rw, rtupacket.MaxRequestSize),
	}
}

func (p *BufferedPort) Read(b []byte) (int, error) {
	return p.rw.Read(b)
}

func (p *BufferedPort) Write(b []byte) (int, error) {
	return p.w.Write(b)
}

func (p *BufferedPort) Flush() error {
	return p.w.Flush()
}

func (p *BufferedPort) SetDeadline(t time.Time) error {
	if d, ok := p.rw.(deadliner); ok {
		return d.SetDeadline(t)
	}
	return nil
}
