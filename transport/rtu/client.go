// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	rtupacket "github.com/ffutop/modbus-rtu/modbus/rtu"
)

// State is the progress of one transaction.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingResponse
	StateValidating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingResponse:
		return "awaiting_response"
	case StateValidating:
		return "validating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Client is a Modbus RTU master. Each call is exactly one request/response
// round trip on the port; nothing is retried. Calls on one Client are
// serialised because RTU has no way to tell interleaved replies apart.
//
// If a call is abandoned mid-flight the line may still carry part of a
// frame. The caller must let the line go idle before the next call.
//
// The context is checked before sending and before reading. Only its
// deadline reaches a read already in progress, and only on ports with
// SetDeadline; cancelling a context without a deadline does not interrupt
// a blocked read, which ends at the port's own timeout.
type Client struct {
	port   Port
	logger *slog.Logger
	states func(State)

	mu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for frame dumps.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithStateObserver registers fn to be called on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(c *Client) {
		c.states = fn
	}
}

// NewClient allocates a Client driving port.
func NewClient(port Port, opts ...Option) *Client {
	c := &Client{
		port:   port,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadHoldings reads count holding registers starting at startingRegister.
func (c *Client) ReadHoldings(ctx context.Context, addr byte, startingRegister, count uint16) ([]uint16, error) {
	if count > rtupacket.MaxRegisters {
		return nil, fmt.Errorf("%w: got %d", ErrTooManyRegisters, count)
	}
	req := rtupacket.NewReadHoldings(addr, startingRegister, count)
	resp := req.NewResponse()

	var data []uint16
	err := c.transact(ctx, req, resp.Bytes(), func() (err error) {
		data, err = resp.Validate(req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ReadInputs reads count input registers starting at startingRegister.
func (c *Client) ReadInputs(ctx context.Context, addr byte, startingRegister, count uint16) ([]uint16, error) {
	if count > rtupacket.MaxRegisters {
		return nil, fmt.Errorf("%w: got %d", ErrTooManyRegisters, count)
	}
	req := rtupacket.NewReadInputs(addr, startingRegister, count)
	resp := req.NewResponse()

	var data []uint16
	err := c.transact(ctx, req, resp.Bytes(), func() (err error) {
		data, err = resp.Validate(req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// WriteHolding writes value to a single holding register.
func (c *Client) WriteHolding(ctx context.Context, addr byte, register, value uint16) error {
	req := rtupacket.NewWriteHolding(addr, register, value)
	resp := req.NewResponse()
	return c.transact(ctx, req, resp.Bytes(), func() error {
		return resp.Validate(req)
	})
}

// WriteHoldings writes values to consecutive holding registers. At most
// 127 values are accepted; more is rejected before any I/O.
func (c *Client) WriteHoldings(ctx context.Context, addr byte, startingRegister uint16, values []uint16) error {
	req, err := rtupacket.NewWriteHoldings(addr, startingRegister, values)
	if err != nil {
		return err
	}
	resp := req.NewResponse()
	return c.transact(ctx, req, resp.Bytes(), func() error {
		return resp.Validate(req)
	})
}

// transact sends req, reads the reply into buf (zero-filled, sized for the
// normal response) and runs validate on it.
func (c *Client) transact(ctx context.Context, req rtupacket.Request, buf []byte, validate func() error) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.setState(StateIdle)
	defer func() {
		if err != nil {
			c.setState(StateFailed)
			c.logger.Debug("modbus transaction failed", "slave", req.Address(), "func", req.Function(), "err", err)
			return
		}
		c.setState(StateDone)
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if d, ok := c.port.(deadliner); ok {
			if err = d.SetDeadline(deadline); err != nil {
				return &IOError{Op: "set deadline", Err: err}
			}
			defer d.SetDeadline(time.Time{})
		}
	}

	c.setState(StateSending)
	c.logger.Debug("send to modbus slave", "request", hex.EncodeToString(req.Bytes()))
	if _, err = c.port.Write(req.Bytes()); err != nil {
		return &IOError{Op: "write", Err: err}
	}
	if err = c.port.Flush(); err != nil {
		return &IOError{Op: "flush", Err: err}
	}

	c.setState(StateAwaitingResponse)
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = c.readResponse(req, buf); err != nil {
		return err
	}
	c.logger.Debug("recv from modbus slave", "response", hex.EncodeToString(buf))

	c.setState(StateValidating)
	return validate()
}

// readResponse fills buf with exactly len(buf) bytes. An exception reply
// is shorter than any normal response, so the header is read first and an
// exception is finished and reported on its own.
func (c *Client) readResponse(req rtupacket.Request, buf []byte) error {
	if _, err := io.ReadFull(c.port, buf[:rtupacket.HeaderSize]); err != nil {
		return readError(err)
	}
	if rtupacket.IsExceptionHeader(buf, req) {
		exception := make([]byte, rtupacket.ExceptionSize)
		copy(exception, buf[:rtupacket.HeaderSize])
		if _, err := io.ReadFull(c.port, exception[rtupacket.HeaderSize:]); err != nil {
			return readError(err)
		}
		c.logger.Debug("recv exception from modbus slave", "response", hex.EncodeToString(exception))
		return rtupacket.ValidateException(exception, req)
	}
	if _, err := io.ReadFull(c.port, buf[rtupacket.HeaderSize:]); err != nil {
		return readError(err)
	}
	return nil
}

func (c *Client) setState(s State) {
	if c.states != nil {
		c.states(s)
	}
}
