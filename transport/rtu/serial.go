// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/modbus-rtu/internal/config"
	"github.com/grid-x/serial"
)

const (
	// Default timeout
	serialTimeout     = 5 * time.Second
	serialIdleTimeout = 60 * time.Second
)

// SerialPort is a Port on a local serial line. It opens the device on first
// use, closes it after IdleTimeout without traffic, and keeps the line
// silent for RequestPause before a new request goes out.
type SerialPort struct {
	// Serial port configuration.
	serial.Config

	IdleTimeout  time.Duration
	RequestPause time.Duration

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port         io.ReadWriteCloser
	lastActivity time.Time
	closeTimer   *time.Timer
	// pending counts bytes written since the last Flush.
	pending int

	sleep func(time.Duration)
}

// NewSerialPort maps cfg onto a serial port configuration.
func NewSerialPort(cfg config.SerialConfig) *SerialPort {
	p := &SerialPort{
		Config:       SerialConfig(cfg),
		IdleTimeout:  cfg.IdleTimeout,
		RequestPause: cfg.RqstPause,
		sleep:        time.Sleep,
	}
	if p.Timeout <= 0 {
		p.Timeout = serialTimeout
	}
	if p.IdleTimeout <= 0 {
		p.IdleTimeout = serialIdleTimeout
	}
	return p
}

// SerialConfig converts cfg to the options of serial.Open.
func SerialConfig(cfg config.SerialConfig) serial.Config {
	return serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
		RS485: serial.RS485Config{
			Enabled:            cfg.RS485,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		},
	}
}

func (p *SerialPort) Connect(ctx context.Context) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.connect(ctx)
}

// connect connects to the serial port if it is not connected. Caller must hold the mutex.
func (p *SerialPort) connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if p.port == nil {
		port, err := serial.Open(&p.Config)
		if err != nil {
			return fmt.Errorf("could not open %s: %w", p.Config.Address, err)
		}
		p.port = port
	}
	return nil
}

// Write sends the next part of a frame. The first write after a Flush
// starts a new request and waits out the request pause.
func (p *SerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connect(context.Background()); err != nil {
		return 0, err
	}
	if p.pending == 0 && p.RequestPause > 0 && !p.lastActivity.IsZero() {
		if idle := time.Since(p.lastActivity); idle < p.RequestPause {
			p.sleep(p.RequestPause - idle)
		}
	}

	n, err := p.port.Write(b)
	p.pending += n
	p.touch()
	return n, err
}

// Flush waits until the bytes written since the previous Flush have been
// shifted out, followed by the inter-frame gap.
func (p *SerialPort) Flush() error {
	p.mu.Lock()
	chars := p.pending
	p.pending = 0
	p.mu.Unlock()

	if chars > 0 {
		p.sleep(p.calculateDelay(chars))
	}
	return nil
}

func (p *SerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return 0, io.EOF
	}
	n, err := p.port.Read(b)
	p.touch()
	return n, err
}

func (p *SerialPort) Close() (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.close()
}

// close closes the serial port if it is connected. Caller must hold the mutex.
func (p *SerialPort) close() (err error) {
	if p.port != nil {
		err = p.port.Close()
		p.port = nil
	}
	p.pending = 0
	return
}

// touch records line activity. Caller must hold the mutex.
func (p *SerialPort) touch() {
	p.lastActivity = time.Now()
	p.startCloseTimer()
}

// calculateDelay calculates the needed delay to separate frames.
func (p *SerialPort) calculateDelay(chars int) time.Duration {
	var characterDelay, frameDelay int

	if p.BaudRate <= 0 || p.BaudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / p.BaudRate
		frameDelay = 35000000 / p.BaudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}

func (p *SerialPort) startCloseTimer() {
	if p.IdleTimeout <= 0 {
		return
	}
	if p.closeTimer == nil {
		p.closeTimer = time.AfterFunc(p.IdleTimeout, p.closeIdle)
	} else {
		p.closeTimer.Reset(p.IdleTimeout)
	}
}

// closeIdle closes the connection if last activity is passed behind IdleTimeout.
func (p *SerialPort) closeIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.IdleTimeout <= 0 {
		return
	}

	if idle := time.Since(p.lastActivity); idle >= p.IdleTimeout {
		slog.Debug("modbus: closing serial port due to idle timeout", "device", p.Config.Address, "idle", idle)
		p.close()
	}
}
