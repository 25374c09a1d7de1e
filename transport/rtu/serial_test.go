// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/ffutop/modbus-rtu/internal/config"
)

func TestSerialPort_CalculateDelay(t *testing.T) {
	tests := []struct {
		baudRate int
		chars    int
		want     time.Duration
	}{
		{0, 8, (750*8 + 1750) * time.Microsecond},
		{115200, 8, (750*8 + 1750) * time.Microsecond},
		{19200, 8, (781*8 + 1822) * time.Microsecond},
		{9600, 1, (1562 + 3645) * time.Microsecond},
	}

	for _, tt := range tests {
		p := &SerialPort{}
		p.BaudRate = tt.baudRate
		if got := p.calculateDelay(tt.chars); got != tt.want {
			t.Errorf("calculateDelay(%d) at %d baud = %v, want %v", tt.chars, tt.baudRate, got, tt.want)
		}
	}
}

func TestNewSerialPort(t *testing.T) {
	p := NewSerialPort(config.SerialConfig{
		Device:    "/dev/ttyUSB0",
		BaudRate:  9600,
		DataBits:  8,
		Parity:    "E",
		StopBits:  1,
		RqstPause: 20 * time.Millisecond,
		RS485:     true,
	})
	if p.Address != "/dev/ttyUSB0" || p.BaudRate != 9600 || p.Parity != "E" {
		t.Errorf("serial config = %+v", p.Config)
	}
	if !p.RS485.Enabled {
		t.Error("RS485 not enabled")
	}
	if p.Timeout != serialTimeout {
		t.Errorf("Timeout = %v, want default %v", p.Timeout, serialTimeout)
	}
	if p.RequestPause != 20*time.Millisecond {
		t.Errorf("RequestPause = %v", p.RequestPause)
	}
	if p.IdleTimeout != serialIdleTimeout {
		t.Errorf("IdleTimeout = %v, want default %v", p.IdleTimeout, serialIdleTimeout)
	}

	p = NewSerialPort(config.SerialConfig{Timeout: time.Second, IdleTimeout: time.Minute})
	if p.Timeout != time.Second || p.IdleTimeout != time.Minute {
		t.Errorf("Timeout/IdleTimeout = %v/%v", p.Timeout, p.IdleTimeout)
	}
}

func TestSerialPort_Transaction(t *testing.T) {
	reply := []byte{0x01, 0x06, 0x00, 0x04, 0x00, 0x68}
	reply = withCRC(reply...)

	writer := &bytes.Buffer{}
	mock := &mockSerial{Reader: bytes.NewReader(append(append([]byte(nil), reply...), reply...)), Writer: writer}

	var slept []time.Duration
	p := NewSerialPort(config.SerialConfig{BaudRate: 9600, RqstPause: time.Hour})
	p.IdleTimeout = 0
	p.port = mock
	p.sleep = func(d time.Duration) { slept = append(slept, d) }

	client := NewClient(p)
	if err := client.WriteHolding(context.Background(), 1, 4, 104); err != nil {
		t.Fatalf("first WriteHolding: %v", err)
	}
	if err := client.WriteHolding(context.Background(), 1, 4, 104); err != nil {
		t.Fatalf("second WriteHolding: %v", err)
	}

	if !bytes.Equal(writer.Bytes(), append(append([]byte(nil), reply...), reply...)) {
		t.Errorf("written = %X", writer.Bytes())
	}

	flushDelay := p.calculateDelay(8)
	if len(slept) != 3 || slept[0] != flushDelay || slept[2] != flushDelay {
		t.Fatalf("sleeps = %v, want [flush pause flush]", slept)
	}
	if slept[1] <= 0 || slept[1] > time.Hour {
		t.Errorf("request pause = %v", slept[1])
	}
}

func TestSerialPort_Close(t *testing.T) {
	mock := &mockSerial{Reader: bytes.NewReader(nil), Writer: &bytes.Buffer{}}
	p := NewSerialPort(config.SerialConfig{})
	p.port = mock
	p.pending = 3

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if !mock.closed || p.port != nil || p.pending != 0 {
		t.Errorf("after Close: closed=%v port=%v pending=%d", mock.closed, p.port, p.pending)
	}
	if n, err := p.Read(make([]byte, 1)); n != 0 || err == nil {
		t.Errorf("Read on closed port = %d, %v", n, err)
	}
}

func TestSerialPort_CloseIdle(t *testing.T) {
	mock := &mockSerial{Reader: bytes.NewReader(nil), Writer: &bytes.Buffer{}}
	p := NewSerialPort(config.SerialConfig{})
	p.IdleTimeout = time.Millisecond
	p.port = mock
	p.lastActivity = time.Now().Add(-time.Second)

	p.closeIdle()
	if !mock.closed {
		t.Error("idle port was not closed")
	}
}

type mockSerial struct {
	io.Reader
	io.Writer
	closed bool
}

func (m *mockSerial) Close() error {
	m.closed = true
	return nil
}
