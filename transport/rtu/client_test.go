// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package rtu

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/ffutop/modbus-rtu/modbus"
	"github.com/ffutop/modbus-rtu/modbus/crc"
)

// withCRC appends the little-endian checksum of b.
func withCRC(b ...byte) []byte {
	sum := crc.Checksum(b)
	return append(b, byte(sum), byte(sum>>8))
}

// mockPort replays a canned reply and records what the client wrote.
type mockPort struct {
	io.Reader
	bytes.Buffer

	flushes   int
	readEarly bool
	writeErr  error
	flushErr  error
}

func newMockPort(reply []byte) *mockPort {
	return &mockPort{Reader: bytes.NewReader(reply)}
}

func (m *mockPort) Write(b []byte) (int, error) {
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	return m.Buffer.Write(b)
}

func (m *mockPort) Read(b []byte) (int, error) {
	if m.flushes == 0 {
		m.readEarly = true
	}
	return m.Reader.Read(b)
}

func (m *mockPort) Flush() error {
	m.flushes++
	return m.flushErr
}

func (m *mockPort) Close() error { return nil }

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestClient_ReadHoldings(t *testing.T) {
	reply := withCRC(0x01, 0x03, 0x08, 0x00, 0x04, 0x00, 0x05, 0x00, 0x06, 0x00, 0x07)
	port := newMockPort(reply)
	client := NewClient(port)

	got, err := client.ReadHoldings(context.Background(), 1, 4, 4)
	if err != nil {
		t.Fatalf("ReadHoldings failed: %v", err)
	}
	if !reflect.DeepEqual(got, []uint16{4, 5, 6, 7}) {
		t.Errorf("ReadHoldings() = %v", got)
	}

	expectedReq := withCRC(0x01, 0x03, 0x00, 0x04, 0x00, 0x04)
	if !bytes.Equal(port.Bytes(), expectedReq) {
		t.Errorf("Request mismatch.\nWant: %X\nGot:  %X", expectedReq, port.Bytes())
	}
	if port.flushes != 1 {
		t.Errorf("Flush called %d times, want 1", port.flushes)
	}
	if port.readEarly {
		t.Error("response read started before the request was flushed")
	}
}

func TestClient_ReadInputs(t *testing.T) {
	port := newMockPort(withCRC(0x01, 0x04, 0x04, 0xA0, 0x00, 0xA0, 0x01))
	client := NewClient(port)

	got, err := client.ReadInputs(context.Background(), 1, 0, 2)
	if err != nil {
		t.Fatalf("ReadInputs failed: %v", err)
	}
	if !reflect.DeepEqual(got, []uint16{40960, 40961}) {
		t.Errorf("ReadInputs() = %v", got)
	}
}

func TestClient_Writes(t *testing.T) {
	t.Run("WriteHolding", func(t *testing.T) {
		req := []byte{0x01, 0x06, 0x10, 0x01, 0x03, 0xE8, 0xDC, 0x74}
		port := newMockPort(req)
		if err := NewClient(port).WriteHolding(context.Background(), 1, 0x1001, 0x03E8); err != nil {
			t.Fatalf("WriteHolding failed: %v", err)
		}
		if !bytes.Equal(port.Bytes(), req) {
			t.Errorf("Request mismatch: %X", port.Bytes())
		}
	})

	t.Run("WriteHoldings", func(t *testing.T) {
		port := newMockPort(withCRC(0x01, 0x10, 0x00, 0x06, 0x00, 0x01))
		if err := NewClient(port).WriteHoldings(context.Background(), 1, 6, []uint16{59}); err != nil {
			t.Fatalf("WriteHoldings failed: %v", err)
		}
		want := withCRC(0x01, 0x10, 0x00, 0x06, 0x00, 0x01, 0x02, 0x00, 0x3B)
		if !bytes.Equal(port.Bytes(), want) {
			t.Errorf("Request mismatch.\nWant: %X\nGot:  %X", want, port.Bytes())
		}
	})
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		reply   []byte
		call    func(*Client) error
		wantErr error
	}{
		{
			"CRC",
			[]byte{0x01, 0x03, 0x02, 0xAA, 0xBB, 0xFF, 0xFF},
			func(c *Client) error {
				_, err := c.ReadHoldings(context.Background(), 1, 0, 1)
				return err
			},
			ErrCRC,
		},
		{
			"WrongSlave",
			withCRC(0x02, 0x03, 0x02, 0xAA, 0xBB),
			func(c *Client) error {
				_, err := c.ReadHoldings(context.Background(), 1, 0, 1)
				return err
			},
			ErrUnexpectedResponse,
		},
		{
			"WrongFunction",
			withCRC(0x01, 0x04, 0x02, 0xAA, 0xBB),
			func(c *Client) error {
				_, err := c.ReadHoldings(context.Background(), 1, 0, 1)
				return err
			},
			ErrUnexpectedResponse,
		},
		{
			"WrongEcho",
			withCRC(0x01, 0x06, 0x00, 0x04, 0x00, 0x69),
			func(c *Client) error {
				return c.WriteHolding(context.Background(), 1, 4, 104)
			},
			ErrUnexpectedResponse,
		},
		{
			"ShortReply",
			[]byte{0x01, 0x03, 0x02, 0xAA},
			func(c *Client) error {
				_, err := c.ReadHoldings(context.Background(), 1, 0, 1)
				return err
			},
			ErrUnexpectedEOF,
		},
		{
			"NoReply",
			nil,
			func(c *Client) error {
				return c.WriteHolding(context.Background(), 1, 4, 104)
			},
			ErrUnexpectedEOF,
		},
		{
			"Exception",
			withCRC(0x01, 0x90, 0x02),
			func(c *Client) error {
				return c.WriteHoldings(context.Background(), 1, 100, []uint16{1, 2})
			},
			ErrUnexpectedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(NewClient(newMockPort(tt.reply)))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_Exception(t *testing.T) {
	client := NewClient(newMockPort(withCRC(0x01, 0x83, 0x02)))

	_, err := client.ReadHoldings(context.Background(), 1, 20, 4)
	if !errors.Is(err, ErrUnexpectedResponse) {
		t.Fatalf("error = %v, want ErrUnexpectedResponse", err)
	}
	var exc *modbus.ExceptionError
	if !errors.As(err, &exc) || exc.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("error %v does not carry the illegal data address exception", err)
	}
}

func TestClient_IOError(t *testing.T) {
	boom := errors.New("boom")

	port := newMockPort(nil)
	port.writeErr = boom
	err := NewClient(port).WriteHolding(context.Background(), 1, 0, 0)
	var ioErr *IOError
	if !errors.As(err, &ioErr) || ioErr.Op != "write" || !errors.Is(err, boom) {
		t.Errorf("write failure: error = %v", err)
	}

	port = newMockPort(nil)
	port.flushErr = boom
	err = NewClient(port).WriteHolding(context.Background(), 1, 0, 0)
	if !errors.As(err, &ioErr) || ioErr.Op != "flush" {
		t.Errorf("flush failure: error = %v", err)
	}

	port = newMockPort(nil)
	port.Reader = errReader{boom}
	_, err = NewClient(port).ReadInputs(context.Background(), 1, 0, 1)
	if !errors.As(err, &ioErr) || ioErr.Op != "read" || errors.Is(err, ErrUnexpectedEOF) {
		t.Errorf("read failure: error = %v", err)
	}
}

func TestClient_RejectsBeforeIO(t *testing.T) {
	port := newMockPort(nil)
	client := NewClient(port)

	if err := client.WriteHoldings(context.Background(), 1, 0, make([]uint16, 128)); !errors.Is(err, ErrTooManyRegisters) {
		t.Errorf("WriteHoldings(128) error = %v", err)
	}
	if _, err := client.ReadHoldings(context.Background(), 1, 0, 128); !errors.Is(err, ErrTooManyRegisters) {
		t.Errorf("ReadHoldings(128) error = %v", err)
	}
	if _, err := client.ReadInputs(context.Background(), 1, 0, 1000); !errors.Is(err, ErrTooManyRegisters) {
		t.Errorf("ReadInputs(1000) error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.WriteHolding(ctx, 1, 0, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled WriteHolding error = %v", err)
	}

	if port.Len() != 0 || port.flushes != 0 {
		t.Errorf("rejected calls touched the port: wrote %X, %d flushes", port.Bytes(), port.flushes)
	}
}

func TestClient_States(t *testing.T) {
	var states []State
	observe := WithStateObserver(func(s State) { states = append(states, s) })

	reply := []byte{0x01, 0x06, 0x10, 0x01, 0x03, 0xE8, 0xDC, 0x74}
	if err := NewClient(newMockPort(reply), observe).WriteHolding(context.Background(), 1, 0x1001, 0x03E8); err != nil {
		t.Fatal(err)
	}
	want := []State{StateIdle, StateSending, StateAwaitingResponse, StateValidating, StateDone}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}

	states = nil
	if err := NewClient(newMockPort(nil), observe).WriteHolding(context.Background(), 1, 0x1001, 0x03E8); err == nil {
		t.Fatal("expected error")
	}
	want = []State{StateIdle, StateSending, StateAwaitingResponse, StateFailed}
	if !reflect.DeepEqual(states, want) {
		t.Errorf("states = %v, want %v", states, want)
	}
}

func TestClient_Deadline(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	defer clientConn.Close()
	defer deviceConn.Close()

	// The device swallows the request and never answers.
	go io.ReadFull(deviceConn, make([]byte, 8))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(NopFlusher(clientConn))
	_, err := client.ReadHoldings(ctx, 1, 0, 1)
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("error = %v, want ErrUnexpectedEOF", err)
	}
}

func TestBufferedPort(t *testing.T) {
	clientConn, deviceConn := net.Pipe()
	defer clientConn.Close()
	defer deviceConn.Close()

	go func() {
		req := make([]byte, 8)
		if _, err := io.ReadFull(deviceConn, req); err != nil {
			return
		}
		deviceConn.Write(req)
	}()

	port := NewBufferedPort(clientConn)
	if err := NewClient(port).WriteHolding(context.Background(), 1, 4, 104); err != nil {
		t.Fatalf("WriteHolding over buffered port: %v", err)
	}
}
