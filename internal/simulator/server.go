// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package simulator implements a simulated Modbus RTU slave: a register
// model with optional persistence, served over a serial line or over TCP
// as plain RTU frames.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/ffutop/modbus-rtu/internal/config"
	"github.com/ffutop/modbus-rtu/internal/simulator/model"
	"github.com/ffutop/modbus-rtu/internal/simulator/persistence"
	rtupacket "github.com/ffutop/modbus-rtu/modbus/rtu"
	transport "github.com/ffutop/modbus-rtu/transport/rtu"
	"github.com/grid-x/serial"
)

// errFraming marks bytes that do not start a supported request frame.
var errFraming = errors.New("simulator: invalid request frame")

// Server answers RTU requests addressed to SlaveID.
type Server struct {
	SlaveID byte

	slave   *Slave
	storage persistence.Storage
}

// NewServer creates a server for slave, without persistence.
func NewServer(slaveID byte, slave *Slave) *Server {
	return &Server{SlaveID: slaveID, slave: slave}
}

// Open loads the register tables from the configured storage and returns a
// server for them. Close the server to save and release the storage.
func Open(cfg config.SimulatorConfig, slaveID byte) (*Server, error) {
	storage, err := persistence.New(cfg.Persistence.Type, cfg.Persistence.Path)
	if err != nil {
		return nil, err
	}
	m, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load registers: %w", err)
	}
	m.Limit(cfg.Registers)

	return &Server{
		SlaveID: slaveID,
		slave:   NewSlave(m, storage),
		storage: storage,
	}, nil
}

// Model returns the register tables served.
func (s *Server) Model() *model.DataModel {
	return s.slave.Model()
}

// Close saves the registers and releases the storage.
func (s *Server) Close() error {
	if s.storage == nil {
		return nil
	}
	err := s.storage.Save(s.slave.Model())
	if cerr := s.storage.Close(); err == nil {
		err = cerr
	}
	return err
}

// Serve reads request frames from rw and writes the responses back until
// ctx is done or rw reaches EOF. Requests are handled one at a time, the
// way a device on a half-duplex line does. Frames with a bad checksum or
// for another slave are dropped without a reply. If rw is an io.Closer it
// is closed when ctx is done, to unblock a pending read.
func (s *Server) Serve(ctx context.Context, rw io.ReadWriter) error {
	if c, ok := rw.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { c.Close() })
		defer stop()
	}

	buf := make([]byte, rtupacket.MaxRequestSize)
	for {
		if ctx.Err() != nil {
			return nil
		}

		n, err := readRequest(rw, buf)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
				return nil
			case errors.Is(err, serial.ErrTimeout):
				// idle line or a partial frame: resynchronise on the next byte
				continue
			case errors.Is(err, errFraming):
				slog.Warn("Invalid RTU frame header", "err", err)
				continue
			}
			return fmt.Errorf("simulator: read request: %w", err)
		}

		resp, ok := s.handle(buf[:n])
		if !ok {
			continue
		}
		if _, err := rw.Write(resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("simulator: write response: %w", err)
		}
	}
}

// readRequest reads one request frame into buf and returns its length.
func readRequest(r io.Reader, buf []byte) (int, error) {
	// enough of the header to cover ByteCount for 0x10
	if _, err := io.ReadFull(r, buf[:rtupacket.RequestHeaderSize]); err != nil {
		return 0, err
	}
	expectedLen, err := rtupacket.CalculateRequestLength(buf[1], buf[:rtupacket.RequestHeaderSize])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errFraming, err)
	}
	if expectedLen > len(buf) {
		return 0, fmt.Errorf("%w: length %d exceeds %d", errFraming, expectedLen, len(buf))
	}
	if _, err := io.ReadFull(r, buf[rtupacket.RequestHeaderSize:expectedLen]); err != nil {
		return 0, err
	}
	return expectedLen, nil
}

// handle decodes a request frame and returns the encoded response, or false
// when the frame gets no reply.
func (s *Server) handle(raw []byte) ([]byte, bool) {
	slog.Debug("Simulator received request", "frame", fmt.Sprintf("% X", raw))

	adu, err := rtupacket.Decode(raw)
	if err != nil {
		slog.Warn("RTU frame decode failed", "err", err)
		return nil, false
	}
	if adu.SlaveID != s.SlaveID {
		slog.Debug("Ignoring request for another slave", "slave_id", adu.SlaveID)
		return nil, false
	}

	respAdu := &rtupacket.ApplicationDataUnit{
		SlaveID: adu.SlaveID,
		Pdu:     s.slave.Process(adu.Pdu),
	}
	respRaw, err := respAdu.Encode()
	if err != nil {
		slog.Error("Failed to encode response", "err", err)
		return nil, false
	}
	slog.Debug("Simulator sending response", "frame", fmt.Sprintf("% X", respRaw))
	return respRaw, true
}

// ServeTCP accepts connections on l and serves RTU frames on each until ctx
// is done. l is closed on return.
func (s *Server) ServeTCP(ctx context.Context, l net.Listener) error {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()
	defer l.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	slog.Info("RTU over TCP simulator listening", "addr", l.Addr())
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("simulator: accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			slog.Info("New RTU over TCP client connected", "addr", conn.RemoteAddr())
			if err := s.Serve(ctx, conn); err != nil {
				slog.Error("Connection closed", "addr", conn.RemoteAddr(), "err", err)
			}
		}()
	}
}

// ListenTCP listens on address and serves it until ctx is done.
func (s *Server) ListenTCP(ctx context.Context, address string) error {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return s.ServeTCP(ctx, l)
}

// ListenSerial opens the serial device described by cfg and serves it
// until ctx is done.
func (s *Server) ListenSerial(ctx context.Context, cfg config.SerialConfig) error {
	spCfg := transport.SerialConfig(cfg)
	port, err := serial.Open(&spCfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}
	defer port.Close()
	slog.Info("RTU simulator listening", "device", cfg.Device, "slave_id", s.SlaveID)

	return s.Serve(ctx, port)
}
