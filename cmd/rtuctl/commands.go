// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/ffutop/modbus-rtu/internal/config"
	"github.com/ffutop/modbus-rtu/internal/simulator"
	"github.com/ffutop/modbus-rtu/transport/rtu"
	"github.com/ffutop/modbus-rtu/transport/rtuovertcp"
	"golang.org/x/time/rate"
)

// port is a transport/rtu Port that can be released.
type port interface {
	rtu.Port
	Close() error
}

func dispatch(ctx context.Context, cfg *config.Config, cmd string, args []string, out io.Writer) error {
	if cmd == "simulate" {
		return simulate(ctx, cfg)
	}

	var exec func(context.Context, *rtu.Client) error
	switch cmd {
	case "read-holdings", "read-inputs":
		start, count, err := parseRange(args)
		if err != nil {
			return err
		}
		table := "holding"
		if cmd == "read-inputs" {
			table = "input"
		}
		exec = func(ctx context.Context, c *rtu.Client) error {
			return read(ctx, c, cfg.Slave, table, start, count, out)
		}
	case "write-holding":
		if len(args) != 2 {
			return fmt.Errorf("%w: write-holding takes a register and a value", errUsage)
		}
		values, err := parseUint16s(args)
		if err != nil {
			return err
		}
		exec = func(ctx context.Context, c *rtu.Client) error {
			return c.WriteHolding(ctx, cfg.Slave, values[0], values[1])
		}
	case "write-holdings":
		if len(args) < 2 {
			return fmt.Errorf("%w: write-holdings takes a start register and at least one value", errUsage)
		}
		values, err := parseUint16s(args)
		if err != nil {
			return err
		}
		exec = func(ctx context.Context, c *rtu.Client) error {
			return c.WriteHoldings(ctx, cfg.Slave, values[0], values[1:])
		}
	case "poll":
		exec = func(ctx context.Context, c *rtu.Client) error {
			return poll(ctx, c, cfg, out)
		}
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	p := openPort(cfg)
	defer p.Close()
	return exec(ctx, rtu.NewClient(p))
}

func openPort(cfg *config.Config) port {
	if cfg.Tcp.Address != "" {
		slog.Debug("Using RTU over TCP", "addr", cfg.Tcp.Address)
		return rtuovertcp.NewPort(cfg.Tcp)
	}
	slog.Debug("Using serial port", "device", cfg.Serial.Device, "baud_rate", cfg.Serial.BaudRate)
	return rtu.NewSerialPort(cfg.Serial)
}

func read(ctx context.Context, c *rtu.Client, slave byte, table string, start, count uint16, out io.Writer) error {
	var (
		values []uint16
		err    error
	)
	if table == "input" {
		values, err = c.ReadInputs(ctx, slave, start, count)
	} else {
		values, err = c.ReadHoldings(ctx, slave, start, count)
	}
	if err != nil {
		return err
	}
	for i, v := range values {
		fmt.Fprintf(out, "%d\t%d\n", int(start)+i, v)
	}
	return nil
}

// poll repeats the configured read at poll.interval until ctx is done.
// Failed reads are logged and do not stop polling.
func poll(ctx context.Context, c *rtu.Client, cfg *config.Config, out io.Writer) error {
	limiter := rate.NewLimiter(rate.Every(cfg.Poll.Interval), 1)
	slog.Info("Polling", "slave", cfg.Slave, "table", cfg.Poll.Table, "start", cfg.Poll.Start, "count", cfg.Poll.Count, "interval", cfg.Poll.Interval)

	for {
		if err := limiter.Wait(ctx); err != nil {
			// context done
			return nil
		}
		if err := read(ctx, c, cfg.Slave, cfg.Poll.Table, cfg.Poll.Start, cfg.Poll.Count, out); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("Poll failed", "err", err)
		}
	}
}

func simulate(ctx context.Context, cfg *config.Config) error {
	srv, err := simulator.Open(cfg.Simulator, cfg.Slave)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Error("Failed to save registers", "err", err)
		}
	}()

	if cfg.Simulator.Listen != "" {
		return srv.ListenTCP(ctx, cfg.Simulator.Listen)
	}
	return srv.ListenSerial(ctx, cfg.Serial)
}

func parseRange(args []string) (start, count uint16, err error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("%w: expected a start register and a count", errUsage)
	}
	values, err := parseUint16s(args)
	if err != nil {
		return 0, 0, err
	}
	return values[0], values[1], nil
}

// parseUint16s accepts decimal, 0x hex and 0o octal numbers.
func parseUint16s(args []string) ([]uint16, error) {
	values := make([]uint16, len(args))
	for i, arg := range args {
		v, err := strconv.ParseUint(arg, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid register or value %q", errUsage, arg)
		}
		values[i] = uint16(v)
	}
	return values, nil
}
