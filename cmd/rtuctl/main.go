// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command rtuctl reads and writes registers of Modbus RTU devices over a
// serial line or an RTU over TCP link, and can simulate such a device.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ffutop/modbus-rtu/internal/config"
	"github.com/spf13/pflag"
)

const usage = `Usage: rtuctl [flags] <command> [args]

Commands:
  read-holdings <start> <count>      read holding registers (0x03)
  read-inputs <start> <count>        read input registers (0x04)
  write-holding <register> <value>   write a single holding register (0x06)
  write-holdings <start> <value>...  write holding registers (0x10)
  poll                               repeat the read configured under "poll"
  simulate                           serve a simulated slave

Flags:
`

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := newFlagSet(stderr)
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	// Load Configuration
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	setupLogger(cfg.Log, stderr)

	cmd, cmdArgs := flags.Arg(0), flags.Args()[1:]
	if err := dispatch(ctx, cfg, cmd, cmdArgs, stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "%v\n", err)
			flags.Usage()
			return 2
		}
		slog.Error("Command failed", "command", cmd, "err", err)
		return 1
	}
	return 0
}

func newFlagSet(stderr io.Writer) *pflag.FlagSet {
	flags := pflag.NewFlagSet("rtuctl", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.SetInterspersed(false)
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}

	flags.StringP("config", "c", "", "Configuration file path.")
	flags.StringP("device", "p", "", "Serial port device name.")
	flags.Uint("baud_rate", 0, "Serial port speed.")
	flags.StringP("tcp", "t", "", "RTU over TCP address; used instead of the serial port when set.")
	flags.Uint8P("slave", "s", 1, "Slave device address.")
	flags.StringP("log_level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	flags.StringP("log_file", "L", "", "Log file name ('-' for logging to STDERR only).")
	return flags
}

func setupLogger(cfg config.LogConfig, stderr io.Writer) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to open log file, falling back to stderr: %v\n", err)
			handler = slog.NewTextHandler(stderr, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
