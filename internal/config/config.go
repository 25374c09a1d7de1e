// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. RTUCTL_SERIAL_DEVICE.
const EnvPrefix = "RTUCTL"

// Config defines the global configuration structure
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Slave     uint8           `mapstructure:"slave"` // Device address of the target (or simulated) slave
	Serial    SerialConfig    `mapstructure:"serial"`
	Tcp       TcpConfig       `mapstructure:"tcp"` // RTU over TCP; takes precedence over serial when set
	Poll      PollConfig      `mapstructure:"poll"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address string        `mapstructure:"address"` // e.g. "192.168.1.100:4001"
	Timeout time.Duration `mapstructure:"timeout"` // Per-exchange deadline
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device      string        `mapstructure:"device"`
	BaudRate    int           `mapstructure:"baud_rate"`
	DataBits    int           `mapstructure:"data_bits"`
	Parity      string        `mapstructure:"parity"`
	StopBits    int           `mapstructure:"stop_bits"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RqstPause   time.Duration `mapstructure:"rqst_pause"`   // Pause between requests
	IdleTimeout time.Duration `mapstructure:"idle_timeout"` // Close the port after this long unused

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// PollConfig defines the read repeated by "rtuctl poll".
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Table    string        `mapstructure:"table"` // "holding" or "input"
	Start    uint16        `mapstructure:"start"`
	Count    uint16        `mapstructure:"count"`
}

// SimulatorConfig defines the simulated slave served by "rtuctl simulate".
type SimulatorConfig struct {
	Listen      string            `mapstructure:"listen"`    // TCP listen address; empty serves serial.device
	Registers   int               `mapstructure:"registers"` // Addressable registers per table, 0 for all
	Persistence PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory", "file", "mmap"
	Path string `mapstructure:"path"` // File path for "file/mmap" type
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"device":    "serial.device",
	"baud_rate": "serial.baud_rate",
	"tcp":       "tcp.address",
	"slave":     "slave",
	"log_level": "log.level",
	"log_file":  "log.file",
}

// LoadConfig loads configuration from file, environment and flags, in
// increasing order of precedence. The "config" flag names the file; without
// it the default search paths are tried and a missing file is not an error.
func LoadConfig(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var configFile string
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
		if f := flags.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/rtuctl/")
		v.AddConfigPath("$HOME/.rtuctl")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	fixupSerial(&config.Serial)
	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("slave", 1)

	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 19200)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", 500*time.Millisecond)
	v.SetDefault("serial.rqst_pause", 100*time.Millisecond)
	v.SetDefault("serial.idle_timeout", 60*time.Second)
	v.SetDefault("serial.rs485", false)
	v.SetDefault("serial.delay_rts_before_send", 0)
	v.SetDefault("serial.delay_rts_after_send", 0)
	v.SetDefault("serial.rts_high_during_send", false)
	v.SetDefault("serial.rts_high_after_send", false)
	v.SetDefault("serial.rx_during_tx", false)

	v.SetDefault("tcp.address", "")
	v.SetDefault("tcp.timeout", 1*time.Second)

	v.SetDefault("poll.interval", 1*time.Second)
	v.SetDefault("poll.table", "holding")
	v.SetDefault("poll.start", 0)
	v.SetDefault("poll.count", 1)

	v.SetDefault("simulator.listen", "")
	v.SetDefault("simulator.registers", 0)
	v.SetDefault("simulator.persistence.type", "memory")
	v.SetDefault("simulator.persistence.path", "")
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
	if s.RqstPause == 0 {
		s.RqstPause = 100 * time.Millisecond
	}
}

func (c *Config) validate() error {
	switch c.Serial.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid serial parity %q", c.Serial.Parity)
	}
	switch c.Poll.Table {
	case "holding", "input":
	default:
		return fmt.Errorf("invalid poll table %q", c.Poll.Table)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.Poll.Interval)
	}
	if c.Simulator.Registers < 0 || c.Simulator.Registers > 65536 {
		return fmt.Errorf("simulator registers %d out of range", c.Simulator.Registers)
	}
	switch c.Simulator.Persistence.Type {
	case "memory", "":
	case "file", "mmap":
		if c.Simulator.Persistence.Path == "" {
			return fmt.Errorf("persistence type %q needs a path", c.Simulator.Persistence.Type)
		}
	default:
		return fmt.Errorf("unknown persistence type %q", c.Simulator.Persistence.Type)
	}
	return nil
}
