// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Gateways []GatewayConfig `mapstructure:"gateways"`
	Log      LogConfig       `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// GatewayConfig defines a single gateway instance: one downstream CAN
// bus bridged to any number of upstream servers.
type GatewayConfig struct {
	Name       string           `mapstructure:"name"`
	Nodes      string           `mapstructure:"nodes"` // Routing rules: "1", "0,1", "5-10"
	Downstream DownstreamConfig `mapstructure:"downstream"`
	Upstreams  []UpstreamConfig `mapstructure:"upstreams"`
}

// UpstreamConfig defines a bridge server clients connect to
type UpstreamConfig struct {
	Type    string `mapstructure:"type"`    // "tcp", "ws"
	Address string `mapstructure:"address"` // e.g. "0.0.0.0:29536"
	Path    string `mapstructure:"path"`    // WebSocket path; default "/can"
}

// DownstreamConfig defines the CAN bus the gateway attaches to
type DownstreamConfig struct {
	Type      string       `mapstructure:"type"`      // "socketcan", "slcan", "tcp", "ws", "local"
	Interface string       `mapstructure:"interface"` // Used if Type is "socketcan"
	Address   string       `mapstructure:"address"`   // Used if Type is "tcp", "ws" or slcan-over-tcp
	Path      string       `mapstructure:"path"`      // Used if Type is "ws"
	Serial    SerialConfig `mapstructure:"serial"`    // Used if Type is "slcan"
	Local     LocalConfig  `mapstructure:"local"`     // Used if Type is "local"
}

// LocalConfig defines the emulated axes hosted in-process
type LocalConfig struct {
	Axes []AxisConfig `mapstructure:"axes"`
}

// AxisConfig defines one emulated axis
type AxisConfig struct {
	NodeID          uint8             `mapstructure:"node_id"`
	HeartbeatPeriod time.Duration     `mapstructure:"heartbeat_period"`
	EncoderPeriod   time.Duration     `mapstructure:"encoder_period"`
	EndpointsFile   string            `mapstructure:"endpoints_file"`
	Persistence     PersistenceConfig `mapstructure:"persistence"`
}

// PersistenceConfig defines data storage settings
type PersistenceConfig struct {
	Type   string `mapstructure:"type"`   // "memory", "file", "mmap", "sql"
	Path   string `mapstructure:"path"`   // File path for "file/mmap" type
	Driver string `mapstructure:"driver"` // database/sql driver for "sql" type
	DSN    string `mapstructure:"dsn"`    // Data source name for "sql" type
}

// SerialConfig defines SLCAN adapter settings
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Bitrate  int           `mapstructure:"bitrate"` // CAN bit rate, e.g. 500000
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/cansimplegw/")
		v.AddConfigPath("$HOME/.cansimplegw")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CANGW")
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to found config file: %w", err)
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	for i := range config.Gateways {
		gw := &config.Gateways[i]

		if err := validateDownstream(&gw.Downstream); err != nil {
			return nil, fmt.Errorf("gateway %q: %w", gw.Name, err)
		}

		for j := range gw.Upstreams {
			if err := validateUpstream(&gw.Upstreams[j]); err != nil {
				return nil, fmt.Errorf("gateway %q: %w", gw.Name, err)
			}
		}
	}

	return &config, nil
}

func validateDownstream(d *DownstreamConfig) error {
	switch d.Type {
	case "socketcan":
		if d.Interface == "" {
			return fmt.Errorf("socketcan downstream needs an interface")
		}
	case "slcan":
		fixupSerial(&d.Serial)
		if d.Serial.Device == "" && d.Address == "" {
			return fmt.Errorf("slcan downstream needs a serial device or an address")
		}
	case "tcp", "ws":
		if d.Address == "" {
			return fmt.Errorf("%s downstream needs an address", d.Type)
		}
	case "local":
		if len(d.Local.Axes) == 0 {
			return fmt.Errorf("local downstream needs at least one axis")
		}
		for i := range d.Local.Axes {
			if err := validateAxis(&d.Local.Axes[i]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unknown downstream type %q", d.Type)
	}
	return nil
}

func validateUpstream(u *UpstreamConfig) error {
	switch u.Type {
	case "tcp", "ws":
		if u.Address == "" {
			return fmt.Errorf("%s upstream needs an address", u.Type)
		}
	default:
		return fmt.Errorf("unknown upstream type %q", u.Type)
	}
	return nil
}

func validateAxis(a *AxisConfig) error {
	switch a.Persistence.Type {
	case "", "memory":
	case "file", "mmap":
		if a.Persistence.Path == "" {
			return fmt.Errorf("axis %d: %s persistence needs a path", a.NodeID, a.Persistence.Type)
		}
	case "sql":
		if a.Persistence.Driver == "" || a.Persistence.DSN == "" {
			return fmt.Errorf("axis %d: sql persistence needs a driver and dsn", a.NodeID)
		}
	default:
		return fmt.Errorf("axis %d: unknown persistence type %q", a.NodeID, a.Persistence.Type)
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.BaudRate == 0 {
		s.BaudRate = 115200
	}
	if s.DataBits == 0 {
		s.DataBits = 8
	}
	if s.Parity == "" {
		s.Parity = "N"
	}
	if s.StopBits == 0 {
		s.StopBits = 1
	}
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
	if s.Bitrate == 0 {
		s.Bitrate = 500000
	}
}
