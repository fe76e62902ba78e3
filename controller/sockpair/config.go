package main

import (
	"flag"
	"os"
	"time"

	"github.com/unixpickle/essentials"
	"gopkg.in/yaml.v3"

	"github.com/Kitware/VTK-sub105/sockcomm"
)

// Config describes one end of a socket pair.
type Config struct {
	// Role is either "server" or "client".
	Role    string `yaml:"role"`
	Address string `yaml:"address"`

	AcceptTimeout time.Duration `yaml:"accept_timeout"`

	Version       int32  `yaml:"version"`
	Hash          string `yaml:"hash"`
	Use64BitIDs   bool   `yaml:"use_64bit_ids"`
	MaxFrameBytes int    `yaml:"max_frame_bytes"`
}

// DefaultConfig returns a server config that matches the
// defaults of a new socket communicator.
func DefaultConfig() *Config {
	s := sockcomm.New()
	return &Config{
		Role:          "server",
		Address:       "127.0.0.1:18500",
		AcceptTimeout: time.Minute,
		Version:       s.Version,
		Hash:          s.Hash,
		Use64BitIDs:   s.Use64BitIDs,
		MaxFrameBytes: s.MaxFrameBytes,
	}
}

// LoadConfig reads a YAML file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, essentials.AddCtx("load config", err)
	}
	return cfg, nil
}

// AddFlags registers flags that override the fields of c.
// They must be parsed after the config file is loaded.
func (c *Config) AddFlags(f *flag.FlagSet) {
	f.StringVar(&c.Role, "role", c.Role, "server or client")
	f.StringVar(&c.Address, "addr", c.Address, "address to listen on or connect to")
	f.DurationVar(&c.AcceptTimeout, "accept-timeout", c.AcceptTimeout, "time to wait for the client")
	f.BoolVar(&c.Use64BitIDs, "ids64", c.Use64BitIDs, "send IDs as 64-bit words when possible")
	f.IntVar(&c.MaxFrameBytes, "max-frame", c.MaxFrameBytes, "maximum payload bytes per frame")
}

// Communicator creates an unconnected communicator.
func (c *Config) Communicator() *sockcomm.Communicator {
	s := sockcomm.New()
	s.Version = c.Version
	s.Hash = c.Hash
	s.Use64BitIDs = c.Use64BitIDs
	s.MaxFrameBytes = c.MaxFrameBytes
	return s
}
