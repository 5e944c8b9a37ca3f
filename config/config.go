package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"xdao.co/ipfs-simple/client"
	"xdao.co/ipfs-simple/storage"
	"xdao.co/ipfs-simple/storage/noderegistry"
)

// Config selects the backend a client starts with.
//
// At most one of API and Node may be set. With neither, the client stays
// unbound and talks to client.DefaultAPI.
//
// Example:
//
//	{
//	  "timeout": "30s",
//	  "node": {"name": "grpc", "config": {"grpc-target": "127.0.0.1:7777"}}
//	}
//
// Node config values are backend-specific; keys mirror the backend's CLI flag
// names. Callers still need to link desired node backends via blank imports.
type Config struct {
	// API is a gateway base URL to bind, e.g. "http://127.0.0.1:5001/api/v0/".
	API string `json:"api,omitempty"`
	// Timeout is the default per-call budget as a Go duration string.
	Timeout string      `json:"timeout,omitempty"`
	Node    *NodeConfig `json:"node,omitempty"`
}

type NodeConfig struct {
	// Name is the noderegistry backend name to open (e.g. "memory", "grpc").
	Name   string            `json:"name"`
	Config map[string]string `json:"config,omitempty"`
}

func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("config: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.API != "" && c.Node != nil {
		return errors.New("config: api and node are mutually exclusive")
	}
	if c.Node != nil && c.Node.Name == "" {
		return errors.New("config: node name is required")
	}
	if _, err := c.Budget(); err != nil {
		return err
	}
	return nil
}

// Budget returns the configured per-call budget, or zero when unset.
func (c Config) Budget() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: invalid timeout %q: %w", c.Timeout, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("config: timeout must be positive, got %q", c.Timeout)
	}
	return d, nil
}

// ClientOptions fills opts from the config. A configured node becomes the
// client's NodeFactory, so Apply constructs it through CreateEmbeddedNode and
// client.Close releases it.
func (c Config) ClientOptions(opts client.Options, usage noderegistry.Usage) (client.Options, error) {
	if err := c.Validate(); err != nil {
		return opts, err
	}
	d, _ := c.Budget()
	if d > 0 {
		opts.Timeout = d
	}
	if c.Node != nil {
		name, settings := c.Node.Name, c.Node.Config
		opts.NodeFactory = func(ctx context.Context) (storage.Node, func() error, error) {
			return noderegistry.OpenWithConfig(ctx, name, usage, settings)
		}
	}
	return opts, nil
}

// Apply binds cl to the configured backend.
func (c Config) Apply(ctx context.Context, cl *client.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	switch {
	case c.API != "":
		return cl.BindRemoteAddress(c.API)
	case c.Node != nil:
		return cl.CreateEmbeddedNode(ctx)
	default:
		return nil
	}
}
