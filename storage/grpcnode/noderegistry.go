package grpcnode

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"xdao.co/ipfs-simple/storage"
	"xdao.co/ipfs-simple/storage/noderegistry"
)

var (
	flagTarget      string
	flagDialTimeout time.Duration
	flagTimeout     time.Duration
	flagMaxMsgBytes int
)

func init() {
	noderegistry.MustRegister(noderegistry.Backend{
		Name:        "grpc",
		Description: "gRPC node client (talks to a node daemon, e.g. ipfs-simple-noded)",
		Usage:       noderegistry.UsageCLI | noderegistry.UsageLibrary,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagTarget, "grpc-target", "", "gRPC target host:port (for --node=grpc)")
			fs.DurationVar(&flagDialTimeout, "grpc-dial-timeout", 5*time.Second, "Dial timeout (for --node=grpc)")
			fs.DurationVar(&flagTimeout, "grpc-timeout", 0, "Per-RPC timeout (for --node=grpc)")
			fs.IntVar(&flagMaxMsgBytes, "grpc-max-msg-bytes", 0, "Max gRPC message size in bytes (send+recv); 0 uses grpc defaults")
		},
		Open: func(ctx context.Context) (storage.Node, func() error, error) {
			return open(ctx, flagTarget, flagDialTimeout, flagTimeout, flagMaxMsgBytes)
		},
		OpenWithConfig: func(ctx context.Context, cfg map[string]string) (storage.Node, func() error, error) {
			dialTimeout := 5 * time.Second
			var timeout time.Duration
			var maxMsg int
			var err error
			if v := cfg["grpc-dial-timeout"]; v != "" {
				if dialTimeout, err = time.ParseDuration(v); err != nil {
					return nil, nil, fmt.Errorf("invalid grpc-dial-timeout: %w", err)
				}
			}
			if v := cfg["grpc-timeout"]; v != "" {
				if timeout, err = time.ParseDuration(v); err != nil {
					return nil, nil, fmt.Errorf("invalid grpc-timeout: %w", err)
				}
			}
			if v := cfg["grpc-max-msg-bytes"]; v != "" {
				if maxMsg, err = strconv.Atoi(v); err != nil {
					return nil, nil, fmt.Errorf("invalid grpc-max-msg-bytes: %w", err)
				}
			}
			return open(ctx, cfg["grpc-target"], dialTimeout, timeout, maxMsg)
		},
	})
}

func open(ctx context.Context, target string, dialTimeout, timeout time.Duration, maxMsg int) (storage.Node, func() error, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, nil, fmt.Errorf("missing --grpc-target")
	}
	client, err := Dial(ctx, target, DialOptions{Timeout: dialTimeout, MaxMsgBytes: maxMsg})
	if err != nil {
		return nil, nil, err
	}
	client.Timeout = timeout
	return client, client.Close, nil
}
