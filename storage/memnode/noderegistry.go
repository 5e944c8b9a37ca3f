package memnode

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"strings"

	"xdao.co/ipfs-simple/storage"
	"xdao.co/ipfs-simple/storage/noderegistry"
)

var (
	flagListen string
	flagSeed   string
)

func init() {
	noderegistry.MustRegister(noderegistry.Backend{
		Name:        "memory",
		Description: "In-process node on an in-memory datastore",
		Usage:       noderegistry.UsageCLI | noderegistry.UsageDaemon | noderegistry.UsageLibrary,
		RegisterFlags: func(fs *flag.FlagSet) {
			fs.StringVar(&flagListen, "memory-listen", "", "Comma-separated multiaddrs reported by id (for --node=memory)")
			fs.StringVar(&flagSeed, "memory-seed", "", "Hex ed25519 seed fixing the node identity (for --node=memory)")
		},
		Open: func(ctx context.Context) (storage.Node, func() error, error) {
			return open(flagListen, flagSeed)
		},
		OpenWithConfig: func(ctx context.Context, cfg map[string]string) (storage.Node, func() error, error) {
			return open(cfg["memory-listen"], cfg["memory-seed"])
		},
	})
}

func open(listen, seedHex string) (storage.Node, func() error, error) {
	var opts Options
	for _, a := range strings.Split(listen, ",") {
		if a = strings.TrimSpace(a); a != "" {
			opts.ListenAddrs = append(opts.ListenAddrs, a)
		}
	}
	if seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid --memory-seed: %w", err)
		}
		opts.Seed = seed
	}
	n, err := New(opts)
	if err != nil {
		return nil, nil, err
	}
	return n, n.Close, nil
}
