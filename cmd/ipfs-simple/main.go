package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"xdao.co/ipfs-simple/client"
	"xdao.co/ipfs-simple/config"
	"xdao.co/ipfs-simple/storage"
	"xdao.co/ipfs-simple/storage/noderegistry"

	_ "xdao.co/ipfs-simple/storage/grpcnode"
	_ "xdao.co/ipfs-simple/storage/memnode"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	case "backends":
		printBackends(out)
		return 0
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
	return cmd.exec(args[1:], out, errOut)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "ipfs-simple: content client for an IPFS gateway or an embedded node")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	for _, name := range commandNames() {
		fmt.Fprintf(w, "  ipfs-simple %s [common flags] %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(w, "  ipfs-simple backends")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --api <url>       gateway base URL (default "+client.DefaultAPI+")")
	fmt.Fprintln(w, "  --node <name>     create an embedded node from a registered backend instead")
	fmt.Fprintln(w, "  --config <file>   JSON config selecting the backend")
	fmt.Fprintln(w, "  --timeout <dur>   per-call budget (default 10m)")
	fmt.Fprintln(w, "  --debug           development logging")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - identifiers are CIDv1 raw + sha2-256 (bafk...)")
	fmt.Fprintln(w, "  - an embedded node lives only as long as the command")
}

func printBackends(w io.Writer) {
	for _, b := range noderegistry.List(noderegistry.UsageCLI) {
		if b.Description == "" {
			_, _ = fmt.Fprintf(w, "%s\n", b.Name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", b.Name, b.Description)
	}
}

type commonFlags struct {
	api        string
	node       string
	configPath string
	timeout    time.Duration
	debug      bool
}

func (c *commonFlags) add(fs *flag.FlagSet) {
	fs.StringVar(&c.api, "api", "", "Gateway base URL")
	fs.StringVar(&c.node, "node", "", "Embedded node backend name (see 'ipfs-simple backends')")
	fs.StringVar(&c.configPath, "config", "", "JSON config file")
	fs.DurationVar(&c.timeout, "timeout", 0, "Per-call budget")
	fs.BoolVar(&c.debug, "debug", false, "Development logging")
	noderegistry.RegisterFlags(fs, noderegistry.UsageCLI)
}

func (c *commonFlags) logger() (*zap.Logger, error) {
	if c.debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// openClient builds a client bound per the flags. The returned close function
// releases the logger and any embedded node.
func (c *commonFlags) openClient(ctx context.Context) (*client.Client, func(), error) {
	if c.api != "" && c.node != "" {
		return nil, nil, errors.New("--api and --node are mutually exclusive")
	}
	log, err := c.logger()
	if err != nil {
		return nil, nil, err
	}
	opts := client.Options{Logger: log, Timeout: c.timeout}

	var cfg config.Config
	if c.configPath != "" {
		if cfg, err = config.LoadFile(c.configPath); err != nil {
			return nil, nil, err
		}
		if opts, err = cfg.ClientOptions(opts, noderegistry.UsageCLI); err != nil {
			return nil, nil, err
		}
		if c.timeout > 0 {
			opts.Timeout = c.timeout
		}
	}
	if c.node != "" {
		name := c.node
		opts.NodeFactory = func(ctx context.Context) (storage.Node, func() error, error) {
			return noderegistry.Open(ctx, name, noderegistry.UsageCLI)
		}
	}

	cl := client.New(opts)
	closeAll := func() {
		_ = cl.Close()
		_ = log.Sync()
	}

	switch {
	case c.node != "":
		err = cl.CreateEmbeddedNode(ctx)
	case c.api != "":
		err = cl.BindRemoteAddress(c.api)
	default:
		err = cfg.Apply(ctx, cl)
	}
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	return cl, closeAll, nil
}
