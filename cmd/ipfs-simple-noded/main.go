package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"xdao.co/ipfs-simple/storage"
	"xdao.co/ipfs-simple/storage/grpcnode"
	"xdao.co/ipfs-simple/storage/noderegistry"

	_ "xdao.co/ipfs-simple/storage/memnode"
)

func main() {
	fs := flag.NewFlagSet("ipfs-simple-noded", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7777", "listen address")
	backend := fs.String("backend", "memory", "Node backend name")
	listBackends := fs.Bool("list-backends", false, "List supported backends and exit")
	debug := fs.Bool("debug", false, "Development logging")

	noderegistry.RegisterFlags(fs, noderegistry.UsageDaemon)

	_ = fs.Parse(os.Args[1:])
	if *listBackends {
		for _, b := range noderegistry.List(noderegistry.UsageDaemon) {
			if b.Description == "" {
				_, _ = fmt.Fprintf(os.Stdout, "%s\n", b.Name)
				continue
			}
			_, _ = fmt.Fprintf(os.Stdout, "%s\t%s\n", b.Name, b.Description)
		}
		return
	}

	log, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	node, closeFn, err := noderegistry.Open(ctx, *backend, noderegistry.UsageDaemon)
	if err != nil {
		log.Error("open node backend", zap.String("backend", *backend), zap.Error(err))
		os.Exit(2)
	}
	if closeFn != nil {
		defer closeFn()
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Error("listen", zap.String("addr", *listen), zap.Error(err))
		os.Exit(1)
	}

	log.Info("ipfs-simple-noded listening", zap.String("addr", lis.Addr().String()), zap.String("backend", *backend))
	if err := serve(ctx, lis, node, log); err != nil {
		log.Error("serve", zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// serve runs the Node gRPC service on lis until ctx is done, then stops
// gracefully.
func serve(ctx context.Context, lis net.Listener, node storage.Node, log *zap.Logger) error {
	s := grpc.NewServer()
	grpcnode.RegisterNodeServer(s, &grpcnode.Server{Node: node, Logger: log})

	errc := make(chan error, 1)
	go func() { errc <- s.Serve(lis) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		s.GracefulStop()
		return nil
	}
}
