package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/ipfs-simple/client"
	"xdao.co/ipfs-simple/storage/grpcnode"
	"xdao.co/ipfs-simple/storage/memnode"
)

func TestServe_ClientThroughDaemon(t *testing.T) {
	node, err := memnode.New(memnode.Options{})
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, lis, node, zaptest.NewLogger(t)) }()

	remote, err := grpcnode.Dial(context.Background(), lis.Addr().String(), grpcnode.DialOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer remote.Close()

	c := client.New(client.Options{Logger: zaptest.NewLogger(t), Timeout: 5 * time.Second})
	require.NoError(t, c.BindEmbeddedNode(remote))

	id, err := c.PublishBytes(ctx, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, "bafkreibm6jg3ux5qumhcn2b3flc3tyu6dmlb4xa7u5bf44yegnrjhc4yeq", id)

	b, err := c.FetchBytes(ctx, id)
	require.NoError(t, err)
	require.True(t, bytes.Equal([]byte("hello"), b))

	ident, err := c.Identify(ctx)
	require.NoError(t, err)
	require.Equal(t, node.PeerID(), ident["id"])

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
