package memnode

import (
	"bytes"
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/ipfs-simple/storage"
	"xdao.co/ipfs-simple/storage/testkit"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func TestMemNode_Conformance(t *testing.T) {
	testkit.RunNodeConformance(t, func(t *testing.T) storage.Node {
		return newTestNode(t)
	})
}

func TestMemNode_ObjectStatRejectsRawBlocks(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t)

	id, err := n.Add(ctx, bytes.NewReader([]byte("raw leaf")), storage.AddOptions{Pin: true, RawLeaves: true})
	require.NoError(t, err)

	_, err = n.ObjectStat(ctx, id)
	require.ErrorIs(t, err, errNotDagPB)
}

func TestMemNode_ObjectStatOfAbsentContentIsNotFound(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t)

	id, err := n.Add(ctx, bytes.NewReader([]byte("stored")), storage.AddOptions{})
	require.NoError(t, err)
	// Same multihash, dag-pb codec: never stored by Add.
	_, err = n.ObjectStat(ctx, cid.NewCidV1(cid.DagProtobuf, id.Hash()))
	require.True(t, storage.IsNotFound(err), "got %v", err)
}

func TestMemNode_UnsupportedHash(t *testing.T) {
	n := newTestNode(t)
	_, err := n.Add(context.Background(), bytes.NewReader([]byte("x")), storage.AddOptions{HashFunc: "blake3"})
	require.Error(t, err)
}

func TestMemNode_SeedFixesIdentity(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a, err := New(Options{Seed: seed})
	require.NoError(t, err)
	b, err := New(Options{Seed: seed})
	require.NoError(t, err)
	assert.Equal(t, a.PeerID(), b.PeerID())

	_, err = New(Options{Seed: []byte("short")})
	require.Error(t, err)
}

func TestMemNode_IDReportsListenAddrs(t *testing.T) {
	n, err := New(Options{ListenAddrs: []string{"/ip4/127.0.0.1/tcp/4001"}})
	require.NoError(t, err)

	id, err := n.ID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n.PeerID(), id["id"])
	assert.Equal(t, AgentVersion, id["agentVersion"])
	assert.Equal(t, []any{"/ip4/127.0.0.1/tcp/4001/p2p/" + n.PeerID()}, id["addresses"])

	_, err = New(Options{ListenAddrs: []string{"127.0.0.1:4001"}})
	require.Error(t, err)
}

func TestMemNode_SwarmConnectRecordsPeer(t *testing.T) {
	ctx := context.Background()
	n := newTestNode(t)

	_, err := n.SwarmConnect(ctx, testkit.PeerAddr)
	require.NoError(t, err)

	peers, err := n.Peers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, testkit.PeerAddr, peers[0].String())

	_, err = n.SwarmConnect(ctx, "/ip4/127.0.0.1/tcp/4001")
	require.Error(t, err)
}

func TestMemNode_SharedDatastore(t *testing.T) {
	ctx := context.Background()
	store := dssync.MutexWrap(ds.NewMapDatastore())

	a, err := New(Options{Datastore: store})
	require.NoError(t, err)
	id, err := a.Add(ctx, bytes.NewReader([]byte("shared")), storage.AddOptions{Pin: true})
	require.NoError(t, err)

	b, err := New(Options{Datastore: store})
	require.NoError(t, err)
	pins, err := b.PinLs(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 1)
	assert.True(t, pins[0].Equals(id))
}
