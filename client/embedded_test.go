package client

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"xdao.co/ipfs-simple/storage"
	"xdao.co/ipfs-simple/storage/memnode"
)

func newEmbedded(t *testing.T) (*Client, *memnode.Node) {
	t.Helper()
	n, err := memnode.New(memnode.Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	c := New(Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, c.BindEmbeddedNode(n))
	return c, n
}

func TestEmbedded_PublishFetchPinLifecycle(t *testing.T) {
	c, _ := newEmbedded(t)
	ctx := context.Background()

	id, err := c.PublishJSON(ctx, map[string]string{"name": "ipfs"})
	require.NoError(t, err)
	require.Equal(t, jsonID, id, "embedded and gateway identifiers must agree")

	var doc map[string]string
	require.NoError(t, c.FetchJSON(ctx, id, &doc))
	require.Equal(t, "ipfs", doc["name"])

	id, err = c.PublishBytes(ctx, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, helloID, id)

	text, err := c.FetchText(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "hello", text)

	pinned, err := c.IsPinned(ctx, id)
	require.NoError(t, err)
	require.True(t, pinned)

	ids, err := c.ListPinned(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{helloID, jsonID}, ids)

	require.NoError(t, c.PinRemove(ctx, id))
	pinned, err = c.IsPinned(ctx, id)
	require.NoError(t, err)
	require.False(t, pinned)

	ok, err := c.PinAdd(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestEmbedded_FetchMissingIsNotFound(t *testing.T) {
	c, _ := newEmbedded(t)
	_, err := c.FetchBytes(context.Background(), vectorID)
	require.True(t, storage.IsKind(err, storage.KindNotFound), "got %v", err)
}

func TestEmbedded_CumulativeSizeFallsBackToFetchedLength(t *testing.T) {
	c, _ := newEmbedded(t)
	ctx := context.Background()

	id, err := c.PublishBytes(ctx, []byte("hello world"))
	require.NoError(t, err)

	// The in-memory node only stats dag-pb objects, so raw blocks take the
	// fallback path.
	size, err := c.CumulativeSize(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(len("hello world")), size)

	_, err = c.CumulativeSize(ctx, vectorID)
	require.True(t, storage.IsKind(err, storage.KindNotFound), "got %v", err)
}

func TestEmbedded_ConnectPeerAndIdentify(t *testing.T) {
	c, n := newEmbedded(t)
	ctx := context.Background()

	ok, err := c.ConnectPeer(ctx, peerAddr)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.ConnectPeer(ctx, "not-a-multiaddr")
	require.True(t, storage.IsKind(err, storage.KindBackend), "got %v", err)

	id, err := c.Identify(ctx)
	require.NoError(t, err)
	require.Equal(t, n.PeerID(), id["id"])
	require.Contains(t, id, "agentVersion")
}

func TestEmbedded_PinAddRequiresExactIdentifier(t *testing.T) {
	n, err := memnode.New(memnode.Options{})
	require.NoError(t, err)
	other, err := cid.Decode(helloID)
	require.NoError(t, err)

	c := New(Options{})
	require.NoError(t, c.BindEmbeddedNode(&misreportingNode{Node: n, pinned: other}))

	ok, err := c.PinAdd(context.Background(), vectorID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEmbedded_SlowNodeTimesOut(t *testing.T) {
	n, err := memnode.New(memnode.Options{})
	require.NoError(t, err)
	c := New(Options{Timeout: 40 * time.Millisecond})
	require.NoError(t, c.BindEmbeddedNode(&slowNode{Node: n}))

	_, err = c.FetchBytes(context.Background(), helloID)
	var se *storage.Error
	require.True(t, errors.As(err, &se), "got %v", err)
	require.Equal(t, storage.KindTimeout, se.Kind)
	require.Equal(t, helloID, se.Ref)
	require.Equal(t, 40*time.Millisecond, se.Budget)

	// A per-call budget overrides the client default.
	_, err = c.FetchBytes(context.Background(), helloID, WithTimeout(10*time.Millisecond))
	require.True(t, errors.As(err, &se), "got %v", err)
	require.Equal(t, 10*time.Millisecond, se.Budget)
}

func TestCreateEmbeddedNode_SecondCallIsAlreadyBound(t *testing.T) {
	c := New(Options{Logger: zaptest.NewLogger(t)})
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	require.NoError(t, c.CreateEmbeddedNode(ctx))
	require.Equal(t, ModeEmbedded, c.Backend().Mode)

	err := c.CreateEmbeddedNode(ctx)
	require.True(t, storage.IsKind(err, storage.KindAlreadyBound), "got %v", err)

	id, err := c.PublishBytes(ctx, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, helloID, id)
}

func TestCreateEmbeddedNode_AfterBindIsAlreadyBound(t *testing.T) {
	c := New(Options{})
	require.NoError(t, c.BindRemoteAddress("http://127.0.0.1:1/api/v0/"))
	err := c.CreateEmbeddedNode(context.Background())
	require.True(t, storage.IsKind(err, storage.KindAlreadyBound), "got %v", err)
	require.Equal(t, ModeRemote, c.Backend().Mode)
}

func TestCreateEmbeddedNode_OperationsWaitAndObserveNode(t *testing.T) {
	release := make(chan struct{})
	var built *memnode.Node
	c := New(Options{
		Logger: zaptest.NewLogger(t),
		NodeFactory: func(ctx context.Context) (storage.Node, func() error, error) {
			<-release
			n, err := memnode.New(memnode.Options{})
			if err != nil {
				return nil, nil, err
			}
			built = n
			return n, n.Close, nil
		},
	})
	ctx := context.Background()

	initDone := make(chan error, 1)
	go func() { initDone <- c.CreateEmbeddedNode(ctx) }()
	require.Eventually(t, func() bool { return c.Backend().Mode == ModeInitializing }, time.Second, time.Millisecond)

	type result struct {
		id  string
		err error
	}
	published := make(chan result, 1)
	go func() {
		// The budget is armed only once initialization settles.
		id, err := c.PublishBytes(ctx, []byte("hello"), WithTimeout(time.Second))
		published <- result{id, err}
	}()

	err := c.BindRemoteAddress("http://127.0.0.1:1/api/v0/")
	require.True(t, storage.IsKind(err, storage.KindAlreadyBound), "got %v", err)
	err = c.CreateEmbeddedNode(ctx)
	require.True(t, storage.IsKind(err, storage.KindAlreadyBound), "got %v", err)

	select {
	case <-published:
		t.Fatal("operation completed before initialization settled")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-initDone)
	r := <-published
	require.NoError(t, r.err)
	require.Equal(t, helloID, r.id)

	id, err := cid.Decode(r.id)
	require.NoError(t, err)
	rc, err := built.Cat(ctx, id)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(b))

	require.NoError(t, c.Close())
}

func TestCreateEmbeddedNode_FailureReleasesWaiters(t *testing.T) {
	release := make(chan struct{})
	boom := errors.New("repo lock held")
	var calls atomic.Int32
	c := New(Options{
		NodeFactory: func(ctx context.Context) (storage.Node, func() error, error) {
			if calls.Add(1) == 1 {
				<-release
				return nil, nil, boom
			}
			n, err := memnode.New(memnode.Options{})
			if err != nil {
				return nil, nil, err
			}
			return n, n.Close, nil
		},
	})
	ctx := context.Background()

	initDone := make(chan error, 1)
	go func() { initDone <- c.CreateEmbeddedNode(ctx) }()
	require.Eventually(t, func() bool { return c.Backend().Mode == ModeInitializing }, time.Second, time.Millisecond)

	waited := make(chan error, 1)
	go func() {
		_, err := c.ListPinned(ctx)
		waited <- err
	}()
	// Give the waiter time to block on the pending initialization.
	time.Sleep(50 * time.Millisecond)

	close(release)
	err := <-initDone
	require.True(t, storage.IsKind(err, storage.KindBackend), "got %v", err)
	require.ErrorIs(t, err, boom)

	err = <-waited
	require.True(t, storage.IsKind(err, storage.KindBackend), "got %v", err)
	require.ErrorIs(t, err, boom)

	require.Equal(t, ModeUnbound, c.Backend().Mode)
	require.NoError(t, c.CreateEmbeddedNode(ctx))
	require.Equal(t, ModeEmbedded, c.Backend().Mode)
}

func TestCreateEmbeddedNode_FactoryPanicSettlesInitialization(t *testing.T) {
	var calls atomic.Int32
	c := New(Options{
		Logger: zaptest.NewLogger(t),
		NodeFactory: func(ctx context.Context) (storage.Node, func() error, error) {
			if calls.Add(1) == 1 {
				panic("boom")
			}
			n, err := memnode.New(memnode.Options{})
			if err != nil {
				return nil, nil, err
			}
			return n, n.Close, nil
		},
	})
	ctx := context.Background()

	err := c.CreateEmbeddedNode(ctx)
	require.True(t, storage.IsKind(err, storage.KindBackend), "got %v", err)
	require.ErrorContains(t, err, "boom")
	require.Equal(t, ModeUnbound, c.Backend().Mode)

	require.NoError(t, c.CreateEmbeddedNode(ctx))
	require.Equal(t, ModeEmbedded, c.Backend().Mode)
	_, err = c.ListPinned(ctx)
	require.NoError(t, err)
}

func TestCreateEmbeddedNode_CallerDeadlineReportsItsOwnBudget(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := New(Options{
		NodeFactory: func(ctx context.Context) (storage.Node, func() error, error) {
			<-release
			return nil, nil, errors.New("never built")
		},
	})

	go func() { _ = c.CreateEmbeddedNode(context.Background()) }()
	require.Eventually(t, func() bool { return c.Backend().Mode == ModeInitializing }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.ListPinned(ctx)

	var se *storage.Error
	require.True(t, errors.As(err, &se), "got %v", err)
	require.Equal(t, storage.KindTimeout, se.Kind)
	require.Greater(t, se.Budget, time.Duration(0))
	require.LessOrEqual(t, se.Budget, 30*time.Millisecond)
}

func TestAwait_PrefersCompletedResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 100; i++ {
		done := make(chan error, 1)
		done <- nil
		require.NoError(t, await(ctx, done))
	}

	done := make(chan error, 1)
	require.ErrorIs(t, await(ctx, done), context.Canceled)
}

func TestCreateEmbeddedNode_WaitHonoursCallerContext(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	c := New(Options{
		NodeFactory: func(ctx context.Context) (storage.Node, func() error, error) {
			<-release
			return nil, nil, errors.New("never built")
		},
	})

	go func() { _ = c.CreateEmbeddedNode(context.Background()) }()
	require.Eventually(t, func() bool { return c.Backend().Mode == ModeInitializing }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Identify(ctx)
	require.True(t, storage.IsKind(err, storage.KindCanceled), "got %v", err)
}

func TestBindings_SwitchBackends(t *testing.T) {
	c, n := newEmbedded(t)
	require.Equal(t, ModeEmbedded, c.Backend().Mode)
	require.Equal(t, storage.Node(n), c.Backend().Node)

	require.NoError(t, c.BindRemoteAddress("http://127.0.0.1:5002/api/v0/"))
	require.Equal(t, ModeRemote, c.Backend().Mode)
	require.Nil(t, c.Backend().Node)

	require.NoError(t, c.BindEmbeddedNode(n))
	require.Equal(t, ModeEmbedded, c.Backend().Mode)
	require.Error(t, c.BindEmbeddedNode(nil))
}

func TestClose_ClosesOnlyConstructedNodes(t *testing.T) {
	var closed atomic.Int32
	c := New(Options{
		NodeFactory: func(ctx context.Context) (storage.Node, func() error, error) {
			n, err := memnode.New(memnode.Options{})
			return n, func() error { closed.Add(1); return nil }, err
		},
	})
	require.NoError(t, c.CreateEmbeddedNode(context.Background()))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.Equal(t, int32(1), closed.Load())
}

func TestCodecPassThrough(t *testing.T) {
	c := New(Options{})
	d, err := c.IdentifierToDigest(vectorID)
	require.NoError(t, err)
	require.Equal(t, "8f8e21b09d4c5f3878d50e04b23ec3be650ac14efc637372f4eecbd8f28a3ce3", d)

	id, err := c.DigestToIdentifier(d)
	require.NoError(t, err)
	require.Equal(t, vectorID, id)
}

// misreportingNode answers PinAdd with a fixed identifier.
type misreportingNode struct {
	storage.Node
	pinned cid.Cid
}

func (m *misreportingNode) PinAdd(ctx context.Context, id cid.Cid) (cid.Cid, error) {
	return m.pinned, nil
}

// slowNode never answers Cat before its context ends.
type slowNode struct {
	storage.Node
}

func (s *slowNode) Cat(ctx context.Context, id cid.Cid) (io.ReadCloser, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
