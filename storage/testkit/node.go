package testkit

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfs-simple/cidutil"
	"xdao.co/ipfs-simple/storage"
)

// PeerAddr is a syntactically valid peer multiaddr for SwarmConnect tests.
const PeerAddr = "/ip4/127.0.0.1/tcp/4001/p2p/QmXyR4tmKZ7CpZhrQud4MRVLxtvGMNHb913AiGCD95Nynk"

// NewNode constructs a fresh, empty node for a test.
// The returned node MUST be isolated from other tests.
type NewNode func(t *testing.T) storage.Node

// RunNodeConformance exercises the storage.Node contract the client relies on.
func RunNodeConformance(t *testing.T, newNode NewNode) {
	t.Helper()
	ctx := context.Background()

	t.Run("AddCatRoundTrip", func(t *testing.T) {
		n := newNode(t)
		want := []byte("hello, ipfs-simple")

		id, err := n.Add(ctx, bytes.NewReader(want), storage.AddOptions{Pin: true, RawLeaves: true, HashFunc: "sha2-256"})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		wantID, err := cidutil.CIDv1RawSHA256CID(want)
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if !id.Equals(wantID) {
			t.Fatalf("Add CID mismatch: got %s want %s", id, wantID)
		}

		got := cat(t, n, id)
		if !bytes.Equal(got, want) {
			t.Fatalf("Cat bytes mismatch")
		}
	})

	t.Run("AddIdempotent", func(t *testing.T) {
		n := newNode(t)
		b := []byte("same bytes")

		id1, err := n.Add(ctx, bytes.NewReader(b), storage.AddOptions{Pin: true})
		if err != nil {
			t.Fatalf("Add(1) failed: %v", err)
		}
		id2, err := n.Add(ctx, bytes.NewReader(b), storage.AddOptions{Pin: true})
		if err != nil {
			t.Fatalf("Add(2) failed: %v", err)
		}
		if !id1.Equals(id2) {
			t.Fatalf("Add not idempotent: %s vs %s", id1, id2)
		}
	})

	t.Run("CatNotFound", func(t *testing.T) {
		n := newNode(t)
		id, err := cidutil.CIDv1RawSHA256CID([]byte("missing"))
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		_, err = n.Cat(ctx, id)
		if !storage.IsNotFound(err) {
			t.Fatalf("Cat missing: got err=%v want ErrNotFound", err)
		}
	})

	t.Run("PinLifecycle", func(t *testing.T) {
		n := newNode(t)
		id, err := n.Add(ctx, strings.NewReader("pin me"), storage.AddOptions{})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if pins := pinLs(t, n, id); len(pins) != 0 {
			t.Fatalf("unpinned add reported as pinned: %v", pins)
		}

		pinned, err := n.PinAdd(ctx, id)
		if err != nil {
			t.Fatalf("PinAdd failed: %v", err)
		}
		if !pinned.Equals(id) {
			t.Fatalf("PinAdd returned %s want %s", pinned, id)
		}
		if pins := pinLs(t, n, id); len(pins) != 1 || !pins[0].Equals(id) {
			t.Fatalf("PinLs(id) = %v, want [%s]", pins, id)
		}
		all := pinLs(t, n)
		if !contains(all, id) {
			t.Fatalf("PinLs() = %v, missing %s", all, id)
		}

		if err := n.PinRm(ctx, id); err != nil {
			t.Fatalf("PinRm failed: %v", err)
		}
		if pins := pinLs(t, n, id); len(pins) != 0 {
			t.Fatalf("PinLs after PinRm = %v", pins)
		}
		if err := n.PinRm(ctx, id); err == nil {
			t.Fatalf("PinRm of unpinned content should fail")
		}
	})

	t.Run("PinAddMissing", func(t *testing.T) {
		n := newNode(t)
		id, err := cidutil.CIDv1RawSHA256CID([]byte("never added"))
		if err != nil {
			t.Fatalf("CIDv1RawSHA256CID failed: %v", err)
		}
		if _, err := n.PinAdd(ctx, id); err == nil {
			t.Fatalf("PinAdd of absent content should fail")
		}
	})

	t.Run("ObjectStatRawBlock", func(t *testing.T) {
		n := newNode(t)
		id, err := n.Add(ctx, strings.NewReader("leaf"), storage.AddOptions{Pin: true, RawLeaves: true})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		st, err := n.ObjectStat(ctx, id)
		if err == nil && st.CumulativeSize < int64(len("leaf")) {
			t.Fatalf("ObjectStat CumulativeSize = %d, want >= %d", st.CumulativeSize, len("leaf"))
		}
	})

	t.Run("SwarmConnect", func(t *testing.T) {
		n := newNode(t)
		out, err := n.SwarmConnect(ctx, PeerAddr)
		if err != nil {
			t.Fatalf("SwarmConnect failed: %v", err)
		}
		if len(out) == 0 || !strings.HasSuffix(out[0], "success") {
			t.Fatalf("SwarmConnect = %v, want a success status", out)
		}
		if _, err := n.SwarmConnect(ctx, "not-a-multiaddr"); err == nil {
			t.Fatalf("SwarmConnect with a malformed address should fail")
		}
	})

	t.Run("ID", func(t *testing.T) {
		n := newNode(t)
		id, err := n.ID(ctx)
		if err != nil {
			t.Fatalf("ID failed: %v", err)
		}
		if len(id) == 0 {
			t.Fatalf("ID returned an empty description")
		}
	})
}

func cat(t *testing.T, n storage.Node, id cid.Cid) []byte {
	t.Helper()
	rc, err := n.Cat(context.Background(), id)
	if err != nil {
		t.Fatalf("Cat failed: %v", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read Cat stream: %v", err)
	}
	return b
}

func pinLs(t *testing.T, n storage.Node, ids ...cid.Cid) []cid.Cid {
	t.Helper()
	pins, err := n.PinLs(context.Background(), ids...)
	if err != nil {
		t.Fatalf("PinLs failed: %v", err)
	}
	return pins
}

func contains(ids []cid.Cid, want cid.Cid) bool {
	for _, id := range ids {
		if id.Equals(want) {
			return true
		}
	}
	return false
}
