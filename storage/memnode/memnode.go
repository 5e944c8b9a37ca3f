package memnode

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ipfs/go-cid"
	ds "github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	dssync "github.com/ipfs/go-datastore/sync"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multihash"
	"go.uber.org/zap"

	"xdao.co/ipfs-simple/cidutil"
	"xdao.co/ipfs-simple/storage"
)

// AgentVersion is reported by ID.
const AgentVersion = "ipfs-simple/memnode"

var (
	blocksPrefix = ds.NewKey("/blocks")
	pinsPrefix   = ds.NewKey("/pins")
	peersPrefix  = ds.NewKey("/peers")
)

var errNotDagPB = errors.New("memnode: object stat only supports dag-pb objects")

// Node is an in-process storage.Node backed by a go-datastore.
//
// Content is stored as single raw blocks addressed by CIDv1 raw + sha2-256,
// matching cidutil.CIDv1RawSHA256CID. There is no chunking, so every object
// is a leaf; ObjectStat reports the same error a gateway reports for raw
// blocks and callers are expected to fall back to measuring the bytes.
//
// The node is offline: SwarmConnect records the peer and reports success
// without dialing.
type Node struct {
	store  ds.Datastore
	log    *zap.Logger
	peerID string
	pub    ed25519.PublicKey
	addrs  []ma.Multiaddr
}

var _ storage.Node = (*Node)(nil)

type Options struct {
	// Datastore holds blocks, pins and known peers. If nil, a mutex-wrapped
	// in-memory map datastore is used.
	Datastore ds.Datastore
	// Seed optionally fixes the node identity (ed25519 seed, 32 bytes).
	Seed []byte
	// ListenAddrs are reported by ID. Each must be a valid multiaddr.
	ListenAddrs []string
	Logger      *zap.Logger
}

// New constructs an in-process node.
func New(opts Options) (*Node, error) {
	store := opts.Datastore
	if store == nil {
		store = dssync.MutexWrap(ds.NewMapDatastore())
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var priv ed25519.PrivateKey
	switch len(opts.Seed) {
	case 0:
		_, p, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("memnode: generate identity: %w", err)
		}
		priv = p
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(opts.Seed)
	default:
		return nil, fmt.Errorf("memnode: seed must be %d bytes", ed25519.SeedSize)
	}
	pub := priv.Public().(ed25519.PublicKey)

	sum, err := multihash.Sum(pub, multihash.SHA2_256, -1)
	if err != nil {
		return nil, err
	}
	peerID := cid.NewCidV1(cid.Libp2pKey, sum).String()

	addrs := make([]ma.Multiaddr, 0, len(opts.ListenAddrs))
	for _, s := range opts.ListenAddrs {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, fmt.Errorf("memnode: listen address %q: %w", s, err)
		}
		addrs = append(addrs, a)
	}

	n := &Node{store: store, log: log.Named("memnode"), peerID: peerID, pub: pub, addrs: addrs}
	n.log.Info("node created", zap.String("peer_id", peerID), zap.Int("listen_addrs", len(addrs)))
	return n, nil
}

// PeerID returns the node's identifier as reported by ID.
func (n *Node) PeerID() string { return n.peerID }

func (n *Node) Close() error {
	return n.store.Close()
}

func (n *Node) Add(ctx context.Context, data io.Reader, opts storage.AddOptions) (cid.Cid, error) {
	switch opts.HashFunc {
	case "", "sha2-256":
	default:
		return cid.Undef, fmt.Errorf("memnode: unsupported hash function %q", opts.HashFunc)
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return cid.Undef, err
	}
	id, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return cid.Undef, err
	}

	key := blockKey(id)
	existing, err := n.store.Get(ctx, key)
	switch {
	case err == nil:
		if !bytes.Equal(existing, b) {
			return cid.Undef, fmt.Errorf("memnode: stored block %s does not match its content", id)
		}
	case errors.Is(err, ds.ErrNotFound):
		if err := n.store.Put(ctx, key, b); err != nil {
			return cid.Undef, err
		}
	default:
		return cid.Undef, err
	}

	if opts.Pin {
		if err := n.store.Put(ctx, pinKey(id), []byte("recursive")); err != nil {
			return cid.Undef, err
		}
	}
	n.log.Debug("add", zap.Stringer("cid", id), zap.Int("bytes", len(b)), zap.Bool("pin", opts.Pin))
	return id, nil
}

func (n *Node) Cat(ctx context.Context, id cid.Cid) (io.ReadCloser, error) {
	b, err := n.block(ctx, id)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (n *Node) PinAdd(ctx context.Context, id cid.Cid) (cid.Cid, error) {
	has, err := n.store.Has(ctx, blockKey(id))
	if err != nil {
		return cid.Undef, err
	}
	if !has {
		return cid.Undef, fmt.Errorf("memnode: pin %s: %w", id, storage.ErrNotFound)
	}
	if err := n.store.Put(ctx, pinKey(id), []byte("recursive")); err != nil {
		return cid.Undef, err
	}
	return id, nil
}

func (n *Node) PinRm(ctx context.Context, id cid.Cid) error {
	pinned, err := n.store.Has(ctx, pinKey(id))
	if err != nil {
		return err
	}
	if !pinned {
		return fmt.Errorf("memnode: %s is not pinned", id)
	}
	return n.store.Delete(ctx, pinKey(id))
}

func (n *Node) PinLs(ctx context.Context, ids ...cid.Cid) ([]cid.Cid, error) {
	if len(ids) > 0 {
		out := make([]cid.Cid, 0, len(ids))
		for _, id := range ids {
			pinned, err := n.store.Has(ctx, pinKey(id))
			if err != nil {
				return nil, err
			}
			if pinned {
				out = append(out, id)
			}
		}
		return out, nil
	}

	results, err := n.store.Query(ctx, query.Query{Prefix: pinsPrefix.String(), KeysOnly: true})
	if err != nil {
		return nil, err
	}
	entries, err := results.Rest()
	if err != nil {
		return nil, err
	}
	out := make([]cid.Cid, 0, len(entries))
	for _, e := range entries {
		id, err := cid.Decode(ds.RawKey(e.Key).BaseNamespace())
		if err != nil {
			return nil, fmt.Errorf("memnode: corrupt pin key %q: %w", e.Key, err)
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// ObjectStat never succeeds: Add only stores raw blocks, so every stored
// object is a leaf. It reports ErrNotFound for absent content and errNotDagPB
// otherwise.
func (n *Node) ObjectStat(ctx context.Context, id cid.Cid) (storage.ObjectStat, error) {
	if _, err := n.block(ctx, id); err != nil {
		return storage.ObjectStat{}, err
	}
	return storage.ObjectStat{}, errNotDagPB
}

func (n *Node) SwarmConnect(ctx context.Context, addr string) ([]string, error) {
	a, err := ma.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("memnode: invalid peer address %q: %w", addr, err)
	}
	pid, err := a.ValueForProtocol(ma.P_P2P)
	if err != nil {
		return nil, fmt.Errorf("memnode: peer address %q has no /p2p component", addr)
	}
	if err := n.store.Put(ctx, peersPrefix.ChildString(pid), a.Bytes()); err != nil {
		return nil, err
	}
	n.log.Debug("swarm connect", zap.String("peer", pid))
	return []string{"connect " + pid + " success"}, nil
}

// Peers returns the addresses recorded by SwarmConnect.
func (n *Node) Peers(ctx context.Context) ([]ma.Multiaddr, error) {
	results, err := n.store.Query(ctx, query.Query{Prefix: peersPrefix.String()})
	if err != nil {
		return nil, err
	}
	entries, err := results.Rest()
	if err != nil {
		return nil, err
	}
	out := make([]ma.Multiaddr, 0, len(entries))
	for _, e := range entries {
		a, err := ma.NewMultiaddrBytes(e.Value)
		if err != nil {
			return nil, fmt.Errorf("memnode: corrupt peer record %q: %w", e.Key, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (n *Node) ID(ctx context.Context) (map[string]any, error) {
	addrs := make([]any, 0, len(n.addrs))
	for _, a := range n.addrs {
		addrs = append(addrs, a.String()+"/p2p/"+n.peerID)
	}
	return map[string]any{
		"id":           n.peerID,
		"publicKey":    base64.StdEncoding.EncodeToString(n.pub),
		"addresses":    addrs,
		"agentVersion": AgentVersion,
		"protocols":    []any{},
	}, nil
}

func (n *Node) block(ctx context.Context, id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, storage.ErrInvalidCID
	}
	b, err := n.store.Get(ctx, blockKey(id))
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return nil, fmt.Errorf("memnode: block %s: %w", id, storage.ErrNotFound)
		}
		return nil, err
	}
	got, err := cidutil.CIDv1RawSHA256CID(b)
	if err != nil {
		return nil, err
	}
	if id.Type() == cid.Raw && !got.Equals(id) {
		return nil, fmt.Errorf("memnode: block %s: %w", id, storage.ErrCIDMismatch)
	}
	return b, nil
}

func blockKey(id cid.Cid) ds.Key { return blocksPrefix.ChildString(id.String()) }
func pinKey(id cid.Cid) ds.Key   { return pinsPrefix.ChildString(id.String()) }
