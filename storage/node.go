package storage

import (
	"context"
	"io"

	"github.com/ipfs/go-cid"
)

// Node is the capability set of an IPFS node the client can drive in-process.
//
// Contract:
// - Every blocking method honours ctx cancellation on a best-effort basis.
// - PinAdd returns the identifier the node reports as pinned; callers compare it
//   with the requested one.
// - PinLs with no arguments lists every pin; with arguments it lists only the
//   given identifiers that are pinned.
// - Cat and ObjectStat MUST return (or wrap) ErrNotFound when the content is absent.
// - SwarmConnect returns the node's status strings; a successful connection
//   ends its first string with "success".
// - ID returns a node-defined self description. Its shape is not shared with
//   the HTTP gateway's /id response.
type Node interface {
	PinAdd(ctx context.Context, id cid.Cid) (cid.Cid, error)
	PinRm(ctx context.Context, id cid.Cid) error
	PinLs(ctx context.Context, ids ...cid.Cid) ([]cid.Cid, error)
	Cat(ctx context.Context, id cid.Cid) (io.ReadCloser, error)
	Add(ctx context.Context, data io.Reader, opts AddOptions) (cid.Cid, error)
	ObjectStat(ctx context.Context, id cid.Cid) (ObjectStat, error)
	SwarmConnect(ctx context.Context, addr string) ([]string, error)
	ID(ctx context.Context) (map[string]any, error)
}

// AddOptions mirrors the gateway's add query parameters.
type AddOptions struct {
	Pin       bool
	RawLeaves bool
	// HashFunc is a multihash function name. Empty means "sha2-256".
	HashFunc string
}

// ObjectStat is the node's size accounting for the object graph rooted at an identifier.
type ObjectStat struct {
	NumLinks       int   `json:"NumLinks"`
	BlockSize      int   `json:"BlockSize"`
	LinksSize      int   `json:"LinksSize"`
	DataSize       int   `json:"DataSize"`
	CumulativeSize int64 `json:"CumulativeSize"`
}
