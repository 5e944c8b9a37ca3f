package client

import (
	"bytes"
	"context"
	"io"
	"sort"

	"github.com/ipfs/go-cid"

	"xdao.co/ipfs-simple/storage"
)

// embeddedTransport forwards to an in-process (or gRPC-proxied) node.
type embeddedTransport struct {
	node storage.Node
}

func (*embeddedTransport) sealed() {}

func (e *embeddedTransport) pinAdd(ctx context.Context, id string) ([]string, error) {
	c, err := cid.Decode(id)
	if err != nil {
		return nil, err
	}
	got, err := e.node.PinAdd(ctx, c)
	if err != nil {
		return nil, err
	}
	if !got.Defined() {
		return nil, nil
	}
	return []string{got.String()}, nil
}

func (e *embeddedTransport) pinRm(ctx context.Context, id string) error {
	c, err := cid.Decode(id)
	if err != nil {
		return err
	}
	return e.node.PinRm(ctx, c)
}

func (e *embeddedTransport) cat(ctx context.Context, id string) ([]byte, error) {
	c, err := cid.Decode(id)
	if err != nil {
		return nil, err
	}
	rc, err := e.node.Cat(ctx, c)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (e *embeddedTransport) add(ctx context.Context, data []byte, opts storage.AddOptions) (string, error) {
	c, err := e.node.Add(ctx, bytes.NewReader(data), opts)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

func (e *embeddedTransport) isPinned(ctx context.Context, id string) (bool, error) {
	c, err := cid.Decode(id)
	if err != nil {
		return false, err
	}
	pins, err := e.node.PinLs(ctx, c)
	if err != nil {
		return false, err
	}
	for _, p := range pins {
		if p.Equals(c) {
			return true, nil
		}
	}
	return false, nil
}

func (e *embeddedTransport) listPinned(ctx context.Context) ([]string, error) {
	pins, err := e.node.PinLs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pins))
	for _, p := range pins {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out, nil
}

func (e *embeddedTransport) objectStat(ctx context.Context, id string) (storage.ObjectStat, error) {
	c, err := cid.Decode(id)
	if err != nil {
		return storage.ObjectStat{}, err
	}
	return e.node.ObjectStat(ctx, c)
}

func (e *embeddedTransport) swarmConnect(ctx context.Context, addr string) ([]string, error) {
	return e.node.SwarmConnect(ctx, addr)
}

func (e *embeddedTransport) id(ctx context.Context) (map[string]any, error) {
	return e.node.ID(ctx)
}
