// Package client is a content client over an IPFS-style service. One Client
// presents the same operations whether it talks to a remote HTTP gateway or
// to an in-process node, and callers never need to know which is active.
//
// A Client starts unbound and sends requests to DefaultAPI. BindRemoteAddress
// and BindEmbeddedNode switch backends synchronously; CreateEmbeddedNode
// constructs a node, and operations issued while it runs wait for it and then
// use the new node.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"xdao.co/ipfs-simple/cidutil"
	"xdao.co/ipfs-simple/storage"
	"xdao.co/ipfs-simple/storage/memnode"
)

const (
	// DefaultAPI is the gateway an unbound client talks to.
	DefaultAPI = "http://127.0.0.1:5001/api/v0/"

	// DefaultTimeout is the per-call budget when none is configured.
	DefaultTimeout = 600000 * time.Millisecond
)

const (
	opPinAdd       = "pin add"
	opPinRm        = "pin rm"
	opCat          = "cat"
	opAdd          = "add"
	opPinLs        = "pin ls"
	opObjectStat   = "object stat"
	opSwarmConnect = "swarm connect"
	opIdentify     = "id"
)

// NodeFactory constructs an embedded node and an optional close function.
type NodeFactory func(ctx context.Context) (storage.Node, func() error, error)

type Options struct {
	// HTTPClient is used for the remote gateway. Nil means http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives lifecycle (Info), dispatch (Debug) and fallback (Warn)
	// events. Nil disables logging.
	Logger *zap.Logger

	// Timeout is the default per-call budget. Zero means DefaultTimeout.
	Timeout time.Duration

	// NodeFactory backs CreateEmbeddedNode. Nil means a fresh in-memory node.
	NodeFactory NodeFactory
}

// Client is safe for concurrent use.
type Client struct {
	h       handle
	http    *http.Client
	log     *zap.Logger
	timeout time.Duration
	factory NodeFactory
}

func New(opts Options) *Client {
	c := &Client{
		http:    opts.HTTPClient,
		log:     opts.Logger,
		timeout: opts.Timeout,
		factory: opts.NodeFactory,
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.factory == nil {
		log := c.log
		c.factory = func(ctx context.Context) (storage.Node, func() error, error) {
			n, err := memnode.New(memnode.Options{Logger: log.Named("memnode")})
			if err != nil {
				return nil, nil, err
			}
			return n, n.Close, nil
		}
	}
	return c
}

// Backend describes what the client currently dispatches to.
type Backend struct {
	Mode Mode
	// BaseURL is the gateway base for ModeUnbound and ModeRemote.
	BaseURL string
	// Node is set for ModeEmbedded.
	Node storage.Node
}

func (c *Client) Backend() Backend {
	s := c.h.snapshot()
	b := Backend{Mode: s.mode, BaseURL: s.baseURL, Node: s.node}
	if s.mode == ModeUnbound {
		b.BaseURL = DefaultAPI
	}
	return b
}

// BindRemoteAddress directs subsequent operations to the gateway at baseURL.
// No network call is made.
func (c *Client) BindRemoteAddress(baseURL string) error {
	u, err := normalizeBaseURL(baseURL)
	if err != nil {
		return err
	}
	if err := c.h.bindRemote(u); err != nil {
		return err
	}
	c.log.Info("bound remote gateway", zap.String("url", u))
	return nil
}

// BindEmbeddedNode directs subsequent operations to node.
func (c *Client) BindEmbeddedNode(node storage.Node) error {
	if node == nil {
		return fmt.Errorf("client: nil node")
	}
	if err := c.h.bindEmbedded(node); err != nil {
		return err
	}
	c.log.Info("bound embedded node")
	return nil
}

// CreateEmbeddedNode constructs a node with the configured factory and binds
// it. It fails with AlreadyBound unless the client is still unbound.
// Operations issued while construction runs wait for it.
func (c *Client) CreateEmbeddedNode(ctx context.Context) error {
	r, err := c.h.beginInit()
	if err != nil {
		return err
	}
	c.log.Info("creating embedded node")

	node, closeNode, err := c.buildNode(ctx)
	c.h.finishInit(r, node, closeNode, err)
	if r.err != nil {
		c.log.Warn("embedded node construction failed", zap.Error(r.err))
		return storage.WrapError(storage.KindBackend, "create embedded node", "", r.err)
	}
	c.log.Info("embedded node ready")
	return nil
}

// buildNode runs the factory. A panic is reported as an error so the pending
// initialization always settles.
func (c *Client) buildNode(ctx context.Context) (node storage.Node, closeNode func() error, err error) {
	defer func() {
		if p := recover(); p != nil {
			node, closeNode = nil, nil
			err = fmt.Errorf("client: node factory panicked: %v", p)
		}
	}()
	return c.factory(ctx)
}

// Close releases a node the client constructed itself. Nodes passed to
// BindEmbeddedNode are left to their owner.
func (c *Client) Close() error {
	if closeNode := c.h.takeCloser(); closeNode != nil {
		return closeNode()
	}
	return nil
}

// IdentifierToDigest returns the hex SHA-256 digest inside id.
func (c *Client) IdentifierToDigest(id string) (string, error) {
	return cidutil.IdentifierToDigest(id)
}

// DigestToIdentifier returns the CIDv1 raw identifier for a hex SHA-256 digest.
func (c *Client) DigestToIdentifier(digest string) (string, error) {
	return cidutil.DigestToIdentifier(digest)
}

// PinAdd pins id and reports whether the backend now lists exactly id as
// pinned.
func (c *Client) PinAdd(ctx context.Context, id string, opts ...CallOption) (bool, error) {
	id, err := canonical(opPinAdd, id)
	if err != nil {
		return false, err
	}
	var pins []string
	err = c.dispatch(ctx, opPinAdd, id, opts, func(ctx context.Context, t transport) error {
		var err error
		pins, err = t.pinAdd(ctx, id)
		return err
	})
	if err != nil {
		return false, err
	}
	return listsIdentifier(pins, id), nil
}

func (c *Client) PinRemove(ctx context.Context, id string, opts ...CallOption) error {
	id, err := canonical(opPinRm, id)
	if err != nil {
		return err
	}
	return c.dispatch(ctx, opPinRm, id, opts, func(ctx context.Context, t transport) error {
		return t.pinRm(ctx, id)
	})
}

func (c *Client) FetchBytes(ctx context.Context, id string, opts ...CallOption) ([]byte, error) {
	id, err := canonical(opCat, id)
	if err != nil {
		return nil, err
	}
	var b []byte
	err = c.dispatch(ctx, opCat, id, opts, func(ctx context.Context, t transport) error {
		var err error
		b, err = t.cat(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// FetchText fetches id as UTF-8 text; invalid sequences become U+FFFD.
func (c *Client) FetchText(ctx context.Context, id string, opts ...CallOption) (string, error) {
	b, err := c.FetchBytes(ctx, id, opts...)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), "\uFFFD"), nil
}

// FetchJSON fetches id and decodes it into v.
func (c *Client) FetchJSON(ctx context.Context, id string, v any, opts ...CallOption) error {
	b, err := c.FetchBytes(ctx, id, opts...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return storage.WrapError(storage.KindMalformedJSON, opCat, id, err)
	}
	return nil
}

// PublishJSON serializes v, stores it pinned as a raw-leaf sha2-256 object and
// returns its identifier.
func (c *Client) PublishJSON(ctx context.Context, v any, opts ...CallOption) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", storage.WrapError(storage.KindMalformedJSON, opAdd, "", err)
	}
	return c.publish(ctx, b, storage.AddOptions{Pin: true, RawLeaves: true, HashFunc: "sha2-256"}, opts)
}

// PublishBytes stores data pinned with sha2-256 and returns its identifier.
func (c *Client) PublishBytes(ctx context.Context, data []byte, opts ...CallOption) (string, error) {
	return c.publish(ctx, data, storage.AddOptions{Pin: true, HashFunc: "sha2-256"}, opts)
}

func (c *Client) publish(ctx context.Context, data []byte, add storage.AddOptions, opts []CallOption) (string, error) {
	var id string
	err := c.dispatch(ctx, opAdd, "", opts, func(ctx context.Context, t transport) error {
		var err error
		id, err = t.add(ctx, data, add)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (c *Client) IsPinned(ctx context.Context, id string, opts ...CallOption) (bool, error) {
	id, err := canonical(opPinLs, id)
	if err != nil {
		return false, err
	}
	var pinned bool
	err = c.dispatch(ctx, opPinLs, id, opts, func(ctx context.Context, t transport) error {
		var err error
		pinned, err = t.isPinned(ctx, id)
		return err
	})
	if err != nil {
		return false, err
	}
	return pinned, nil
}

// ListPinned returns every pinned identifier, sorted.
func (c *Client) ListPinned(ctx context.Context, opts ...CallOption) ([]string, error) {
	var ids []string
	err := c.dispatch(ctx, opPinLs, "", opts, func(ctx context.Context, t transport) error {
		var err error
		ids, err = t.listPinned(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CumulativeSize returns the backend's cumulative size for id. If the stat
// fails for any reason other than the budget or the caller's context, the
// size falls back to the length of the fetched content.
func (c *Client) CumulativeSize(ctx context.Context, id string, opts ...CallOption) (int64, error) {
	id, err := canonical(opObjectStat, id)
	if err != nil {
		return 0, err
	}
	var st storage.ObjectStat
	err = c.dispatch(ctx, opObjectStat, id, opts, func(ctx context.Context, t transport) error {
		var err error
		st, err = t.objectStat(ctx, id)
		return err
	})
	if err == nil {
		return st.CumulativeSize, nil
	}
	switch storage.KindOf(err) {
	case storage.KindTimeout, storage.KindCanceled:
		return 0, err
	}

	c.log.Warn("object stat failed; falling back to fetched length", zap.String("ref", id), zap.Error(err))
	b, err := c.FetchBytes(ctx, id, opts...)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// ConnectPeer asks the backend to connect to the peer at addr and reports
// whether the first status line ends with "success".
func (c *Client) ConnectPeer(ctx context.Context, addr string, opts ...CallOption) (bool, error) {
	var lines []string
	err := c.dispatch(ctx, opSwarmConnect, addr, opts, func(ctx context.Context, t transport) error {
		var err error
		lines, err = t.swarmConnect(ctx, addr)
		return err
	})
	if err != nil {
		return false, err
	}
	return len(lines) > 0 && strings.HasSuffix(lines[0], "success"), nil
}

// Identify returns the backend's identity record. Its shape is backend
// defined: the gateway uses ID/PublicKey/Addresses/AgentVersion/Protocols,
// in-process nodes use id/publicKey/addresses/agentVersion/protocols.
func (c *Client) Identify(ctx context.Context, opts ...CallOption) (map[string]any, error) {
	var out map[string]any
	err := c.dispatch(ctx, opIdentify, "", opts, func(ctx context.Context, t transport) error {
		var err error
		out, err = t.id(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// canonical validates id before it reaches a URL path or a node.
func canonical(op, id string) (string, error) {
	if _, err := cidutil.ParseIdentifier(id); err != nil {
		return "", storage.WrapError(storage.KindMalformedIdentifier, op, strings.TrimSpace(id), err)
	}
	return strings.TrimSpace(id), nil
}

// listsIdentifier reports whether pins contains id itself, comparing decoded
// identifiers so multibase spelling does not matter.
func listsIdentifier(pins []string, id string) bool {
	want, err := cidutil.ParseIdentifier(id)
	if err != nil {
		return false
	}
	for _, p := range pins {
		got, err := cidutil.ParseIdentifier(p)
		if err == nil && got.Equals(want) {
			return true
		}
	}
	return false
}

func normalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("client: invalid gateway address %q: %w", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("client: invalid gateway address %q: want http(s)://host[:port]/path/", raw)
	}
	s := u.String()
	if !strings.HasSuffix(s, "/") {
		s += "/"
	}
	return s, nil
}
