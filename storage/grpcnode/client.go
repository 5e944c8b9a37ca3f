package grpcnode

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ipfs/go-cid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ipfs-simple/storage"
)

// Client implements storage.Node over a Node gRPC service, so a node running
// in another process can be bound as the client's embedded capability.
type Client struct {
	cc     *grpc.ClientConn
	client NodeClient

	// Timeout applies per RPC when non-zero, in addition to the caller's context.
	Timeout time.Duration
}

var _ storage.Node = (*Client)(nil)

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int
}

func Dial(ctx context.Context, target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

// NewClient wraps an existing connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc, client: NewNodeClient(cc)}
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) PinAdd(ctx context.Context, id cid.Cid) (cid.Cid, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.PinAdd(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	return decodeReplyCID(reply.GetValue())
}

func (c *Client) PinRm(ctx context.Context, id cid.Cid) error {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	_, err := c.client.PinRm(ctx, wrapperspb.String(id.String()))
	return mapRPC(err)
}

func (c *Client) PinLs(ctx context.Context, ids ...cid.Cid) ([]cid.Cid, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	in := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(ids))}
	for _, id := range ids {
		in.Values = append(in.Values, structpb.NewStringValue(id.String()))
	}
	reply, err := c.client.PinLs(ctx, in)
	if err != nil {
		return nil, mapRPC(err)
	}
	out := make([]cid.Cid, 0, len(reply.GetValues()))
	for _, v := range reply.GetValues() {
		id, err := decodeReplyCID(v.GetStringValue())
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func (c *Client) Cat(ctx context.Context, id cid.Cid) (io.ReadCloser, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Cat(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return nil, mapRPC(err)
	}
	return io.NopCloser(bytes.NewReader(reply.GetValue())), nil
}

func (c *Client) Add(ctx context.Context, data io.Reader, opts storage.AddOptions) (cid.Cid, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return cid.Undef, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Add(addOptionsToMetadata(ctx, opts), wrapperspb.Bytes(b))
	if err != nil {
		return cid.Undef, mapRPC(err)
	}
	return decodeReplyCID(reply.GetValue())
}

func (c *Client) ObjectStat(ctx context.Context, id cid.Cid) (storage.ObjectStat, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.ObjectStat(ctx, wrapperspb.String(id.String()))
	if err != nil {
		return storage.ObjectStat{}, mapRPC(err)
	}
	f := reply.GetFields()
	return storage.ObjectStat{
		NumLinks:       int(f["NumLinks"].GetNumberValue()),
		BlockSize:      int(f["BlockSize"].GetNumberValue()),
		LinksSize:      int(f["LinksSize"].GetNumberValue()),
		DataSize:       int(f["DataSize"].GetNumberValue()),
		CumulativeSize: int64(f["CumulativeSize"].GetNumberValue()),
	}, nil
}

func (c *Client) SwarmConnect(ctx context.Context, addr string) ([]string, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.SwarmConnect(ctx, wrapperspb.String(addr))
	if err != nil {
		return nil, mapRPC(err)
	}
	out := make([]string, 0, len(reply.GetValues()))
	for _, v := range reply.GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out, nil
}

func (c *Client) ID(ctx context.Context) (map[string]any, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.ID(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, mapRPC(err)
	}
	return reply.AsMap(), nil
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

func decodeReplyCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, fmt.Errorf("grpcnode: server returned invalid cid %q: %w", s, storage.ErrInvalidCID)
	}
	return id, nil
}
