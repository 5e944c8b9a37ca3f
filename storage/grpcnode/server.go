package grpcnode

import (
	"bytes"
	"context"
	"io"
	"strconv"

	"github.com/ipfs/go-cid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ipfs-simple/storage"
)

// Server exposes a storage.Node over the Node gRPC service.
type Server struct {
	UnimplementedNodeServer
	Node   storage.Node
	Logger *zap.Logger
}

func (s *Server) PinAdd(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	pinned, err := s.Node.PinAdd(ctx, id)
	if err != nil {
		return nil, s.fail("PinAdd", err)
	}
	return wrapperspb.String(pinned.String()), nil
}

func (s *Server) PinRm(ctx context.Context, in *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	if err := s.Node.PinRm(ctx, id); err != nil {
		return nil, s.fail("PinRm", err)
	}
	return &emptypb.Empty{}, nil
}

func (s *Server) PinLs(ctx context.Context, in *structpb.ListValue) (*structpb.ListValue, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ids := make([]cid.Cid, 0, len(in.GetValues()))
	for _, v := range in.GetValues() {
		id, err := decodeCID(v.GetStringValue())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	pins, err := s.Node.PinLs(ctx, ids...)
	if err != nil {
		return nil, s.fail("PinLs", err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(pins))}
	for _, p := range pins {
		out.Values = append(out.Values, structpb.NewStringValue(p.String()))
	}
	return out, nil
}

func (s *Server) Cat(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	rc, err := s.Node.Cat(ctx, id)
	if err != nil {
		return nil, s.fail("Cat", err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, s.fail("Cat", err)
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Add(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	opts, err := addOptionsFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	id, err := s.Node.Add(ctx, bytes.NewReader(in.GetValue()), opts)
	if err != nil {
		return nil, s.fail("Add", err)
	}
	return wrapperspb.String(id.String()), nil
}

func (s *Server) ObjectStat(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	id, err := decodeCID(in.GetValue())
	if err != nil {
		return nil, err
	}
	st, err := s.Node.ObjectStat(ctx, id)
	if err != nil {
		return nil, s.fail("ObjectStat", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"NumLinks":       structpb.NewNumberValue(float64(st.NumLinks)),
		"BlockSize":      structpb.NewNumberValue(float64(st.BlockSize)),
		"LinksSize":      structpb.NewNumberValue(float64(st.LinksSize)),
		"DataSize":       structpb.NewNumberValue(float64(st.DataSize)),
		"CumulativeSize": structpb.NewNumberValue(float64(st.CumulativeSize)),
	}}, nil
}

func (s *Server) SwarmConnect(ctx context.Context, in *wrapperspb.StringValue) (*structpb.ListValue, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	lines, err := s.Node.SwarmConnect(ctx, in.GetValue())
	if err != nil {
		return nil, s.fail("SwarmConnect", err)
	}
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(lines))}
	for _, l := range lines {
		out.Values = append(out.Values, structpb.NewStringValue(l))
	}
	return out, nil
}

func (s *Server) ID(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	id, err := s.Node.ID(ctx)
	if err != nil {
		return nil, s.fail("ID", err)
	}
	out, err := structpb.NewStruct(id)
	if err != nil {
		return nil, status.Error(codes.Internal, "id: "+err.Error())
	}
	return out, nil
}

func (s *Server) check() error {
	if s == nil || s.Node == nil {
		return status.Error(codes.FailedPrecondition, "missing node")
	}
	return nil
}

func (s *Server) fail(method string, err error) error {
	if s.Logger != nil {
		s.Logger.Debug("node call failed", zap.String("method", method), zap.Error(err))
	}
	return mapErr(err)
}

func decodeCID(s string) (cid.Cid, error) {
	id, err := cid.Decode(s)
	if err != nil || !id.Defined() {
		return cid.Undef, status.Error(codes.InvalidArgument, storage.ErrInvalidCID.Error())
	}
	return id, nil
}

const (
	mdPin       = "pin"
	mdRawLeaves = "raw-leaves"
	mdHash      = "hash"
)

func addOptionsToMetadata(ctx context.Context, opts storage.AddOptions) context.Context {
	kv := []string{
		mdPin, strconv.FormatBool(opts.Pin),
		mdRawLeaves, strconv.FormatBool(opts.RawLeaves),
	}
	if opts.HashFunc != "" {
		kv = append(kv, mdHash, opts.HashFunc)
	}
	return metadata.AppendToOutgoingContext(ctx, kv...)
}

func addOptionsFromMetadata(ctx context.Context) (storage.AddOptions, error) {
	var opts storage.AddOptions
	md, _ := metadata.FromIncomingContext(ctx)
	parseBool := func(key string) (bool, error) {
		vs := md.Get(key)
		if len(vs) == 0 {
			return false, nil
		}
		b, err := strconv.ParseBool(vs[0])
		if err != nil {
			return false, status.Errorf(codes.InvalidArgument, "invalid %s metadata %q", key, vs[0])
		}
		return b, nil
	}
	var err error
	if opts.Pin, err = parseBool(mdPin); err != nil {
		return opts, err
	}
	if opts.RawLeaves, err = parseBool(mdRawLeaves); err != nil {
		return opts, err
	}
	if vs := md.Get(mdHash); len(vs) > 0 {
		opts.HashFunc = vs[0]
	}
	return opts, nil
}
