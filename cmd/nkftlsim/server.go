package main

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"github.com/flashlab/nkftlsim/internal/nkftl"
)

// statsResponse mirrors what an operator would want to poll off a live
// FTL: block-pool occupancy per tag and the data-block map's image size
// (spec.md §8's quiescent-state invariant made pollable).
type statsResponse struct {
	FreeBlocks   int     `json:"free_blocks"`
	LogBlocks    int     `json:"log_blocks"`
	DataBlocks   int     `json:"data_blocks"`
	UsedRatio    float64 `json:"used_ratio"`
	MappedLBNs   int     `json:"mapped_lbns"`
	ShouldGC     bool    `json:"should_gc"`
}

// InspectServer is the hand-rolled (non-protobuf) gRPC service interface,
// following the same shape as the teacher's TinySQLServer
// (_examples/SimonWaldherr-tinySQL/cmd/server/main.go): one method per RPC,
// registered against a grpc.ServiceDesc built by hand rather than generated
// from a .proto file.
type InspectServer interface {
	Stats(context.Context, *struct{}) (*statsResponse, error)
}

type inspectServer struct {
	ftl *nkftl.FTL
}

func (s *inspectServer) Stats(ctx context.Context, _ *struct{}) (*statsResponse, error) {
	return &statsResponse{
		FreeBlocks: s.ftl.Pool.CountBlocks(nkftl.TagFree, nil),
		LogBlocks:  s.ftl.Pool.CountBlocks(nkftl.TagLog, nil),
		DataBlocks: s.ftl.Pool.CountBlocks(nkftl.TagData, nil),
		UsedRatio:  s.ftl.Pool.UsedRatio(),
		MappedLBNs: s.ftl.DataMap.Len(),
		ShouldGC:   s.ftl.Decider.ShouldStart(),
	}, nil
}

func registerInspectServer(gs *grpc.Server, srv InspectServer) {
	gs.RegisterService(&grpc.ServiceDesc{
		ServiceName: "nkftlsim.Inspect",
		HandlerType: (*InspectServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Stats", Handler: inspectStatsHandler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "nkftlsim",
	}, srv)
}

func inspectStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(struct{})
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InspectServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/nkftlsim.Inspect/Stats"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InspectServer).Stats(ctx, req.(*struct{}))
	}
	return interceptor(ctx, in, info, handler)
}

// jsonCodec lets the demo gRPC service be exercised with curl-able tools in
// place of protoc-generated stubs, exactly as the teacher's server does.
type jsonCodec struct{}

func (jsonCodec) Name() string                        { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)        { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
