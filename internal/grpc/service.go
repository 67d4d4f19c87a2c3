package grpcserver

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"droneDispatchService/internal/dispatch"
	"droneDispatchService/internal/lifecycle"
)

// ServiceName is the fully qualified gRPC service name. Messages are
// google.protobuf.Struct so no generated stubs are needed.
const ServiceName = "dronedispatch.v1.DispatchService"

const (
	MethodDispatch        = "/" + ServiceName + "/Dispatch"
	MethodListFleet       = "/" + ServiceName + "/ListFleet"
	MethodListHistory     = "/" + ServiceName + "/ListHistory"
	MethodGetDroneHistory = "/" + ServiceName + "/GetDroneHistory"
	MethodRunTick         = "/" + ServiceName + "/RunTick"
)

// DispatchServiceServer is the server API for DispatchService.
type DispatchServiceServer interface {
	Dispatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListFleet(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetDroneHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunTick(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodDesc(name string, pick func(DispatchServiceServer) unaryMethod) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			m := pick(srv.(DispatchServiceServer))
			if interceptor == nil {
				return m(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return m(ctx, req.(*structpb.Struct))
			})
		},
	}
}

// DispatchServiceDesc describes DispatchService for grpc.Server.RegisterService.
var DispatchServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DispatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodDesc("Dispatch", func(s DispatchServiceServer) unaryMethod { return s.Dispatch }),
		methodDesc("ListFleet", func(s DispatchServiceServer) unaryMethod { return s.ListFleet }),
		methodDesc("ListHistory", func(s DispatchServiceServer) unaryMethod { return s.ListHistory }),
		methodDesc("GetDroneHistory", func(s DispatchServiceServer) unaryMethod { return s.GetDroneHistory }),
		methodDesc("RunTick", func(s DispatchServiceServer) unaryMethod { return s.RunTick }),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dronedispatch/v1/dispatch.proto",
}

// RegisterDispatchServiceServer registers srv on s.
func RegisterDispatchServiceServer(s grpc.ServiceRegistrar, srv DispatchServiceServer) {
	s.RegisterService(&DispatchServiceDesc, srv)
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// fromStruct decodes a Struct into a JSON-tagged value.
func fromStruct(s *structpb.Struct, v any) error {
	b, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// DecisionReply is the Dispatch response.
type DecisionReply struct {
	DroneID   string `json:"drone_id"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason"`
	AttemptID string `json:"attempt_id"`
}

// HistoryQuery is the ListHistory request.
type HistoryQuery struct {
	Outcome   string `json:"outcome,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
	PageToken string `json:"page_token,omitempty"`
}

// HistoryPage is the ListHistory response.
type HistoryPage struct {
	Records       []dispatch.HistoryView `json:"records"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

type fleetReply struct {
	Drones []dispatch.DroneView `json:"drones"`
}

type droneHistoryReply struct {
	Records []dispatch.HistoryView `json:"records"`
}

type tickReply struct {
	Drones      int `json:"drones"`
	Transitions int `json:"transitions"`
	Conflicts   int `json:"conflicts"`
	Failures    int `json:"failures"`
}

// DispatchClient is a typed client for DispatchService.
type DispatchClient struct {
	cc grpc.ClientConnInterface
}

func NewDispatchClient(cc grpc.ClientConnInterface) *DispatchClient {
	return &DispatchClient{cc: cc}
}

func (c *DispatchClient) call(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := toStruct(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, resp, opts...); err != nil {
		return err
	}
	if err := fromStruct(resp, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Dispatch requests a flight. Rejections are returned as replies, not errors.
func (c *DispatchClient) Dispatch(ctx context.Context, droneID, origin, destination string, opts ...grpc.CallOption) (*DecisionReply, error) {
	in := map[string]string{"drone_id": droneID, "origin": origin, "destination": destination}
	out := &DecisionReply{}
	if err := c.call(ctx, MethodDispatch, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DispatchClient) ListFleet(ctx context.Context, opts ...grpc.CallOption) ([]dispatch.DroneView, error) {
	out := &fleetReply{}
	if err := c.call(ctx, MethodListFleet, struct{}{}, out, opts...); err != nil {
		return nil, err
	}
	return out.Drones, nil
}

func (c *DispatchClient) ListHistory(ctx context.Context, q HistoryQuery, opts ...grpc.CallOption) (*HistoryPage, error) {
	out := &HistoryPage{}
	if err := c.call(ctx, MethodListHistory, q, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *DispatchClient) GetDroneHistory(ctx context.Context, droneID string, opts ...grpc.CallOption) ([]dispatch.HistoryView, error) {
	out := &droneHistoryReply{}
	if err := c.call(ctx, MethodGetDroneHistory, map[string]string{"drone_id": droneID}, out, opts...); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// RunTick triggers one lifecycle sweep on the server.
func (c *DispatchClient) RunTick(ctx context.Context, opts ...grpc.CallOption) (*lifecycle.TickResult, error) {
	out := &tickReply{}
	if err := c.call(ctx, MethodRunTick, struct{}{}, out, opts...); err != nil {
		return nil, err
	}
	return &lifecycle.TickResult{Drones: out.Drones, Transitions: out.Transitions, Conflicts: out.Conflicts, Failures: out.Failures}, nil
}
