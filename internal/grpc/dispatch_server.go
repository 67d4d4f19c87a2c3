package grpcserver

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"droneDispatchService/internal/auth"
	"droneDispatchService/internal/dispatch"
)

// Dispatch asks the engine to fly drone_id from origin to destination.
// A rejected flight is a successful call whose outcome is REJECTED.
func (s *Server) Dispatch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequireDispatcher(ctx)
	if err != nil {
		return nil, err
	}
	var in struct {
		DroneID     string `json:"drone_id"`
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
	}
	if err := fromStruct(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	dec, err := s.Engine.Dispatch(ctx, dispatch.Request{DroneID: in.DroneID, Origin: in.Origin, Destination: in.Destination})
	if err != nil {
		s.Log.Warn().Err(err).Str("principal", p.Name).Str("drone_id", in.DroneID).Msg("dispatch failed")
		return nil, toStatus(err)
	}
	reply := DecisionReply{DroneID: dec.DroneID, Outcome: dec.Outcome.String(), Reason: dec.Reason}
	if dec.Record != nil {
		reply.AttemptID = dec.Record.AttemptID
	}
	return toStruct(reply)
}
