package grpcserver

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"droneDispatchService/internal/auth"
)

// RunTick runs one lifecycle sweep immediately. Admin only.
func (s *Server) RunTick(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := auth.RequireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if s.Scheduler == nil {
		return nil, status.Error(codes.Unimplemented, "lifecycle scheduler is not configured")
	}
	res, err := s.Scheduler.Tick(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	s.Log.Info().Str("principal", p.Name).Int("transitions", res.Transitions).Msg("manual sweep")
	return toStruct(tickReply{Drones: res.Drones, Transitions: res.Transitions, Conflicts: res.Conflicts, Failures: res.Failures})
}
