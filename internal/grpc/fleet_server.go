package grpcserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"droneDispatchService/internal/auth"
	"droneDispatchService/internal/dispatch"
)

const (
	maxPageSize     = 100 // Maximum allowed page size for list operations.
	defaultPageSize = 20  // Default page size for list operations.
	cursorPrefix    = "h|"
)

// ListFleet returns every drone with its model, battery, state and location.
func (s *Server) ListFleet(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireReader(ctx); err != nil {
		return nil, err
	}
	drones, err := s.Engine.Fleet(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(fleetReply{Drones: drones})
}

// ListHistory pages through dispatch records, newest first.
func (s *Server) ListHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireReader(ctx); err != nil {
		return nil, err
	}
	var q HistoryQuery
	if err := fromStruct(req, &q); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	var before int64
	if strings.TrimSpace(q.PageToken) != "" {
		id, err := decodeCursor(q.PageToken)
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid page_token: %v", err)
		}
		before = id
	}

	// One extra row tells us whether another page exists.
	recs, err := s.Engine.History(ctx, dispatch.HistoryFilter{Outcome: q.Outcome, PageSize: size + 1, BeforeID: before})
	if err != nil {
		return nil, toStatus(err)
	}
	page := HistoryPage{Records: recs}
	if len(recs) > size {
		page.Records = recs[:size]
		page.NextPageToken = encodeCursor(page.Records[size-1].ID)
	}
	return toStruct(page)
}

// GetDroneHistory returns every record of one drone, newest first.
func (s *Server) GetDroneHistory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := auth.RequireReader(ctx); err != nil {
		return nil, err
	}
	droneID := req.GetFields()["drone_id"].GetStringValue()
	recs, err := s.Engine.DroneHistory(ctx, droneID)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(droneHistoryReply{Records: recs})
}

// encodeCursor builds an opaque next_page_token from the last returned record id.
func encodeCursor(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.FormatInt(id, 10)))
}

// decodeCursor parses an opaque page_token into a record id.
func decodeCursor(token string) (int64, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("base64: %w", err)
	}
	raw, ok := strings.CutPrefix(string(b), cursorPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid cursor format")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse id: %w", err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid cursor id %d", id)
	}
	return id, nil
}
