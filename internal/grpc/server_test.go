package grpcserver

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"droneDispatchService/internal/dispatch"
	"droneDispatchService/internal/lifecycle"
	"droneDispatchService/internal/safety"
	"droneDispatchService/internal/testutil"
	"droneDispatchService/internal/weather"
	"droneDispatchService/models"
	"droneDispatchService/repository"
)

const testSecret = "grpc-test-secret"

type suite struct {
	conn    *grpc.ClientConn
	client  *DispatchClient
	store   *repository.Store
	weather *testutil.WeatherServer
}

func newSuite(t *testing.T, name string) *suite {
	t.Helper()
	store := testutil.NewStore(t, name,
		testutil.IdleDrone("D-001", "Berlin"),
		&models.Drone{ID: "D-003", Model: models.DroneModelHeavyweight, Battery: 20, State: models.DroneStateMaintenance, Location: "Berlin"},
	)
	ws := testutil.NewWeatherServer(t, map[string]testutil.City{
		"Berlin":    {Latitude: 52.52, Longitude: 13.405, Temperature: 18, WindSpeed: 10},
		"Grunewald": {Latitude: 52.48, Longitude: 13.26, Temperature: 17, WindSpeed: 12},
	})
	engine := dispatch.NewEngine(store.Drones, store.Dispatches, store,
		weather.NewClient(ws.URL, 2*time.Second, zerolog.Nop()), safety.DefaultRules())
	sched := lifecycle.NewScheduler(store.Drones, time.Minute)

	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(testSecret, &Server{Engine: engine, Scheduler: sched, Log: zerolog.Nop()})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &suite{conn: conn, client: NewDispatchClient(conn), store: store, weather: ws}
}

func asKind(t *testing.T, kind string) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return testutil.OutgoingBearer(ctx, testutil.GenerateJWTHS256(t, testSecret, kind+"-user", kind))
}

func TestGRPC_HealthBypassesAuth(t *testing.T) {
	s := newSuite(t, "grpc_health")
	resp, err := healthpb.NewHealthClient(s.conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestGRPC_RequiresToken(t *testing.T) {
	s := newSuite(t, "grpc_noauth")
	_, err := s.client.ListFleet(context.Background())
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGRPC_DispatchApprovesAndRejects(t *testing.T) {
	s := newSuite(t, "grpc_dispatch")
	ctx := asKind(t, "dispatcher")

	reply, err := s.client.Dispatch(ctx, "D-001", "Berlin", "Grunewald")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", reply.Outcome)
	assert.Equal(t, dispatch.ReasonApproved, reply.Reason)
	assert.NotEmpty(t, reply.AttemptID)

	reply, err = s.client.Dispatch(ctx, "D-003", "Berlin", "Grunewald")
	require.NoError(t, err)
	assert.Equal(t, "REJECTED", reply.Outcome)
	assert.Equal(t, "Drone D-003 is currently MAINTENANCE", reply.Reason)

	fleet, err := s.client.ListFleet(ctx)
	require.NoError(t, err)
	require.Len(t, fleet, 2)
	assert.Equal(t, "IN_FLIGHT", fleet[0].State)
	assert.Equal(t, "Grunewald", fleet[0].Location)
	assert.Equal(t, models.DroneModelLightweight.Description(), fleet[0].ModelDescription)
}

func TestGRPC_DispatchErrorCodes(t *testing.T) {
	s := newSuite(t, "grpc_codes")
	ctx := asKind(t, "dispatcher")

	_, err := s.client.Dispatch(ctx, "D-404", "Berlin", "Grunewald")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = s.client.Dispatch(ctx, "D-001", "", "Grunewald")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.client.Dispatch(ctx, "D-001", "Berlin", "Atlantis")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	s.weather.Close()
	_, err = s.client.Dispatch(ctx, "D-001", "Berlin", "Grunewald")
	assert.Equal(t, codes.Unavailable, status.Code(err))

	page, err := s.client.ListHistory(ctx, HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Records)
}

func TestGRPC_ObserverCannotDispatch(t *testing.T) {
	s := newSuite(t, "grpc_observer")
	ctx := asKind(t, "observer")

	_, err := s.client.Dispatch(ctx, "D-001", "Berlin", "Grunewald")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = s.client.ListFleet(ctx)
	assert.NoError(t, err)

	_, err = s.client.RunTick(ctx)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestGRPC_HistoryPagination(t *testing.T) {
	s := newSuite(t, "grpc_history")
	ctx := asKind(t, "dispatcher")

	for i := 0; i < 5; i++ {
		_, err := s.client.Dispatch(ctx, "D-001", fmt.Sprintf("Nowhere-%d", i), "Grunewald")
		require.NoError(t, err)
	}

	first, err := s.client.ListHistory(ctx, HistoryQuery{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Records, 2)
	require.NotEmpty(t, first.NextPageToken)
	assert.Equal(t, "Drone is at Berlin, not Nowhere-4", first.Records[0].Reason)

	var seen []int64
	page := first
	for {
		for _, r := range page.Records {
			seen = append(seen, r.ID)
		}
		if page.NextPageToken == "" {
			break
		}
		page, err = s.client.ListHistory(ctx, HistoryQuery{PageSize: 2, PageToken: page.NextPageToken})
		require.NoError(t, err)
	}
	require.Len(t, seen, 5)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i-1], seen[i])
	}

	approved, err := s.client.ListHistory(ctx, HistoryQuery{Outcome: "APPROVED"})
	require.NoError(t, err)
	assert.Empty(t, approved.Records)

	_, err = s.client.ListHistory(ctx, HistoryQuery{PageToken: "!!"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.client.ListHistory(ctx, HistoryQuery{Outcome: "MAYBE"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	mine, err := s.client.GetDroneHistory(ctx, "D-001")
	require.NoError(t, err)
	assert.Len(t, mine, 5)
}

func TestGRPC_RunTickAdvancesFleet(t *testing.T) {
	s := newSuite(t, "grpc_tick")
	ctx := asKind(t, "admin")

	_, err := s.client.Dispatch(ctx, "D-001", "Berlin", "Grunewald")
	require.NoError(t, err)

	res, err := s.client.RunTick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Drones)
	assert.Equal(t, 2, res.Transitions)

	d, err := s.store.Drones.GetByID(context.Background(), "D-001")
	require.NoError(t, err)
	assert.Equal(t, models.DroneStateIdle, d.State)
	assert.Equal(t, 80.0, d.Battery)

	d3, err := s.store.Drones.GetByID(context.Background(), "D-003")
	require.NoError(t, err)
	assert.Equal(t, 45.0, d3.Battery)
}

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		code codes.Code
	}{
		{fmt.Errorf("x: %w", dispatch.ErrInvalidRequest), codes.InvalidArgument},
		{fmt.Errorf("x: %w", weather.ErrLocationNotFound), codes.InvalidArgument},
		{fmt.Errorf("x: %w", dispatch.ErrDroneNotFound), codes.NotFound},
		{fmt.Errorf("x: %w", weather.ErrUnavailable), codes.Unavailable},
		{fmt.Errorf("x: %w", repository.ErrConflict), codes.Aborted},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
		{status.Error(codes.PermissionDenied, "no"), codes.PermissionDenied},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, status.Code(toStatus(tc.err)), tc.err.Error())
	}
	assert.NoError(t, toStatus(nil))
}

func TestCursor_RoundTrip(t *testing.T) {
	id, err := decodeCursor(encodeCursor(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"***", encodeCursorRaw("x|1"), encodeCursorRaw("h|abc"), encodeCursorRaw("h|0")} {
		_, err := decodeCursor(bad)
		assert.Error(t, err, bad)
	}
}

func encodeCursorRaw(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}
