package dispatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"droneDispatchService/internal/events"
	"droneDispatchService/internal/weather"
	"droneDispatchService/models"
	"droneDispatchService/repository"
)

type fakeDrones struct {
	mu      sync.Mutex
	m       map[string]models.Drone
	saves   int
	saveErr error
	listErr error
}

func newFakeDrones(ds ...models.Drone) *fakeDrones {
	f := &fakeDrones{m: map[string]models.Drone{}}
	for _, d := range ds {
		d.Version = 1
		f.m[d.ID] = d
	}
	return f
}

func (f *fakeDrones) GetByID(_ context.Context, id string) (*models.Drone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.m[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (f *fakeDrones) List(context.Context) ([]*models.Drone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	ids := []string{}
	for id := range f.m {
		ids = append(ids, id)
	}
	out := make([]*models.Drone, 0, len(ids))
	sort.Strings(ids)
	for _, id := range ids {
		d := f.m[id]
		out = append(out, &d)
	}
	return out, nil
}

func (f *fakeDrones) Save(_ context.Context, d *models.Drone) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	cur, ok := f.m[d.ID]
	if ok && cur.Version != d.Version {
		return fmt.Errorf("save drone %s: %w", d.ID, repository.ErrConflict)
	}
	d.Version++
	f.m[d.ID] = *d
	f.saves++
	return nil
}

func (f *fakeDrones) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.m), nil
}

func (f *fakeDrones) get(id string) models.Drone {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.m[id]
}

type fakeHistory struct {
	mu   sync.Mutex
	recs []models.DispatchRecord
}

func (f *fakeHistory) Append(_ context.Context, rec *models.DispatchRecord) (*models.DispatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *rec
	out.ID = int64(len(f.recs) + 1)
	f.recs = append(f.recs, out)
	return &out, nil
}

func (f *fakeHistory) List(_ context.Context, p repository.ListDispatchParams) ([]models.DispatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DispatchRecord
	for i := len(f.recs) - 1; i >= 0; i-- {
		r := f.recs[i]
		if p.Outcome != nil && r.Outcome != *p.Outcome {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeHistory) ListByDrone(_ context.Context, id string) ([]models.DispatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.DispatchRecord
	for i := len(f.recs) - 1; i >= 0; i-- {
		if f.recs[i].DroneID == id {
			out = append(out, f.recs[i])
		}
	}
	return out, nil
}

func (f *fakeHistory) all() []models.DispatchRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.DispatchRecord(nil), f.recs...)
}

// fakeTx restores both fakes when the unit of work fails.
type fakeTx struct {
	drones  *fakeDrones
	history *fakeHistory
}

func (f fakeTx) WithinTx(ctx context.Context, fn repository.TxFunc) error {
	f.drones.mu.Lock()
	saved := make(map[string]models.Drone, len(f.drones.m))
	for k, v := range f.drones.m {
		saved[k] = v
	}
	f.drones.mu.Unlock()
	f.history.mu.Lock()
	n := len(f.history.recs)
	f.history.mu.Unlock()

	if err := fn(ctx, f.drones, f.history); err != nil {
		f.drones.mu.Lock()
		f.drones.m = saved
		f.drones.mu.Unlock()
		f.history.mu.Lock()
		f.history.recs = f.history.recs[:n]
		f.history.mu.Unlock()
		return err
	}
	return nil
}

type fakeGateway struct {
	mu    sync.Mutex
	snaps map[string]weather.Snapshot
	errs  map[string]error
	calls []string
}

func (f *fakeGateway) GetWeather(_ context.Context, location string) (*weather.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, location)
	if err, ok := f.errs[location]; ok {
		return nil, err
	}
	s, ok := f.snaps[location]
	if !ok {
		return nil, fmt.Errorf("%w: %s", weather.ErrLocationNotFound, location)
	}
	s.Location = location
	return &s, nil
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type recordingPublisher struct {
	mu        sync.Mutex
	decisions []events.DecisionEvent
}

func (p *recordingPublisher) DecisionMade(_ context.Context, ev events.DecisionEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.decisions = append(p.decisions, ev)
}

func (p *recordingPublisher) DroneTransitioned(context.Context, events.TransitionEvent) {}

type countingRecorder struct {
	mu      sync.Mutex
	decided map[string]int
	failed  map[string]int
	lookups int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{decided: map[string]int{}, failed: map[string]int{}}
}

func (c *countingRecorder) DispatchDecided(o string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decided[o]++
}

func (c *countingRecorder) DispatchFailed(r string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[r]++
}

func (c *countingRecorder) WeatherLookup(time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookups++
}

func (c *countingRecorder) DroneTransitioned(string) {}

func (c *countingRecorder) TickCompleted(time.Duration, map[string]int) {}
