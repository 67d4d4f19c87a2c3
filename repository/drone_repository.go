package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"droneDispatchService/models"
)

type DroneRepository struct {
	db dbtx
}

func NewDroneRepository(db *sql.DB) *DroneRepository {
	return &DroneRepository{db: db}
}

const droneColumns = `id, model, battery, state, location, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrone(s rowScanner) (*models.Drone, error) {
	var d models.Drone
	var model, state, updated string
	if err := s.Scan(&d.ID, &model, &d.Battery, &state, &d.Location, &d.Version, &updated); err != nil {
		return nil, err
	}
	d.Model = models.DroneModel(model)
	d.State = models.DroneState(state)
	t, err := parseTime(updated)
	if err != nil {
		return nil, err
	}
	d.UpdatedAt = t
	return &d, nil
}

// GetByID fetches a drone by its fleet id.
func (r *DroneRepository) GetByID(ctx context.Context, id string) (*models.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	d, err := scanDrone(r.db.QueryRowContext(ctx, `SELECT `+droneColumns+` FROM drones WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// List returns every drone ordered by id.
func (r *DroneRepository) List(ctx context.Context) ([]*models.Drone, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+droneColumns+` FROM drones ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Drone
	for rows.Next() {
		d, err := scanDrone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of drones in the fleet.
func (r *DroneRepository) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drones`).Scan(&n)
	return n, err
}

// Save upserts d. A drone with Version 0 is inserted; otherwise the row is
// updated only if its stored version still equals d.Version, and ErrConflict
// is returned when it does not. On success d.Version and d.UpdatedAt reflect
// the stored row.
func (r *DroneRepository) Save(ctx context.Context, d *models.Drone) error {
	if d == nil {
		return errors.New("drone is nil")
	}
	if d.ID == "" {
		return errors.New("drone id is empty")
	}
	if !d.State.Valid() {
		return fmt.Errorf("invalid drone state %q", d.State)
	}
	if !d.Model.Valid() {
		return fmt.Errorf("invalid drone model %q", d.Model)
	}
	d.SetBattery(d.Battery)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	if d.Version == 0 {
		res, err = r.db.ExecContext(ctx, `INSERT INTO drones (id, model, battery, state, location, version, updated_at) VALUES (?,?,?,?,?,1,?)
			ON CONFLICT(id) DO NOTHING`,
			d.ID, string(d.Model), d.Battery, string(d.State), d.Location, formatTime(now))
	} else {
		res, err = r.db.ExecContext(ctx, `UPDATE drones SET model = ?, battery = ?, state = ?, location = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			string(d.Model), d.Battery, string(d.State), d.Location, formatTime(now), d.ID, d.Version)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("save drone %s at version %d: %w", d.ID, d.Version, ErrConflict)
	}
	d.Version++
	d.UpdatedAt = now
	return nil
}
