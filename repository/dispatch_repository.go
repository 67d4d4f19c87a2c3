package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"droneDispatchService/models"
)

// DispatchRepository stores the append-only dispatch history.
type DispatchRepository struct {
	db dbtx
}

func NewDispatchRepository(db *sql.DB) *DispatchRepository {
	return &DispatchRepository{db: db}
}

const dispatchColumns = `id, attempt_id, drone_id, origin, destination, outcome, reason,
	origin_temp, origin_wind, origin_weather_code, dest_temp, dest_wind, dest_weather_code, distance_km, created_at`

// Append inserts rec and returns it with the store-assigned id.
func (r *DispatchRepository) Append(ctx context.Context, rec *models.DispatchRecord) (*models.DispatchRecord, error) {
	if rec == nil {
		return nil, errors.New("dispatch record is nil")
	}
	if !rec.Outcome.Valid() {
		return nil, errors.New("dispatch record outcome is invalid")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ot, ow, oc := weatherArgs(rec.OriginWeather)
	dt, dw, dc := weatherArgs(rec.DestWeather)
	var distance any
	if rec.DistanceKm != nil {
		distance = *rec.DistanceKm
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO dispatch_records (attempt_id, drone_id, origin, destination, outcome, reason,
		origin_temp, origin_wind, origin_weather_code, dest_temp, dest_wind, dest_weather_code, distance_km, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.AttemptID, rec.DroneID, rec.Origin, rec.Destination, string(rec.Outcome), rec.Reason,
		ot, ow, oc, dt, dw, dc, distance, formatTime(rec.Timestamp))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	out := *rec
	out.ID = id
	out.Timestamp = rec.Timestamp.UTC()
	return &out, nil
}

func weatherArgs(w *models.WeatherConditions) (temp, wind, code any) {
	if w == nil {
		return nil, nil, nil
	}
	return w.Temperature, w.WindSpeed, w.WeatherCode
}

// ListDispatchParams filters and paginates the history, newest first.
// Order is by id, which follows insertion order regardless of timestamps.
// A zero PageSize returns every matching record.
type ListDispatchParams struct {
	Outcome  *models.DispatchOutcome
	PageSize int
	BeforeID int64
}

const maxPageSize = 500

// List returns records matching p ordered newest first, with keyset pagination by id.
func (r *DispatchRepository) List(ctx context.Context, p ListDispatchParams) ([]models.DispatchRecord, error) {
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	where := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if p.Outcome != nil {
		where = append(where, "outcome = ?")
		args = append(args, string(*p.Outcome))
	}
	if p.BeforeID > 0 {
		where = append(where, "id < ?")
		args = append(args, p.BeforeID)
	}
	query := "SELECT " + dispatchColumns + " FROM dispatch_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if p.PageSize > 0 {
		query += " LIMIT ?"
		args = append(args, p.PageSize)
	}
	return r.query(ctx, query, args...)
}

// ListByDrone returns every record for droneID, newest first.
func (r *DispatchRepository) ListByDrone(ctx context.Context, droneID string) ([]models.DispatchRecord, error) {
	return r.query(ctx, "SELECT "+dispatchColumns+" FROM dispatch_records WHERE drone_id = ? ORDER BY id DESC", droneID)
}

func (r *DispatchRepository) query(ctx context.Context, query string, args ...any) ([]models.DispatchRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.DispatchRecord{}
	for rows.Next() {
		var rec models.DispatchRecord
		var outcome, created string
		var ot, ow, dt, dw, distance sql.NullFloat64
		var oc, dc sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.AttemptID, &rec.DroneID, &rec.Origin, &rec.Destination, &outcome, &rec.Reason,
			&ot, &ow, &oc, &dt, &dw, &dc, &distance, &created); err != nil {
			return nil, err
		}
		rec.Outcome = models.DispatchOutcome(outcome)
		rec.OriginWeather = weatherFromColumns(ot, ow, oc)
		rec.DestWeather = weatherFromColumns(dt, dw, dc)
		if distance.Valid {
			v := distance.Float64
			rec.DistanceKm = &v
		}
		ts, err := parseTime(created)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = ts
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func weatherFromColumns(temp, wind sql.NullFloat64, code sql.NullInt64) *models.WeatherConditions {
	if !temp.Valid && !wind.Valid && !code.Valid {
		return nil
	}
	return &models.WeatherConditions{
		Temperature: temp.Float64,
		WindSpeed:   wind.Float64,
		WeatherCode: int(code.Int64),
	}
}
