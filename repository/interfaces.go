package repository

import (
	"context"

	"droneDispatchService/models"
)

// DroneRepositoryI defines operations on Drone entities.
// GetByID returns nil, nil when the drone does not exist.
type DroneRepositoryI interface {
	GetByID(ctx context.Context, id string) (*models.Drone, error)
	List(ctx context.Context) ([]*models.Drone, error)
	Save(ctx context.Context, d *models.Drone) error
	Count(ctx context.Context) (int, error)
}

// DispatchRepositoryI defines operations on the append-only dispatch history.
type DispatchRepositoryI interface {
	Append(ctx context.Context, rec *models.DispatchRecord) (*models.DispatchRecord, error)
	List(ctx context.Context, p ListDispatchParams) ([]models.DispatchRecord, error)
	ListByDrone(ctx context.Context, droneID string) ([]models.DispatchRecord, error)
}

// TxFunc receives repositories bound to a single transaction.
type TxFunc func(ctx context.Context, drones DroneRepositoryI, dispatches DispatchRepositoryI) error

// TxRunner runs a unit of work atomically across both repositories.
type TxRunner interface {
	WithinTx(ctx context.Context, fn TxFunc) error
}
