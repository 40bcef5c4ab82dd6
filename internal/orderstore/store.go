// Package orderstore is the authoritative order state: every status
// transition, and the flat reference fields that accompany it, is
// written in a single Postgres transaction alongside its append-only
// history entry.
package orderstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/swifttrack/core/internal/autoassign"
	"github.com/swifttrack/core/internal/domain"
)

// Store is the Postgres-backed Order Store.
type Store struct {
	db *sql.DB
}

// Open connects to connString and verifies the connection, sizing the
// pool at 5 persistent plus 10 overflow connections per spec.md §5.
func Open(connString string) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("orderstore: open: %w", err)
	}
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(15)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("orderstore: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new order in PENDING and its initial history entry,
// in one transaction.
func (s *Store) Create(ctx context.Context, clientID, pickup, delivery string, details domain.Document) (*domain.Order, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("orderstore: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, client_id, status, pickup_address, delivery_address,
			package_details, delivery_attempts, max_delivery_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $8)
	`, id, clientID, domain.StatusPending, pickup, delivery, details, domain.DefaultMaxDeliveryAttempts, now)
	if err != nil {
		return nil, fmt.Errorf("orderstore: insert order: %w", err)
	}

	if err := insertHistory(ctx, tx, id, nil, domain.StatusPending, "order created", now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("orderstore: commit create: %w", err)
	}

	return s.Get(ctx, id)
}

// Get loads an order with its full history, newest-first elsewhere but
// chronological here since it's a chain (invariant 1 in spec.md §8).
func (s *Store) Get(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.scanOrder(ctx, s.db.QueryRowContext(ctx, orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, old_status, new_status, details, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("orderstore: query history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var h domain.StatusHistoryEntry
		var oldStatus sql.NullString
		if err := rows.Scan(&h.ID, &oldStatus, &h.NewStatus, &h.Details, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("orderstore: scan history: %w", err)
		}
		if oldStatus.Valid {
			s := domain.Status(oldStatus.String)
			h.OldStatus = &s
		}
		order.History = append(order.History, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orderstore: history rows: %w", err)
	}

	return order, nil
}

// ListFilters narrows List's result set. Zero values are "no filter".
type ListFilters struct {
	ClientID         string
	PickupDriverID   string
	DeliveryDriverID string
	DriverIDAny      string // matches pickup_driver_id OR delivery_driver_id
	Status           domain.Status
}

// List returns orders matching filters, newest-first, along with the
// total count ignoring limit/offset.
func (s *Store) List(ctx context.Context, filters ListFilters, limit, offset int) ([]*domain.Order, int, error) {
	where := "WHERE 1=1"
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filters.ClientID != "" {
		where += " AND client_id = " + arg(filters.ClientID)
	}
	if filters.PickupDriverID != "" {
		where += " AND pickup_driver_id = " + arg(filters.PickupDriverID)
	}
	if filters.DeliveryDriverID != "" {
		where += " AND delivery_driver_id = " + arg(filters.DeliveryDriverID)
	}
	if filters.DriverIDAny != "" {
		p := arg(filters.DriverIDAny)
		where += fmt.Sprintf(" AND (pickup_driver_id = %s OR delivery_driver_id = %s)", p, p)
	}
	if filters.Status != "" {
		where += " AND status = " + arg(filters.Status)
	}

	var total int
	countQuery := "SELECT count(*) FROM orders " + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("orderstore: count: %w", err)
	}

	query := orderColumns + " FROM orders " + where + " ORDER BY created_at DESC"
	args = append(args, limit, offset)
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("orderstore: list query: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("orderstore: list rows: %w", err)
	}

	return orders, total, nil
}

// Transition reads the current status, writes newStatus plus a matching
// history entry and any extra flat fields, all in one transaction.
// Transitions are not validated against the state machine: callers are
// trusted (spec.md §4.2).
func (s *Store) Transition(ctx context.Context, id string, newStatus domain.Status, details string, extra *domain.TransitionFields) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("orderstore: begin: %w", err)
	}
	defer tx.Rollback()

	var oldStatus domain.Status
	if err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&oldStatus); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("orderstore: read current status: %w", err)
	}

	now := time.Now().UTC()
	setClauses := "status = $2, updated_at = $3"
	args := []any{id, newStatus, now}

	if extra != nil {
		if extra.CMSReference != nil {
			args = append(args, *extra.CMSReference)
			setClauses += fmt.Sprintf(", cms_reference = $%d", len(args))
		}
		if extra.WMSReference != nil {
			args = append(args, *extra.WMSReference)
			setClauses += fmt.Sprintf(", wms_reference = $%d", len(args))
		}
		if extra.RouteID != nil {
			args = append(args, *extra.RouteID)
			setClauses += fmt.Sprintf(", route_id = $%d", len(args))
		}
		if extra.PickupDriverID != nil {
			args = append(args, *extra.PickupDriverID)
			setClauses += fmt.Sprintf(", pickup_driver_id = $%d", len(args))
		}
		if extra.DeliveryDriverID != nil {
			args = append(args, *extra.DeliveryDriverID)
			setClauses += fmt.Sprintf(", delivery_driver_id = $%d", len(args))
		}
		if extra.DeliveryAttempts != nil {
			args = append(args, *extra.DeliveryAttempts)
			setClauses += fmt.Sprintf(", delivery_attempts = $%d", len(args))
		}
		if extra.DeliveryNotes != nil {
			args = append(args, *extra.DeliveryNotes)
			setClauses += fmt.Sprintf(", delivery_notes = $%d", len(args))
		}
		if extra.ProofOfDelivery != nil {
			args = append(args, extra.ProofOfDelivery)
			setClauses += fmt.Sprintf(", proof_of_delivery = $%d", len(args))
		}
	}

	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = $1", setClauses)
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("orderstore: update order: %w", err)
	}

	if err := insertHistory(ctx, tx, id, &oldStatus, newStatus, details, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("orderstore: commit transition: %w", err)
	}

	return s.Get(ctx, id)
}

// ClientIDFor implements notify.ClientLookup: the notifier resolves an
// order's owning client before fanning a status change out over
// WebSocket, so delivery is filtered per client rather than broadcast.
func (s *Store) ClientIDFor(ctx context.Context, orderID string) (string, error) {
	var clientID string
	err := s.db.QueryRowContext(ctx, `SELECT client_id FROM orders WHERE id = $1`, orderID).Scan(&clientID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("orderstore: order %s not found", orderID)
	}
	if err != nil {
		return "", fmt.Errorf("orderstore: client lookup for %s: %w", orderID, err)
	}
	return clientID, nil
}

// ActiveLoadByDriver implements autoassign.LoadCounter: it groups orders
// in the phase's active statuses by the relevant driver column. Drivers
// with zero active orders simply don't appear in the result map, which
// the caller treats as load 0.
func (s *Store) ActiveLoadByDriver(ctx context.Context, phase autoassign.Phase) (map[string]int, error) {
	var statuses []domain.Status
	var driverColumn string
	switch phase {
	case autoassign.Pickup:
		statuses = domain.PickupActiveStatuses
		driverColumn = "pickup_driver_id"
	case autoassign.Delivery:
		statuses = domain.DeliveryActiveStatuses
		driverColumn = "delivery_driver_id"
	default:
		return nil, fmt.Errorf("orderstore: unknown phase %q", phase)
	}

	statusValues := make([]string, len(statuses))
	for i, st := range statuses {
		statusValues[i] = string(st)
	}

	query := fmt.Sprintf(`
		SELECT %s, count(*)
		FROM orders
		WHERE %s IS NOT NULL AND status = ANY($1)
		GROUP BY %s
	`, driverColumn, driverColumn, driverColumn)

	rows, err := s.db.QueryContext(ctx, query, pq.Array(statusValues))
	if err != nil {
		return nil, fmt.Errorf("orderstore: active load query: %w", err)
	}
	defer rows.Close()

	loads := make(map[string]int)
	for rows.Next() {
		var driverID string
		var count int
		if err := rows.Scan(&driverID, &count); err != nil {
			return nil, fmt.Errorf("orderstore: scan active load: %w", err)
		}
		loads[driverID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orderstore: active load rows: %w", err)
	}
	return loads, nil
}

func insertHistory(ctx context.Context, tx *sql.Tx, orderID string, oldStatus *domain.Status, newStatus domain.Status, details string, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, old_status, new_status, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, orderID, oldStatus, newStatus, details, at)
	if err != nil {
		return fmt.Errorf("orderstore: insert history: %w", err)
	}
	return nil
}

const orderColumns = `SELECT id, client_id, status, pickup_address, delivery_address, package_details,
	cms_reference, wms_reference, route_id, pickup_driver_id, delivery_driver_id,
	delivery_attempts, max_delivery_attempts, delivery_notes, proof_of_delivery,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanOrder(ctx context.Context, row *sql.Row) (*domain.Order, error) {
	o, err := scanOrderRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

func scanOrderRow(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.ClientID, &o.Status, &o.PickupAddress, &o.DeliveryAddress, &o.PackageDetails,
		&o.CMSReference, &o.WMSReference, &o.RouteID, &o.PickupDriverID, &o.DeliveryDriverID,
		&o.DeliveryAttempts, &o.MaxDeliveryAttempts, &o.DeliveryNotes, &o.ProofOfDelivery,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("orderstore: scan order: %w", err)
	}
	return &o, nil
}
