package orderstore

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/swifttrack/core/internal/domain"
)

func TestCreateInsertsOrderAndHistoryInOneTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	store := &Store{db: db}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO orders")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_status_history")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	now := time.Now().UTC()
	orderRow := sqlmock.NewRows([]string{
		"id", "client_id", "status", "pickup_address", "delivery_address", "package_details",
		"cms_reference", "wms_reference", "route_id", "pickup_driver_id", "delivery_driver_id",
		"delivery_attempts", "max_delivery_attempts", "delivery_notes", "proof_of_delivery",
		"created_at", "updated_at",
	}).AddRow("order-1", "client1", domain.StatusPending, "P", "D", nil,
		nil, nil, nil, nil, nil, 0, 3, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM orders WHERE id = $1")).WillReturnRows(orderRow)
	mock.ExpectQuery(regexp.QuoteMeta("FROM order_status_history")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "old_status", "new_status", "details", "created_at"}))

	order, err := store.Create(context.Background(), "client1", "P", "D", domain.Document{"weight_kg": 2.5})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if order.Status != domain.StatusPending {
		t.Errorf("status = %s, want PENDING", order.Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestTransitionReturnsNilWhenOrderMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	store := &Store{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM orders WHERE id = $1 FOR UPDATE")).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	order, err := store.Transition(context.Background(), "missing", domain.StatusFailed, "not found", nil)
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if order != nil {
		t.Error("expected nil order for missing id")
	}
}
