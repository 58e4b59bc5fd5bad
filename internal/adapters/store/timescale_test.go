package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/vaamb/gaia/internal/domain"
)

func TestTimescaleRecorderAppendMeasurements(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rec := NewTimescaleRecorder(db, "measurements", "status_log")
	ts := time.Now()

	batch := []domain.Measurement{
		{DriverID: "dht22-1", Quantity: domain.QuantityTemperature, Value: 21.4, Timestamp: ts},
		{DriverID: "dht22-1", Quantity: domain.QuantityHumidity, Value: 64.0, Timestamp: ts},
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO measurements (driver_id, quantity, value, ts) VALUES ($1,$2,$3,$4),($5,$6,$7,$8) ON CONFLICT (driver_id, ts) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs("dht22-1", "temperature", 21.4, ts, "dht22-1", "humidity", 64.0, ts).
		WillReturnResult(sqlmock.NewResult(1, 2))

	if err := rec.AppendMeasurements(context.Background(), batch); err != nil {
		t.Fatalf("append measurements: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleRecorderAppendMeasurementsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rec := NewTimescaleRecorder(db, "measurements", "status_log")
	if err := rec.AppendMeasurements(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for empty batch, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTimescaleRecorderAppendStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rec := NewTimescaleRecorder(db, "measurements", "status_log")
	ts := time.Now()

	ev := domain.Event{
		ID:          "ev-1",
		EcosystemID: "greenhouse-1",
		Unit:        domain.UnitClimate,
		Status:      domain.StatusDegraded,
		Detail:      "heater faulted",
		Timestamp:   ts,
	}

	expectedQuery := regexp.QuoteMeta("INSERT INTO status_log (event_id, ecosystem_id, unit_kind, status, detail, ts) VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (event_id) DO NOTHING")
	mock.ExpectExec(expectedQuery).
		WithArgs("ev-1", "greenhouse-1", "climate", "degraded", "heater faulted", ts).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := rec.AppendStatus(context.Background(), ev); err != nil {
		t.Fatalf("append status: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
