package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vaamb/gaia/internal/domain"
	"github.com/vaamb/gaia/internal/ports"
)

// TimescaleRecorder appends measurements and status transitions to a
// Postgres/Timescale database. The core never reads this store back.
type TimescaleRecorder struct {
	db           *sql.DB
	measureTable string
	statusTable  string
}

func NewTimescaleRecorder(db *sql.DB, measureTable, statusTable string) *TimescaleRecorder {
	return &TimescaleRecorder{
		db:           db,
		measureTable: measureTable,
		statusTable:  statusTable,
	}
}

func (t *TimescaleRecorder) Name() string { return "timescaledb" }

func (t *TimescaleRecorder) AppendMeasurements(ctx context.Context, batch []domain.Measurement) error {
	if len(batch) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.measureTable)
	b.WriteString(" (driver_id, quantity, value, ts) VALUES ")

	args := make([]any, 0, len(batch)*4)
	for i, m := range batch {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(fmt.Sprintf("($%d,$%d,$%d,$%d)",
			len(args)+1, len(args)+2, len(args)+3, len(args)+4))
		args = append(args, m.DriverID, string(m.Quantity), m.Value, m.Timestamp)
	}

	b.WriteString(" ON CONFLICT (driver_id, ts) DO NOTHING")

	_, err := t.db.ExecContext(ctx, b.String(), args...)
	return err
}

func (t *TimescaleRecorder) AppendStatus(ctx context.Context, ev domain.Event) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (event_id, ecosystem_id, unit_kind, status, detail, ts) VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (event_id) DO NOTHING",
		t.statusTable)
	_, err := t.db.ExecContext(ctx, query,
		ev.ID, ev.EcosystemID, string(ev.Unit), string(ev.Status), ev.Detail, ev.Timestamp)
	return err
}

var _ ports.Recorder = (*TimescaleRecorder)(nil)
