package prebuilt

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otapflow/otapflow/internal/core/channel"
	"github.com/otapflow/otapflow/internal/core/node"
	"github.com/otapflow/otapflow/internal/core/pdata"
	"github.com/otapflow/otapflow/pkg/serialization"
)

// BatchStore is the database surface the postgres exporter needs. It is
// satisfied by *pgxpool.Pool; tests inject fakes.
type BatchStore interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// DialPostgres opens a connection pool for the exporter. Connections are
// established lazily, so this only fails on a malformed DSN.
func DialPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	return pool, nil
}

// PostgresExporter writes each incoming batch as one serialized row. The
// payload column holds the same codec-pipeline output the file exporter
// frames, so snapshots stay readable with the matching Serializer.
type PostgresExporter struct {
	store      BatchStore
	serializer *serialization.Serializer
	tableName  string
	written    int
}

// NewPostgresExporter creates an exporter writing to table (default
// "snapshots") through store. A nil serializer gets the default msgpack
// configuration.
func NewPostgresExporter(store BatchStore, s *serialization.Serializer, table string) *PostgresExporter {
	if s == nil {
		s = serialization.NewSerializer(serialization.Config{})
	}
	if table == "" {
		table = "snapshots"
	}
	return &PostgresExporter{store: store, serializer: s, tableName: table}
}

// Init creates the snapshot table if it does not exist.
func (e *PostgresExporter) Init(ctx context.Context, eff node.EffectHandler[*pdata.Batch]) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			signal TEXT NOT NULL,
			record_count INT NOT NULL,
			payload BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`, e.tableName)
	if _, err := e.store.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return nil
}

// HandleControl closes the pool on shutdown.
func (e *PostgresExporter) HandleControl(ctx context.Context, msg channel.ControlMsg, eff node.EffectHandler[*pdata.Batch]) error {
	if msg.Kind == channel.ControlShutdown {
		eff.Info("postgres exporter stopping", "written", e.written, "reason", msg.Reason)
		e.store.Close()
	}
	return nil
}

// HandlePData serializes and inserts one batch.
func (e *PostgresExporter) HandlePData(ctx context.Context, data *pdata.Batch, eff node.EffectHandler[*pdata.Batch]) error {
	payload, err := e.serializer.Serialize(data)
	if err != nil {
		return fmt.Errorf("failed to serialize batch: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, signal, record_count, payload)
		VALUES ($1, $2, $3, $4)
	`, e.tableName)

	if _, err := e.store.Exec(ctx, query, uuid.NewString(), string(data.Signal), data.Len(), payload); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	e.written++
	return nil
}
