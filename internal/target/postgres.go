package target

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"claimant-consumer/internal/domain"
)

const postgresTargetName = "postgres"

// PostgresTarget keeps one row per natural identifier in the topic's table.
// Rows are only replaced by changes that are at least as recent.
type PostgresTarget struct {
	db     *sql.DB
	tables Tables
	now    func() time.Time
}

func NewPostgresTarget(db *sql.DB, tables Tables) *PostgresTarget {
	return &PostgresTarget{db: db, tables: tables, now: time.Now}
}

func upsertQuery(table string) string {
	t := pq.QuoteIdentifier(table)
	return fmt.Sprintf(`
		INSERT INTO %s (natural_id, data, action, source_ts, source_ts_field, kafka_topic, kafka_partition, kafka_offset, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (natural_id) DO UPDATE SET
			data = EXCLUDED.data,
			action = EXCLUDED.action,
			source_ts = EXCLUDED.source_ts,
			source_ts_field = EXCLUDED.source_ts_field,
			kafka_topic = EXCLUDED.kafka_topic,
			kafka_partition = EXCLUDED.kafka_partition,
			kafka_offset = EXCLUDED.kafka_offset,
			updated_at = EXCLUDED.updated_at
		WHERE %s.source_ts <= EXCLUDED.source_ts
	`, t, t)
}

func (t *PostgresTarget) Upsert(ctx context.Context, topic string, records []domain.Processed[domain.TransformationResult]) error {
	if len(records) == 0 {
		return nil
	}
	table, err := t.tables.lookup(topic)
	if err != nil {
		return err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(postgresTargetName, "begin", err)
	}
	defer tx.Rollback()

	query := upsertQuery(table)
	now := t.now().UTC()
	for _, r := range records {
		e := r.Value.Extract
		_, err := tx.ExecContext(ctx, query,
			e.ID,
			string(r.Value.Transformed),
			e.Action.String(),
			sourceTime(e),
			e.TimestampField,
			r.Record.Topic,
			r.Record.Partition,
			r.Record.Offset,
			now,
		)
		if err != nil {
			return unavailable(postgresTargetName, fmt.Sprintf("upsert %s", r.Record), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable(postgresTargetName, "commit", err)
	}
	return nil
}

func (t *PostgresTarget) Delete(ctx context.Context, topic string, requests []domain.DeleteRequest) error {
	if len(requests) == 0 {
		return nil
	}
	table, err := t.tables.lookup(topic)
	if err != nil {
		return err
	}

	ids := make([]string, len(requests))
	for i, r := range requests {
		ids[i] = r.ID
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE natural_id = ANY($1)`, pq.QuoteIdentifier(table))
	if _, err := t.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return unavailable(postgresTargetName, "delete", err)
	}
	return nil
}
