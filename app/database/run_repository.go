package database

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// RunRepo keeps a history of aggregation runs.
type RunRepo struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) StartRun(id, topic string, startedAt time.Time) error {
	query, args, err := sq.Insert("aggregation_runs").
		Columns("id", "topic", "started_at", "status").
		Values(id, topic, formatTime(startedAt), RunStatusRunning).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

func (r *RunRepo) FinishRun(id string, finishedAt time.Time, status string, itemCount int, errMsg string) error {
	query, args, err := sq.Update("aggregation_runs").
		Set("finished_at", formatTime(finishedAt)).
		Set("status", status).
		Set("item_count", itemCount).
		Set("error", errMsg).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

func (r *RunRepo) GetRecentRuns(topic string, limit int) ([]AggregationRun, error) {
	builder := sq.Select("id", "topic", "started_at", "finished_at", "status", "item_count", "error").
		From("aggregation_runs").
		OrderBy("started_at DESC")
	if topic != "" {
		builder = builder.Where(sq.Eq{"topic": topic})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get runs: %w", err)
	}
	defer rows.Close()

	var runs []AggregationRun
	for rows.Next() {
		var run AggregationRun
		var startedAt string
		var finishedAt sql.NullString

		if err := rows.Scan(&run.ID, &run.Topic, &startedAt, &finishedAt, &run.Status, &run.ItemCount, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseNullTime(finishedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
