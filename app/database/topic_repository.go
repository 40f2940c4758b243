package database

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// TopicRepo stores one JSON payload per topic.
type TopicRepo struct {
	db *DB
}

func NewTopicRepository(db *DB) *TopicRepo {
	return &TopicRepo{db: db}
}

func (r *TopicRepo) SaveProcessedTopic(name string, payload []byte, updatedAt time.Time) error {
	query, args, err := sq.Insert("processed_topics").
		Columns("topic", "payload", "updated_at").
		Values(name, string(payload), formatTime(updatedAt)).
		Suffix("ON CONFLICT (topic) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to save processed topic: %w", err)
	}

	return nil
}

func (r *TopicRepo) GetProcessedTopic(name string) ([]byte, error) {
	query, args, err := sq.Select("payload").
		From("processed_topics").
		Where(sq.Eq{"topic": name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var payload string
	err = r.db.QueryRow(query, args...).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processed topic: %w", err)
	}

	return []byte(payload), nil
}

func (r *TopicRepo) ListProcessedTopics() ([]ProcessedTopicInfo, error) {
	query, args, err := sq.Select("topic", "updated_at", "length(payload)").
		From("processed_topics").
		OrderBy("topic").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed topics: %w", err)
	}
	defer rows.Close()

	var topics []ProcessedTopicInfo
	for rows.Next() {
		var info ProcessedTopicInfo
		var updatedAt string
		if err := rows.Scan(&info.Topic, &updatedAt, &info.PayloadSize); err != nil {
			return nil, fmt.Errorf("failed to scan processed topic: %w", err)
		}
		if info.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		topics = append(topics, info)
	}

	return topics, rows.Err()
}

func (r *TopicRepo) GetProcessedTopicCount() (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("processed_topics").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count processed topics: %w", err)
	}
	return count, nil
}
