package database

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/lysyi3m/sports-comb/app/feed"
)

// SectionRepo tracks configured (source, section) pairs and the outcome of
// their last refresh.
type SectionRepo struct {
	db *DB
}

func NewSectionRepository(db *DB) *SectionRepo {
	return &SectionRepo{db: db}
}

var sectionColumns = []string{
	"source", "section", "display_name", "url", "last_refreshed_at",
	"last_found_count", "last_added_count", "last_error", "created_at",
}

func (r *SectionRepo) UpsertSection(key feed.SectionKey, displayName, url string) error {
	query, args, err := sq.Insert("sections").
		Columns("source", "section", "display_name", "url", "created_at").
		Values(key.Source, key.Section, displayName, url, formatTime(time.Now())).
		Suffix("ON CONFLICT (source, section) DO UPDATE SET display_name = excluded.display_name, url = excluded.url").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to upsert section: %w", err)
	}
	return nil
}

// RecordRefresh stores the outcome of one fetch. Unknown sections are
// created on the fly so stats are never lost.
func (r *SectionRepo) RecordRefresh(key feed.SectionKey, refreshedAt time.Time, found, added int, lastError string) error {
	query, args, err := sq.Insert("sections").
		Columns("source", "section", "last_refreshed_at", "last_found_count", "last_added_count", "last_error", "created_at").
		Values(key.Source, key.Section, formatTime(refreshedAt), found, added, lastError, formatTime(refreshedAt)).
		Suffix(`ON CONFLICT (source, section) DO UPDATE SET
			last_refreshed_at = excluded.last_refreshed_at,
			last_found_count = excluded.last_found_count,
			last_added_count = excluded.last_added_count,
			last_error = excluded.last_error`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to record section refresh: %w", err)
	}
	return nil
}

func (r *SectionRepo) GetSection(key feed.SectionKey) (*Section, error) {
	query, args, err := sq.Select(sectionColumns...).
		From("sections").
		Where(sq.Eq{"source": key.Source, "section": key.Section}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	section, err := scanSection(r.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get section: %w", err)
	}
	return section, nil
}

func (r *SectionRepo) GetSections() ([]Section, error) {
	query, args, err := sq.Select(sectionColumns...).
		From("sections").
		OrderBy("source", "section").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get sections: %w", err)
	}
	defer rows.Close()

	var sections []Section
	for rows.Next() {
		section, err := scanSection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		sections = append(sections, *section)
	}

	return sections, rows.Err()
}

// DeleteSectionsExcept removes every stored section not listed in keep and
// returns how many were removed.
func (r *SectionRepo) DeleteSectionsExcept(keep []feed.SectionKey) (int, error) {
	del := sq.Delete("sections")
	if len(keep) > 0 {
		conditions := sq.And{}
		for _, key := range keep {
			conditions = append(conditions, sq.Or{
				sq.NotEq{"source": key.Source},
				sq.NotEq{"section": key.Section},
			})
		}
		del = del.Where(conditions)
	}

	query, args, err := del.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sections: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(affected), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSection(row rowScanner) (*Section, error) {
	var section Section
	var refreshedAt sql.NullString
	var createdAt string

	err := row.Scan(
		&section.Source, &section.Section, &section.DisplayName, &section.URL, &refreshedAt,
		&section.LastFoundCount, &section.LastAddedCount, &section.LastError, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if section.LastRefreshedAt, err = parseNullTime(refreshedAt); err != nil {
		return nil, err
	}
	if section.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	return &section, nil
}
