package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/lysyi3m/sports-comb/app/feed"
)

// ArticleRepo stores the items scraped from each section so section feeds
// can be served without refetching.
type ArticleRepo struct {
	db *DB
}

func NewArticleRepository(db *DB) *ArticleRepo {
	return &ArticleRepo{db: db}
}

var articleColumns = []string{
	"id", "source", "section", "url", "title", "summary", "image", "author",
	"categories", "pub_date", "published_at", "scraped_at",
}

// UpsertArticles inserts unseen URLs and refreshes the stored copy of known
// ones. Items without a link are ignored.
func (r *ArticleRepo) UpsertArticles(key feed.SectionKey, items []feed.RawItem, scrapedAt time.Time) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, item := range items {
		if item.Link == "" {
			continue
		}

		categories, err := json.Marshal(item.Categories)
		if err != nil {
			return 0, fmt.Errorf("failed to encode categories: %w", err)
		}
		if item.Categories == nil {
			categories = []byte("[]")
		}

		var publishedAt any
		if t, err := feed.ParseDate(item.PubDate); err == nil {
			publishedAt = formatTime(t)
		}

		query, args, err := sq.Insert("articles").
			Columns("source", "section", "url", "title", "summary", "image", "author",
				"categories", "pub_date", "published_at", "scraped_at").
			Values(key.Source, key.Section, item.Link, item.Title, item.Summary, item.Image, item.Author,
				string(categories), item.PubDate, publishedAt, formatTime(scrapedAt)).
			Suffix("ON CONFLICT (source, section, url) DO NOTHING").
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("failed to build query: %w", err)
		}

		result, err := tx.Exec(query, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert article: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get affected rows: %w", err)
		}
		if affected > 0 {
			inserted++
			continue
		}

		query, args, err = sq.Update("articles").
			SetMap(map[string]any{
				"title":        item.Title,
				"summary":      item.Summary,
				"image":        item.Image,
				"author":       item.Author,
				"categories":   string(categories),
				"pub_date":     item.PubDate,
				"published_at": publishedAt,
				"scraped_at":   formatTime(scrapedAt),
			}).
			Where(sq.Eq{"source": key.Source, "section": key.Section, "url": item.Link}).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("failed to build query: %w", err)
		}

		if _, err := tx.Exec(query, args...); err != nil {
			return 0, fmt.Errorf("failed to update article: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit articles: %w", err)
	}
	return inserted, nil
}

// GetRecentArticles returns the newest articles of a section. Articles
// without a parseable publish date are ordered by when they were scraped.
func (r *ArticleRepo) GetRecentArticles(key feed.SectionKey, q ArticleQuery) ([]Article, error) {
	sel := sq.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"source": key.Source, "section": key.Section})

	if len(q.Terms) > 0 {
		match := sq.Or{}
		for _, term := range q.Terms {
			pattern := "%" + term + "%"
			match = append(match, sq.Like{"title": pattern}, sq.Like{"summary": pattern})
		}
		sel = sel.Where(match)
	}

	for _, author := range q.ExcludeAuthors {
		if author == "" {
			continue
		}
		sel = sel.Where(sq.NotLike{"author": "%" + author + "%"})
	}

	sel = sel.OrderBy("COALESCE(published_at, scraped_at) DESC", "id DESC")
	if q.Limit > 0 {
		sel = sel.Limit(uint64(q.Limit))
	}

	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles: %w", err)
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, *article)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}

	return articles, nil
}

func (r *ArticleRepo) GetArticleCount() (int, error) {
	query, args, err := sq.Select("COUNT(*)").From("articles").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int
	if err := r.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get article count: %w", err)
	}
	return count, nil
}

// DeleteArticlesExcept drops the articles of every section not listed in
// keep and returns how many were removed.
func (r *ArticleRepo) DeleteArticlesExcept(keep []feed.SectionKey) (int, error) {
	del := sq.Delete("articles")
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
		return 0, fmt.Errorf("failed to delete articles: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(affected), nil
}

func scanArticle(row rowScanner) (*Article, error) {
	var article Article
	var categories string
	var publishedAt sql.NullString
	var scrapedAt string

	err := row.Scan(
		&article.ID, &article.Source, &article.Section, &article.URL, &article.Title,
		&article.Summary, &article.Image, &article.Author, &categories,
		&article.PubDate, &publishedAt, &scrapedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(categories), &article.Categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	if article.PublishedAt, err = parseNullTime(publishedAt); err != nil {
		return nil, err
	}
	if article.ScrapedAt, err = parseTime(scrapedAt); err != nil {
		return nil, err
	}

	return &article, nil
}
