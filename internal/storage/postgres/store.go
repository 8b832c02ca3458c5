// Package postgres provides the Postgres-backed record store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	defaultInsightLimit   = 50
	maxInsightLimit       = 500
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var sourceColumns = []string{
	"id::text",
	"url",
	"topic_id",
	"user_id",
	"status",
	"last_crawled_at",
	"error_message",
	"created_at",
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements crawler.Store on Postgres.
type Store struct {
	pool pool
}

var _ crawler.Store = (*Store)(nil)

// New connects a pgx pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return &crawler.StoreError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateSource inserts a new idle source.
func (s *Store) CreateSource(ctx context.Context, source crawler.CrawlSource) (crawler.CrawlSource, error) {
	if source.ID == "" {
		return crawler.CrawlSource{}, fmt.Errorf("source id is required")
	}
	if source.CreatedAt.IsZero() {
		source.CreatedAt = time.Now().UTC()
	}
	source.Status = crawler.SourceStatusIdle
	source.LastCrawledAt = nil
	source.ErrorMessage = nil

	const query = `
INSERT INTO crawl_sources (id, url, topic_id, user_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, query,
		source.ID,
		source.URL,
		source.TopicID,
		source.UserID,
		string(source.Status),
		source.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgUniqueViolation:
				return crawler.CrawlSource{}, crawler.ErrDuplicateSource
			case pgForeignKeyViolation:
				return crawler.CrawlSource{}, crawler.ErrTopicNotFound
			}
		}
		return crawler.CrawlSource{}, &crawler.StoreError{Op: "insert source", Err: err}
	}
	return source, nil
}

// GetSource fetches a source by ID.
func (s *Store) GetSource(ctx context.Context, id string) (crawler.CrawlSource, error) {
	query, args, err := psql.Select(sourceColumns...).
		From("crawl_sources").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return crawler.CrawlSource{}, fmt.Errorf("build get source: %w", err)
	}
	src, err := scanSource(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.CrawlSource{}, crawler.ErrNotFound
		}
		return crawler.CrawlSource{}, &crawler.StoreError{Op: "get source", Err: err}
	}
	return src, nil
}

// ListSources returns matching sources, newest first.
func (s *Store) ListSources(ctx context.Context, filter crawler.SourceFilter) ([]crawler.CrawlSource, error) {
	builder := psql.Select(sourceColumns...).From("crawl_sources")
	if filter.UserID != "" {
		builder = builder.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.TopicID != "" {
		builder = builder.Where(sq.Eq{"topic_id": filter.TopicID})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	query, args, err := builder.OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sources: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &crawler.StoreError{Op: "list sources", Err: err}
	}
	defer rows.Close()

	var out []crawler.CrawlSource
	for rows.Next() {
		src, scanErr := scanSource(rows)
		if scanErr != nil {
			return nil, &crawler.StoreError{Op: "scan source", Err: scanErr}
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, &crawler.StoreError{Op: "list sources", Err: err}
	}
	return out, nil
}

// UpdateSource applies a partial update. An UPDATE cannot re-create a
// deleted row; a vanished source yields ErrNotFound.
func (s *Store) UpdateSource(ctx context.Context, id string, update crawler.SourceUpdate) error {
	builder := psql.Update("crawl_sources")
	changed := false
	if update.Status != nil {
		builder = builder.Set("status", string(*update.Status))
		changed = true
	}
	if update.LastCrawledAt != nil {
		builder = builder.Set("last_crawled_at", *update.LastCrawledAt)
		changed = true
	}
	if update.ErrorMessage != nil {
		if *update.ErrorMessage == "" {
			builder = builder.Set("error_message", nil)
		} else {
			builder = builder.Set("error_message", *update.ErrorMessage)
		}
		changed = true
	}
	if !changed {
		return nil
	}
	query, args, err := builder.Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update source: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return &crawler.StoreError{Op: "update source", Err: err}
	}
	if tag.RowsAffected() == 0 {
		return crawler.ErrNotFound
	}
	return nil
}

// BeginCrawl takes the per-source lease with a conditional update.
func (s *Store) BeginCrawl(ctx context.Context, id string) (crawler.CrawlSource, error) {
	const query = `
UPDATE crawl_sources SET status = 'crawling'
WHERE id = $1 AND status <> 'crawling'
RETURNING id::text, url, topic_id, user_id, status, last_crawled_at, error_message, created_at`
	src, err := scanSource(s.pool.QueryRow(ctx, query, id))
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return crawler.CrawlSource{}, &crawler.StoreError{Op: "begin crawl", Err: err}
	}
	if _, statusErr := s.currentStatus(ctx, id); statusErr != nil {
		return crawler.CrawlSource{}, statusErr
	}
	return crawler.CrawlSource{}, crawler.ErrAlreadyCrawling
}

// DeleteSource removes a source unless it is crawling.
func (s *Store) DeleteSource(ctx context.Context, id string) error {
	const query = `DELETE FROM crawl_sources WHERE id = $1 AND status <> 'crawling'`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return &crawler.StoreError{Op: "delete source", Err: err}
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, statusErr := s.currentStatus(ctx, id); statusErr != nil {
		return statusErr
	}
	return crawler.ErrSourceBusy
}

// ReleaseStaleLeases fails every source still marked crawling. Nothing can be
// crawling when the process starts, so such rows were orphaned by a crash.
func (s *Store) ReleaseStaleLeases(ctx context.Context, message string) (int64, error) {
	const query = `UPDATE crawl_sources SET status = 'failed', error_message = $1 WHERE status = 'crawling'`
	tag, err := s.pool.Exec(ctx, query, message)
	if err != nil {
		return 0, &crawler.StoreError{Op: "release stale leases", Err: err}
	}
	return tag.RowsAffected(), nil
}

func (s *Store) currentStatus(ctx context.Context, id string) (crawler.SourceStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM crawl_sources WHERE id = $1`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", crawler.ErrNotFound
		}
		return "", &crawler.StoreError{Op: "read status", Err: err}
	}
	return crawler.SourceStatus(status), nil
}

// InsertInsight inserts an insight row and returns its ID.
func (s *Store) InsertInsight(ctx context.Context, insight crawler.Insight) (string, error) {
	if insight.ID == "" {
		return "", &crawler.StoreError{Op: "insert insight", Err: errors.New("insight id is required")}
	}
	links := insight.SourceLinks
	if links == nil {
		links = []crawler.SourceLink{}
	}
	linksJSON, err := json.Marshal(links)
	if err != nil {
		return "", fmt.Errorf("marshal source links: %w", err)
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now().UTC()
	}
	const query = `
INSERT INTO insights (id, topic_id, title, summary, source_links, date, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.pool.Exec(ctx, query,
		insight.ID,
		insight.TopicID,
		insight.Title,
		insight.Summary,
		linksJSON,
		insight.Date,
		insight.CreatedAt,
	); err != nil {
		return "", &crawler.StoreError{Op: "insert insight", Err: err}
	}
	return insight.ID, nil
}

// ListInsights returns matching insights, newest first.
func (s *Store) ListInsights(ctx context.Context, filter crawler.InsightFilter) ([]crawler.Insight, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultInsightLimit
	}
	if limit > maxInsightLimit {
		limit = maxInsightLimit
	}
	builder := psql.Select(
		"id::text",
		"topic_id",
		"title",
		"summary",
		"source_links",
		"date::text",
		"created_at",
	).From("insights")
	if filter.TopicID != "" {
		builder = builder.Where(sq.Eq{"topic_id": filter.TopicID})
	}
	if filter.Date != "" {
		builder = builder.Where(sq.Eq{"date": filter.Date})
	}
	query, args, err := builder.OrderBy("created_at DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list insights: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &crawler.StoreError{Op: "list insights", Err: err}
	}
	defer rows.Close()

	var out []crawler.Insight
	for rows.Next() {
		var (
			insight   crawler.Insight
			linksJSON []byte
		)
		if err := rows.Scan(
			&insight.ID,
			&insight.TopicID,
			&insight.Title,
			&insight.Summary,
			&linksJSON,
			&insight.Date,
			&insight.CreatedAt,
		); err != nil {
			return nil, &crawler.StoreError{Op: "scan insight", Err: err}
		}
		if len(linksJSON) > 0 {
			if err := json.Unmarshal(linksJSON, &insight.SourceLinks); err != nil {
				return nil, fmt.Errorf("decode source links: %w", err)
			}
		}
		out = append(out, insight)
	}
	if err := rows.Err(); err != nil {
		return nil, &crawler.StoreError{Op: "list insights", Err: err}
	}
	return out, nil
}

// GetTopic fetches a topic by ID.
func (s *Store) GetTopic(ctx context.Context, id string) (crawler.Topic, error) {
	const query = `SELECT id, name, icon, description FROM topics WHERE id = $1`
	var topic crawler.Topic
	err := s.pool.QueryRow(ctx, query, id).Scan(&topic.ID, &topic.Name, &topic.Icon, &topic.Description)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Topic{}, crawler.ErrTopicNotFound
		}
		return crawler.Topic{}, &crawler.StoreError{Op: "get topic", Err: err}
	}
	return topic, nil
}

// ListTopics returns all topics ordered by name.
func (s *Store) ListTopics(ctx context.Context) ([]crawler.Topic, error) {
	const query = `SELECT id, name, icon, description FROM topics ORDER BY name`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, &crawler.StoreError{Op: "list topics", Err: err}
	}
	defer rows.Close()

	var out []crawler.Topic
	for rows.Next() {
		var topic crawler.Topic
		if err := rows.Scan(&topic.ID, &topic.Name, &topic.Icon, &topic.Description); err != nil {
			return nil, &crawler.StoreError{Op: "scan topic", Err: err}
		}
		out = append(out, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, &crawler.StoreError{Op: "list topics", Err: err}
	}
	return out, nil
}

func scanSource(row pgx.Row) (crawler.CrawlSource, error) {
	var (
		src    crawler.CrawlSource
		status string
	)
	if err := row.Scan(
		&src.ID,
		&src.URL,
		&src.TopicID,
		&src.UserID,
		&status,
		&src.LastCrawledAt,
		&src.ErrorMessage,
		&src.CreatedAt,
	); err != nil {
		return crawler.CrawlSource{}, err
	}
	src.Status = crawler.SourceStatus(status)
	return src, nil
}
