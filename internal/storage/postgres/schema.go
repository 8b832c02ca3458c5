package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/insight-curator/internal/crawler"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS topics (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	icon        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS crawl_sources (
	id              UUID PRIMARY KEY,
	url             TEXT NOT NULL,
	topic_id        TEXT NOT NULL REFERENCES topics(id),
	user_id         TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'idle',
	last_crawled_at TIMESTAMPTZ,
	error_message   TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, url, topic_id)
);

CREATE TABLE IF NOT EXISTS insights (
	id           UUID PRIMARY KEY,
	topic_id     TEXT NOT NULL REFERENCES topics(id),
	title        TEXT NOT NULL,
	summary      TEXT NOT NULL,
	source_links JSONB NOT NULL DEFAULT '[]'::jsonb,
	date         DATE NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS insights_topic_created_idx ON insights (topic_id, created_at DESC);
CREATE INDEX IF NOT EXISTS crawl_sources_user_idx ON crawl_sources (user_id, created_at DESC);
`

const seedTopicSQL = `
INSERT INTO topics (id, name, icon, description)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`

// Migrate creates the tables if missing and seeds the topic catalogue.
// Existing topics are left untouched.
func (s *Store) Migrate(ctx context.Context, topics []crawler.Topic) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if topics == nil {
		topics = crawler.DefaultTopics()
	}
	for _, topic := range topics {
		if _, err := s.pool.Exec(ctx, seedTopicSQL, topic.ID, topic.Name, topic.Icon, topic.Description); err != nil {
			return fmt.Errorf("seed topic %s: %w", topic.ID, err)
		}
	}
	return nil
}
