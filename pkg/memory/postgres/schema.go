// Package postgres provides a PostgreSQL-backed [memory.ProfileStore].
//
// Face encodings live in a pgvector column so identity lookup is a single
// nearest-neighbour query using the L2 distance operator (<->). Turns and
// their memories are stored in plain tables with a GIN full-text index over
// memory text for recall queries.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 128)
//	if err != nil { … }
//	defer store.Close()
//
//	match, err := store.FindByEncoding(ctx, enc, memory.DefaultMatchThreshold)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// Profiles DDL
// ─────────────────────────────────────────────────────────────────────────────

// ddlProfiles returns the profiles DDL with the encoding dimension
// substituted. The dimension is baked into the column type at creation time.
func ddlProfiles(encodingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS profiles (
    id            UUID         PRIMARY KEY,
    display_name  TEXT         NOT NULL,
    encoding      vector(%d)   NOT NULL,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_profiles_encoding
    ON profiles USING hnsw (encoding vector_l2_ops);
`, encodingDimensions)
}

// ─────────────────────────────────────────────────────────────────────────────
// Turns + memories DDL
// ─────────────────────────────────────────────────────────────────────────────

const ddlTurns = `
CREATE TABLE IF NOT EXISTS turns (
    id          BIGSERIAL    PRIMARY KEY,
    profile_id  UUID         NOT NULL REFERENCES profiles (id) ON DELETE CASCADE,
    question    TEXT         NOT NULL,
    answers     TEXT[]       NOT NULL DEFAULT '{}',
    asked_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_turns_profile_asked
    ON turns (profile_id, asked_at);

CREATE TABLE IF NOT EXISTS memories (
    id                BIGSERIAL         PRIMARY KEY,
    turn_id           BIGINT            NOT NULL REFERENCES turns (id) ON DELETE CASCADE,
    profile_id        UUID              NOT NULL REFERENCES profiles (id) ON DELETE CASCADE,
    position          INT               NOT NULL,
    text              TEXT              NOT NULL,
    polarity          DOUBLE PRECISION  NOT NULL DEFAULT 0,
    subjectivity      DOUBLE PRECISION  NOT NULL DEFAULT 0,
    audio_label       TEXT              NOT NULL DEFAULT '',
    audio_confidence  DOUBLE PRECISION  NOT NULL DEFAULT 0,
    audio_error       TEXT              NOT NULL DEFAULT '',
    detected          JSONB             NOT NULL DEFAULT '[]',
    importance        DOUBLE PRECISION  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_profile
    ON memories (profile_id);

CREATE INDEX IF NOT EXISTS idx_memories_fts
    ON memories USING GIN (to_tsvector('english', text));
`

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent and safe to call on every start.
//
// encodingDimensions must match the face encoder (128 for dlib). Changing it
// after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, encodingDimensions int) error {
	statements := []string{
		ddlProfiles(encodingDimensions),
		ddlTurns,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
