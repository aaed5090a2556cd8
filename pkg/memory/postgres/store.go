package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/ioanna/pkg/memory"
	"github.com/MrWong99/ioanna/pkg/types"
)

var _ memory.ProfileStore = (*Store)(nil)

// Store is the PostgreSQL-backed profile store. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
	dims int
	now  func() time.Time
}

// NewStore connects to dsn, registers pgvector types on every connection and
// runs [Migrate].
func NewStore(ctx context.Context, dsn string, encodingDimensions int) (*Store, error) {
	if encodingDimensions <= 0 {
		return nil, fmt.Errorf("postgres store: encoding dimensions must be positive, got %d", encodingDimensions)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// vector columns scan into and encode from pgvector.Vector.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, encodingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool, dims: encodingDimensions, now: time.Now}, nil
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping implements [memory.ProfileStore].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres store: ping: %w", err)
	}
	return nil
}

func (s *Store) checkDims(enc []float32) error {
	if len(enc) != s.dims {
		return fmt.Errorf("%w: got %d, want %d", memory.ErrDimension, len(enc), s.dims)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Profiles
// ─────────────────────────────────────────────────────────────────────────────

// FindByEncoding implements [memory.ProfileStore]. The nearest profile by L2
// distance wins; it must be strictly closer than threshold.
func (s *Store) FindByEncoding(ctx context.Context, encoding []float32, threshold float64) (memory.Match, error) {
	if err := s.checkDims(encoding); err != nil {
		return memory.Match{}, err
	}
	const q = `
		SELECT id, display_name, encoding, created_at, encoding <-> $1 AS distance
		FROM   profiles
		ORDER  BY distance
		LIMIT  1`

	var (
		p    memory.Profile
		vec  pgvector.Vector
		dist float64
	)
	err := s.pool.QueryRow(ctx, q, pgvector.NewVector(encoding)).Scan(&p.ID, &p.DisplayName, &vec, &p.CreatedAt, &dist)
	if errors.Is(err, pgx.ErrNoRows) {
		return memory.Match{}, memory.ErrNoMatch
	}
	if err != nil {
		return memory.Match{}, fmt.Errorf("postgres store: find by encoding: %w", err)
	}
	if dist >= threshold {
		return memory.Match{}, memory.ErrNoMatch
	}
	p.Encoding = vec.Slice()
	if p.Turns, err = s.turns(ctx, p.ID); err != nil {
		return memory.Match{}, err
	}
	return memory.Match{Profile: &p, Distance: dist}, nil
}

// CreateProfile implements [memory.ProfileStore].
func (s *Store) CreateProfile(ctx context.Context, displayName string, encoding []float32) (*memory.Profile, error) {
	if err := s.checkDims(encoding); err != nil {
		return nil, err
	}
	p := &memory.Profile{
		ID:          uuid.New(),
		DisplayName: displayName,
		Encoding:    encoding,
		CreatedAt:   s.now().UTC(),
	}
	const q = `INSERT INTO profiles (id, display_name, encoding, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := s.pool.Exec(ctx, q, p.ID, p.DisplayName, pgvector.NewVector(encoding), p.CreatedAt); err != nil {
		return nil, fmt.Errorf("postgres store: create profile: %w", err)
	}
	return p, nil
}

// GetProfile implements [memory.ProfileStore].
func (s *Store) GetProfile(ctx context.Context, id uuid.UUID) (*memory.Profile, error) {
	const q = `SELECT id, display_name, encoding, created_at FROM profiles WHERE id = $1`
	var (
		p   memory.Profile
		vec pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(&p.ID, &p.DisplayName, &vec, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get profile: %w", err)
	}
	p.Encoding = vec.Slice()
	if p.Turns, err = s.turns(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles implements [memory.ProfileStore].
func (s *Store) ListProfiles(ctx context.Context) ([]memory.ProfileSummary, error) {
	const q = `
		SELECT p.id, p.display_name, p.created_at,
		       (SELECT count(*) FROM turns t WHERE t.profile_id = p.id),
		       (SELECT count(*) FROM memories m WHERE m.profile_id = p.id)
		FROM   profiles p
		ORDER  BY p.created_at, p.id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list profiles: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.ProfileSummary, error) {
		var ps memory.ProfileSummary
		err := row.Scan(&ps.ID, &ps.DisplayName, &ps.CreatedAt, &ps.TurnCount, &ps.MemoryCount)
		return ps, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan profiles: %w", err)
	}
	if out == nil {
		out = []memory.ProfileSummary{}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Turns
// ─────────────────────────────────────────────────────────────────────────────

// AppendTurn implements [memory.ProfileStore]. The turn and its memories are
// written in one transaction.
func (s *Store) AppendTurn(ctx context.Context, profileID uuid.UUID, turn memory.Turn) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`, profileID).Scan(&exists); err != nil {
		return fmt.Errorf("postgres store: check profile: %w", err)
	}
	if !exists {
		return memory.ErrNotFound
	}

	answers := turn.Answers
	if answers == nil {
		answers = []string{}
	}
	askedAt := turn.AskedAt
	if askedAt.IsZero() {
		askedAt = s.now()
	}

	var turnID int64
	const qTurn = `INSERT INTO turns (profile_id, question, answers, asked_at) VALUES ($1, $2, $3, $4) RETURNING id`
	if err := tx.QueryRow(ctx, qTurn, profileID, turn.Question, answers, askedAt).Scan(&turnID); err != nil {
		return fmt.Errorf("postgres store: insert turn: %w", err)
	}

	if len(turn.Memories) > 0 {
		const qMem = `
			INSERT INTO memories
			    (turn_id, profile_id, position, text, polarity, subjectivity,
			     audio_label, audio_confidence, audio_error, detected, importance)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
		batch := &pgx.Batch{}
		for i, m := range turn.Memories {
			detected := m.DetectedEmotions
			if detected == nil {
				detected = []types.Likelihoods{}
			}
			batch.Queue(qMem, turnID, profileID, i, m.Text,
				m.Sentiment.Polarity, m.Sentiment.Subjectivity,
				m.AudioEmotion.Label, m.AudioEmotion.Confidence, m.AudioEmotion.Error,
				detected, m.Importance)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres store: insert memories: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// Recall implements [memory.ProfileStore].
func (s *Store) Recall(ctx context.Context, profileID uuid.UUID, opts ...memory.RecallOpt) ([]memory.Recalled, error) {
	p := memory.ApplyRecallOpts(opts)

	args := []any{profileID} // $1
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	where := "m.profile_id = $1"
	if p.Query != "" {
		where += "\n  AND to_tsvector('english', m.text) @@ plainto_tsquery('english', " + next(p.Query) + ")"
	}
	if p.MinImportance > 0 {
		where += "\n  AND m.importance >= " + next(p.MinImportance)
	}
	limit := next(p.Limit)

	q := fmt.Sprintf(`
		SELECT m.text, m.polarity, m.subjectivity, m.audio_label, m.audio_confidence,
		       m.audio_error, m.detected, m.importance, t.question, t.asked_at
		FROM   memories m
		JOIN   turns t ON t.id = m.turn_id
		WHERE  %s
		ORDER  BY t.asked_at DESC, m.position
		LIMIT  %s`, where, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recall: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.Recalled, error) {
		var r memory.Recalled
		err := row.Scan(&r.Text, &r.Sentiment.Polarity, &r.Sentiment.Subjectivity,
			&r.AudioEmotion.Label, &r.AudioEmotion.Confidence, &r.AudioEmotion.Error,
			&r.DetectedEmotions, &r.Importance, &r.Question, &r.AskedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan recall: %w", err)
	}
	if out == nil {
		out = []memory.Recalled{}
	}
	return out, nil
}

// turns loads every turn of a profile with its memories, oldest first.
func (s *Store) turns(ctx context.Context, profileID uuid.UUID) ([]memory.Turn, error) {
	const qTurns = `
		SELECT id, question, answers, asked_at
		FROM   turns
		WHERE  profile_id = $1
		ORDER  BY asked_at, id`
	rows, err := s.pool.Query(ctx, qTurns, profileID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load turns: %w", err)
	}
	type turnRow struct {
		id int64
		memory.Turn
	}
	trs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (turnRow, error) {
		var tr turnRow
		err := row.Scan(&tr.id, &tr.Question, &tr.Answers, &tr.AskedAt)
		return tr, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan turns: %w", err)
	}
	if len(trs) == 0 {
		return nil, nil
	}

	const qMem = `
		SELECT turn_id, text, polarity, subjectivity, audio_label, audio_confidence,
		       audio_error, detected, importance
		FROM   memories
		WHERE  profile_id = $1
		ORDER  BY turn_id, position`
	mrows, err := s.pool.Query(ctx, qMem, profileID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load memories: %w", err)
	}
	byTurn := make(map[int64][]memory.Entry)
	type memRow struct {
		turnID int64
		memory.Entry
	}
	mems, err := pgx.CollectRows(mrows, func(row pgx.CollectableRow) (memRow, error) {
		var m memRow
		err := row.Scan(&m.turnID, &m.Text, &m.Sentiment.Polarity, &m.Sentiment.Subjectivity,
			&m.AudioEmotion.Label, &m.AudioEmotion.Confidence, &m.AudioEmotion.Error,
			&m.DetectedEmotions, &m.Importance)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan memories: %w", err)
	}
	for _, m := range mems {
		byTurn[m.turnID] = append(byTurn[m.turnID], m.Entry)
	}

	out := make([]memory.Turn, len(trs))
	for i, tr := range trs {
		tr.Memories = byTurn[tr.id]
		out[i] = tr.Turn
	}
	return out, nil
}
