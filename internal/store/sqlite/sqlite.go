// Package sqlite is a store.Store backed by SQLite, used for local
// development and tests. All access goes through a single connection, which
// serializes vote transactions.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/emilythestrangee/uservoice/backend/internal/models"
	"github.com/emilythestrangee/uservoice/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at dsn and applies migrations.
// Example DSN: "file:uservoice.db?_pragma=foreign_keys(1)"
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations run in order, each exactly once, tracked by schema_version.
var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	level INTEGER NOT NULL DEFAULT 0,
	avatar TEXT,
	play_time INTEGER NOT NULL DEFAULT 0,
	weight INTEGER NOT NULL DEFAULT 0,
	profile_url TEXT
);

CREATE TABLE IF NOT EXISTS feature_requests (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	creator_id INTEGER NOT NULL,
	upvotes INTEGER NOT NULL DEFAULT 0 CHECK (upvotes >= 0),
	downvotes INTEGER NOT NULL DEFAULT 0 CHECK (downvotes >= 0),
	status INTEGER NOT NULL DEFAULT 0,
	weight INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY(creator_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_feature_requests_creator_id ON feature_requests(creator_id);

CREATE TABLE IF NOT EXISTS user_votes (
	user_id INTEGER NOT NULL,
	feature_request_id TEXT NOT NULL,
	vote INTEGER NOT NULL CHECK (vote IN (1, 2)),
	PRIMARY KEY (user_id, feature_request_id),
	FOREIGN KEY(feature_request_id) REFERENCES feature_requests(id) ON DELETE CASCADE
);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	var version int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	for i := version; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) UpsertUser(ctx context.Context, user *models.User) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, name, level, avatar, play_time, weight, profile_url)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	level = excluded.level,
	avatar = excluded.avatar,
	play_time = excluded.play_time,
	weight = excluded.weight,
	profile_url = excluded.profile_url
`, int64(user.ID), user.Name, user.Level, user.Avatar, user.PlayTime, user.Weight, user.ProfileURL)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", user.ID, err)
	}
	return nil
}

func (s *Store) CreateFeatureRequest(ctx context.Context, r *models.FeatureRequest) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO feature_requests (id, title, description, created_at, updated_at, creator_id, upvotes, downvotes, status, weight)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, r.ID.String(), r.Title, r.Description, r.CreatedAt.UnixNano(), r.UpdatedAt.UnixNano(),
		int64(r.CreatorID), r.Upvotes, r.Downvotes, int(r.Status), r.Weight)
	if err != nil {
		return fmt.Errorf("insert feature request: %w", err)
	}
	return nil
}

const selectRequests = `
SELECT fr.id, fr.title, fr.description, fr.created_at, fr.updated_at, fr.creator_id,
	fr.upvotes, fr.downvotes, fr.status, fr.weight,
	u.name, u.level, COALESCE(u.avatar, ''), u.play_time, u.weight, COALESCE(u.profile_url, '')
FROM feature_requests fr
JOIN users u ON u.id = fr.creator_id
`

func (s *Store) GetFeatureRequest(ctx context.Context, id uuid.UUID) (models.FeatureRequest, error) {
	row := s.db.QueryRowContext(ctx, selectRequests+`WHERE fr.id = ?`, id.String())
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FeatureRequest{}, store.ErrNotFound
	}
	return r, err
}

func (s *Store) ListFeatureRequests(ctx context.Context) ([]models.FeatureRequest, error) {
	rows, err := s.db.QueryContext(ctx, selectRequests+`ORDER BY fr.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list feature requests: %w", err)
	}
	defer rows.Close()

	var out []models.FeatureRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (models.FeatureRequest, error) {
	var (
		r                models.FeatureRequest
		id               string
		created, updated int64
		creatorID        int64
		status           int
	)
	err := row.Scan(&id, &r.Title, &r.Description, &created, &updated, &creatorID,
		&r.Upvotes, &r.Downvotes, &status, &r.Weight,
		&r.Creator.Name, &r.Creator.Level, &r.Creator.Avatar, &r.Creator.PlayTime, &r.Creator.Weight, &r.Creator.ProfileURL)
	if err != nil {
		return models.FeatureRequest{}, err
	}
	r.ID, err = uuid.Parse(id)
	if err != nil {
		return models.FeatureRequest{}, fmt.Errorf("parse feature request id %q: %w", id, err)
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()
	r.CreatorID = uint64(creatorID)
	r.Creator.ID = r.CreatorID
	r.Status = models.FeatureRequestStatus(status)
	return r, nil
}

func (s *Store) ListUserVotes(ctx context.Context, userID uint64, requestIDs []uuid.UUID) (map[uuid.UUID]models.VoteValue, error) {
	votes := make(map[uuid.UUID]models.VoteValue)
	if len(requestIDs) == 0 {
		return votes, nil
	}

	args := make([]any, 0, len(requestIDs)+1)
	args = append(args, int64(userID))
	for _, id := range requestIDs {
		args = append(args, id.String())
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(requestIDs)), ",")

	rows, err := s.db.QueryContext(ctx, `
SELECT feature_request_id, vote FROM user_votes
WHERE user_id = ? AND feature_request_id IN (`+placeholders+`)
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list votes of %d: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   string
			vote int
		)
		if err := rows.Scan(&id, &vote); err != nil {
			return nil, err
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse feature request id %q: %w", id, err)
		}
		votes[parsed] = models.VoteValue(vote)
	}
	return votes, rows.Err()
}

func (s *Store) WithVoteLock(ctx context.Context, requestID uuid.UUID, fn func(store.VoteTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin vote transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM feature_requests WHERE id = ?`, requestID.String()).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock feature request %s: %w", requestID, err)
	}

	if err := fn(voteTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type voteTx struct {
	tx *sql.Tx
}

func (t voteTx) GetVote(ctx context.Context, userID uint64, requestID uuid.UUID) (models.VoteValue, error) {
	var vote int
	err := t.tx.QueryRowContext(ctx, `
SELECT vote FROM user_votes WHERE user_id = ? AND feature_request_id = ?
`, int64(userID), requestID.String()).Scan(&vote)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VoteNone, nil
	}
	if err != nil {
		return models.VoteNone, err
	}
	return models.VoteValue(vote), nil
}

func (t voteTx) PutVote(ctx context.Context, v models.UserVote) error {
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO user_votes (user_id, feature_request_id, vote)
VALUES (?, ?, ?)
ON CONFLICT(user_id, feature_request_id) DO UPDATE SET vote = excluded.vote
`, int64(v.UserID), v.FeatureRequestID.String(), int(v.Vote))
	return err
}

func (t voteTx) DeleteVote(ctx context.Context, userID uint64, requestID uuid.UUID) error {
	_, err := t.tx.ExecContext(ctx, `
DELETE FROM user_votes WHERE user_id = ? AND feature_request_id = ?
`, int64(userID), requestID.String())
	return err
}

func (t voteTx) AdjustCounters(ctx context.Context, requestID uuid.UUID, upDelta, downDelta int) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE feature_requests SET upvotes = upvotes + ?, downvotes = downvotes + ?
WHERE id = ?
`, upDelta, downDelta, requestID.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return store.ErrNotFound
	}
	return nil
}

// Health pings the database.
func (s *Store) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}
	stats["status"] = "up"
	stats["message"] = "It's healthy"
	stats["open_connections"] = fmt.Sprintf("%d", s.db.Stats().OpenConnections)
	return stats
}
