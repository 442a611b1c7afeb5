package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/redteam-region722/TG-bot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

// Open opens (and migrates) the sqlite database at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Connect("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- row types (times stored as unix milliseconds) ----

type destRow struct {
	ID             string `db:"id"`
	Name           string `db:"name"`
	ChatID         int64  `db:"chat_id"`
	Footer         string `db:"footer"`
	Button1Label   string `db:"button1_label"`
	Button1URL     string `db:"button1_url"`
	Button2Label   string `db:"button2_label"`
	Button2URL     string `db:"button2_url"`
	MinGapSec      int64  `db:"min_gap_sec"`
	PostingEnabled bool   `db:"posting_enabled"`
}

func (r destRow) toDestination() Destination {
	return Destination{
		ID:             r.ID,
		Name:           r.Name,
		ChatID:         r.ChatID,
		Footer:         r.Footer,
		Button1Label:   r.Button1Label,
		Button1URL:     r.Button1URL,
		Button2Label:   r.Button2Label,
		Button2URL:     r.Button2URL,
		MinGapSec:      r.MinGapSec,
		PostingEnabled: r.PostingEnabled,
	}
}

type scheduledRow struct {
	ID            string `db:"id"`
	DestinationID string `db:"destination_id"`
	AuthorID      int64  `db:"author_id"`
	Body          string `db:"body"`
	PhotoID       string `db:"photo_id"`
	ScheduledAtMS int64  `db:"scheduled_at"`
	Status        string `db:"status"`
	CreatedAtMS   int64  `db:"created_at"`
}

func (r scheduledRow) toScheduledPost() ScheduledPost {
	return ScheduledPost{
		ID:            r.ID,
		DestinationID: r.DestinationID,
		AuthorID:      r.AuthorID,
		Body:          r.Body,
		PhotoID:       r.PhotoID,
		ScheduledAt:   time.UnixMilli(r.ScheduledAtMS).UTC(),
		Status:        PostStatus(r.Status),
		CreatedAt:     time.UnixMilli(r.CreatedAtMS).UTC(),
	}
}

type postRow struct {
	ID            int64  `db:"id"`
	DestinationID string `db:"destination_id"`
	AuthorID      int64  `db:"author_id"`
	Body          string `db:"body"`
	PhotoID       string `db:"photo_id"`
	ChatID        int64  `db:"chat_id"`
	MessageID     int    `db:"message_id"`
	PostedAtMS    int64  `db:"posted_at"`
}

func (r postRow) toPostRecord() PostRecord {
	return PostRecord{
		ID:            r.ID,
		DestinationID: r.DestinationID,
		AuthorID:      r.AuthorID,
		Body:          r.Body,
		PhotoID:       r.PhotoID,
		ChatID:        r.ChatID,
		MessageID:     r.MessageID,
		PostedAt:      time.UnixMilli(r.PostedAtMS).UTC(),
	}
}

// ---- destinations ----

func (s *sqliteStore) Destination(ctx context.Context, id string) (Destination, error) {
	var r destRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM destinations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Destination{}, fmt.Errorf("destination %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Destination{}, fmt.Errorf("fetching destination: %w", err)
	}
	return r.toDestination(), nil
}

func (s *sqliteStore) Destinations(ctx context.Context) ([]Destination, error) {
	var rows []destRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM destinations ORDER BY id`); err != nil {
		return nil, fmt.Errorf("listing destinations: %w", err)
	}
	out := make([]Destination, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDestination())
	}
	return out, nil
}

func (s *sqliteStore) SeedDestination(ctx context.Context, id, name string, chatID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO destinations(id, name, chat_id) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, chat_id=excluded.chat_id`,
		id, name, chatID,
	)
	if err != nil {
		return fmt.Errorf("seeding destination %q: %w", id, err)
	}
	return nil
}

// ---- scheduled posts ----

func (s *sqliteStore) InsertScheduled(ctx context.Context, p ScheduledPost) (string, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_posts(id, destination_id, author_id, body, photo_id, scheduled_at, status, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		p.ID, p.DestinationID, p.AuthorID, p.Body, p.PhotoID,
		p.ScheduledAt.UnixMilli(), string(p.Status), p.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting scheduled post: %w", err)
	}
	return p.ID, nil
}

func (s *sqliteStore) ScheduledByID(ctx context.Context, id string) (ScheduledPost, error) {
	var r scheduledRow
	err := s.db.GetContext(ctx, &r, `SELECT * FROM scheduled_posts WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduledPost{}, fmt.Errorf("scheduled post %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return ScheduledPost{}, fmt.Errorf("fetching scheduled post: %w", err)
	}
	return r.toScheduledPost(), nil
}

func (s *sqliteStore) PendingByDestination(ctx context.Context, destID string) ([]ScheduledPost, error) {
	var rows []scheduledRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM scheduled_posts
		 WHERE destination_id = ? AND status IN (?, ?)
		 ORDER BY scheduled_at ASC`,
		destID, string(StatusPending), string(StatusSending),
	)
	if err != nil {
		return nil, fmt.Errorf("listing pending posts: %w", err)
	}
	out := make([]ScheduledPost, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toScheduledPost())
	}
	return out, nil
}

func (s *sqliteStore) Ready(ctx context.Context, now time.Time) ([]ScheduledPost, error) {
	var rows []scheduledRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM scheduled_posts
		 WHERE status = ? AND scheduled_at <= ?
		 ORDER BY scheduled_at ASC`,
		string(StatusPending), now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("listing ready posts: %w", err)
	}
	out := make([]ScheduledPost, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toScheduledPost())
	}
	return out, nil
}

func (s *sqliteStore) Claim(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusPending, StatusSending)
}

func (s *sqliteStore) Release(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusSending, StatusPending)
}

func (s *sqliteStore) Withdraw(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusPending, StatusCancelled)
}

// transition performs a conditional status update; the WHERE clause is what
// makes claim/withdraw ordering safe.
func (s *sqliteStore) transition(ctx context.Context, id string, from, to PostStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("updating post status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("post %q (%s -> %s): %w", id, from, to, ErrNotPending)
	}
	return nil
}

func (s *sqliteStore) ReleaseAllClaims(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_posts SET status = ? WHERE status = ?`,
		string(StatusPending), string(StatusSending),
	)
	if err != nil {
		return 0, fmt.Errorf("releasing claims: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqliteStore) CommitDelivery(ctx context.Context, id string, rec PostRecord) error {
	if rec.PostedAt.IsZero() {
		rec.PostedAt = time.Now().UTC()
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delivery commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE scheduled_posts SET status = ? WHERE id = ? AND status = ?`,
		string(StatusSent), id, string(StatusSending),
	)
	if err != nil {
		return fmt.Errorf("marking sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("post %q (sending -> sent): %w", id, ErrNotPending)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO posts(destination_id, author_id, body, photo_id, chat_id, message_id, posted_at)
		 VALUES(?,?,?,?,?,?,?)`,
		rec.DestinationID, rec.AuthorID, rec.Body, rec.PhotoID,
		rec.ChatID, rec.MessageID, rec.PostedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("recording post: %w", err)
	}
	return tx.Commit()
}

func (s *sqliteStore) LastPost(ctx context.Context, destID string) (*PostRecord, error) {
	var r postRow
	err := s.db.GetContext(ctx, &r,
		`SELECT * FROM posts WHERE destination_id = ? ORDER BY posted_at DESC, id DESC LIMIT 1`,
		destID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching last post: %w", err)
	}
	rec := r.toPostRecord()
	return &rec, nil
}
