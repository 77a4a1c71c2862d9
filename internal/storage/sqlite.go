package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "reviewbadge/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

const (
	keyReviewsAvailable = "reviews_available"
	keyNextReview       = "next_review"
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	// The daemon and the CLI open the same file; WAL + busy_timeout keep them
	// from tripping over each other.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM local_state`)
	if err != nil {
		return State{}, fmt.Errorf("load local state: %w", err)
	}
	defer rows.Close()

	var st State
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return State{}, fmt.Errorf("load local state: %w", err)
		}
		switch k {
		case keyReviewsAvailable:
			n, err := strconv.Atoi(v)
			if err != nil {
				s.log.Warn("ignoring corrupt cached review count", logx.String("value", v))
				continue
			}
			st.ReviewsAvailable = n
		case keyNextReview:
			t, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				s.log.Warn("ignoring corrupt cached next review", logx.String("value", v))
				continue
			}
			st.NextReview = t
		}
	}
	return st, rows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, st State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save local state: %w", err)
	}
	now := time.Now().UnixMilli()
	if err := putKey(ctx, tx, keyReviewsAvailable, strconv.Itoa(st.ReviewsAvailable), now); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("save local state: %w", err)
	}
	if err := putKey(ctx, tx, keyNextReview, st.NextReview.UTC().Format(time.RFC3339Nano), now); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("save local state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save local state: %w", err)
	}
	return nil
}

func (s *sqliteStore) SetReviewCount(ctx context.Context, n int) error {
	if err := putKey(ctx, s.db, keyReviewsAvailable, strconv.Itoa(n), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("set review count: %w", err)
	}
	return nil
}

func (s *sqliteStore) SetNextReview(ctx context.Context, at time.Time) error {
	if err := putKey(ctx, s.db, keyNextReview, at.UTC().Format(time.RFC3339Nano), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("set next review: %w", err)
	}
	return nil
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM local_state`); err != nil {
		return fmt.Errorf("clear local state: %w", err)
	}
	return nil
}

func (s *sqliteStore) PutAlarm(ctx context.Context, a AlarmRecord) error {
	if strings.TrimSpace(a.Name) == "" {
		return errors.New("alarm name required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alarms(name, scheduled_at, period_ms, generation) VALUES(?,?,?,?)
		 ON CONFLICT(name) DO UPDATE SET scheduled_at=excluded.scheduled_at,
		   period_ms=excluded.period_ms, generation=excluded.generation`,
		a.Name, a.ScheduledAt.UnixMilli(), a.Period.Milliseconds(), a.Generation,
	)
	if err != nil {
		return fmt.Errorf("put alarm %q: %w", a.Name, err)
	}
	return nil
}

func (s *sqliteStore) GetAlarm(ctx context.Context, name string) (AlarmRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT name, scheduled_at, period_ms, generation FROM alarms WHERE name = ?`, name)
	a, err := scanAlarm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AlarmRecord{}, fmt.Errorf("alarm %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return AlarmRecord{}, fmt.Errorf("get alarm %q: %w", name, err)
	}
	return a, nil
}

func (s *sqliteStore) DeleteAlarm(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete alarm %q: %w", name, err)
	}
	return nil
}

func (s *sqliteStore) ListAlarms(ctx context.Context) ([]AlarmRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, scheduled_at, period_ms, generation FROM alarms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list alarms: %w", err)
	}
	defer rows.Close()

	var out []AlarmRecord
	for rows.Next() {
		a, err := scanAlarm(rows)
		if err != nil {
			return nil, fmt.Errorf("list alarms: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutNotification(ctx context.Context, n NotificationRecord) error {
	if strings.TrimSpace(n.ID) == "" {
		return errors.New("notification id required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications(id, server_id, shown_at) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET server_id=excluded.server_id, shown_at=excluded.shown_at`,
		n.ID, int64(n.ServerID), n.ShownAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put notification %q: %w", n.ID, err)
	}
	return nil
}

func (s *sqliteStore) GetNotification(ctx context.Context, id string) (NotificationRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, server_id, shown_at FROM notifications WHERE id = ?`, id)
	return scanNotification(row, fmt.Sprintf("notification %q", id))
}

func (s *sqliteStore) NotificationByServerID(ctx context.Context, serverID uint32) (NotificationRecord, error) {
	// The server may reuse ids after a restart; the newest record wins.
	row := s.db.QueryRowContext(ctx,
		`SELECT id, server_id, shown_at FROM notifications WHERE server_id = ? ORDER BY shown_at DESC LIMIT 1`,
		int64(serverID))
	return scanNotification(row, fmt.Sprintf("notification server id %d", serverID))
}

func (s *sqliteStore) DeleteNotification(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete notification %q: %w", id, err)
	}
	return nil
}

func scanNotification(row *sql.Row, what string) (NotificationRecord, error) {
	var (
		n          NotificationRecord
		sid, shown int64
	)
	err := row.Scan(&n.ID, &sid, &shown)
	if errors.Is(err, sql.ErrNoRows) {
		return NotificationRecord{}, fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	if err != nil {
		return NotificationRecord{}, fmt.Errorf("get %s: %w", what, err)
	}
	n.ServerID = uint32(sid)
	n.ShownAt = time.UnixMilli(shown)
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putKey(ctx context.Context, db execer, key, value string, now int64) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO local_state(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, now,
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlarm(sc scanner) (AlarmRecord, error) {
	var (
		a       AlarmRecord
		at, per int64
	)
	if err := sc.Scan(&a.Name, &at, &per, &a.Generation); err != nil {
		return AlarmRecord{}, err
	}
	a.ScheduledAt = time.UnixMilli(at)
	a.Period = time.Duration(per) * time.Millisecond
	return a, nil
}
