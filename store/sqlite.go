package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/rushteam/cinerank/core"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blocked_titles (
	user_id      TEXT    NOT NULL,
	content_id   INTEGER NOT NULL,
	content_type TEXT    NOT NULL,
	action       TEXT    NOT NULL DEFAULT 'block',
	created_at   TEXT    NOT NULL,
	PRIMARY KEY (user_id, content_id, content_type)
);
CREATE TABLE IF NOT EXISTS curated_lists (
	user_id     TEXT PRIMARY KEY,
	items       TEXT NOT NULL,
	preferences TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);`

// SQLitePersistence 是基于 SQLite 的拉黑列表与精选列表持久化，适合单机部署。
type SQLitePersistence struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite 打开（或创建）数据库并建表。path 可以是 ":memory:"。
func OpenSQLite(ctx context.Context, path string) (*SQLitePersistence, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 内存库每个连接独立，限制为单连接保证读写同一份数据
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLitePersistence{db: db, now: time.Now}, nil
}

func (s *SQLitePersistence) Close() error {
	return s.db.Close()
}

// Block 幂等插入，主键冲突时忽略。
func (s *SQLitePersistence) Block(ctx context.Context, userID string, id core.ExternalID, ct core.ContentType) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO blocked_titles (user_id, content_id, content_type, action, created_at)
		 VALUES (?, ?, ?, 'block', ?)`,
		userID, int64(id), string(ct), s.now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("block %s/%d: %w", ct, id, err)
	}
	return nil
}

func (s *SQLitePersistence) Blocked(ctx context.Context, userID string, ct core.ContentType) (core.IDSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content_id FROM blocked_titles WHERE user_id = ? AND content_type = ?`,
		userID, string(ct))
	if err != nil {
		return nil, fmt.Errorf("load blocked: %w", err)
	}
	defer rows.Close()

	out := core.NewIDSet()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan blocked: %w", err)
		}
		out.Add(core.ExternalID(id))
	}
	return out, rows.Err()
}

func (s *SQLitePersistence) UpsertCuratedList(ctx context.Context, list *core.CuratedList) error {
	if list == nil || list.UserID == "" {
		return core.ErrInvalidRequest.Wrap(errors.New("curated list requires user id"))
	}
	items, err := json.Marshal(list.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}
	prefs, err := json.Marshal(list.Preferences)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	updated := list.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO curated_lists (user_id, items, preferences, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET items = excluded.items,
		   preferences = excluded.preferences, updated_at = excluded.updated_at`,
		list.UserID, string(items), string(prefs), updated.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert curated list: %w", err)
	}
	return nil
}

func (s *SQLitePersistence) CuratedList(ctx context.Context, userID string) (*core.CuratedList, error) {
	var items, prefs, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT items, preferences, updated_at FROM curated_lists WHERE user_id = ?`, userID).
		Scan(&items, &prefs, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrStoreNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load curated list: %w", err)
	}

	list := &core.CuratedList{UserID: userID}
	if err := json.Unmarshal([]byte(items), &list.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if err := json.Unmarshal([]byte(prefs), &list.Preferences); err != nil {
		return nil, fmt.Errorf("decode preferences: %w", err)
	}
	if list.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return list, nil
}

var (
	_ core.BlockStore       = (*SQLitePersistence)(nil)
	_ core.CuratedListStore = (*SQLitePersistence)(nil)
)
