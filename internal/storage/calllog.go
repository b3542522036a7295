// Package storage keeps the call history in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/voicesync/internal/domain"
	jsoniter "github.com/json-iterator/go"
	_ "modernc.org/sqlite"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type CallRecord struct {
	ID        int64             `json:"id"`
	CallID    domain.ChannelID  `json:"call_id"`
	Members   []domain.PlayerID `json:"members"`
	Peak      int               `json:"peak_participants"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
}

// CallLog is a SQLite-backed record of calls and their participants.
type CallLog struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" is accepted.
func Open(path string) (*CallLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS calls (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			call_id     TEXT NOT NULL,
			members     TEXT NOT NULL,
			peak        INTEGER NOT NULL DEFAULT 0,
			started_at  INTEGER NOT NULL,
			ended_at    INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_calls_open ON calls(call_id, ended_at);
		CREATE TABLE IF NOT EXISTS call_joins (
			call_row   INTEGER NOT NULL REFERENCES calls(id),
			player     TEXT NOT NULL,
			joined_at  INTEGER NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &CallLog{db: db}, nil
}

func (l *CallLog) Close() error { return l.db.Close() }

func (l *CallLog) Started(ctx context.Context, call domain.VoiceCall, at time.Time) error {
	members, err := json.Marshal(call.Members)
	if err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO calls (call_id, members, peak, started_at) VALUES (?, ?, ?, ?)`,
		string(call.ID), string(members), len(call.Participants), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert call %s: %w", call.ID, err)
	}
	return nil
}

// Joined records a participant change of the open call. A leave only
// updates the peak.
func (l *CallLog) Joined(ctx context.Context, call domain.VoiceCall, at time.Time) error {
	row, err := l.openRow(ctx, call.ID)
	if err != nil || row == 0 {
		return err
	}
	if _, err := l.db.ExecContext(ctx,
		`UPDATE calls SET peak = MAX(peak, ?) WHERE id = ?`, len(call.Participants), row); err != nil {
		return fmt.Errorf("update call %s: %w", call.ID, err)
	}
	if !call.LastOperationWasAdd {
		return nil
	}
	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO call_joins (call_row, player, joined_at) VALUES (?, ?, ?)`,
		row, string(call.LastModifiedID), at.UnixMilli()); err != nil {
		return fmt.Errorf("insert join %s: %w", call.ID, err)
	}
	return nil
}

func (l *CallLog) Ended(ctx context.Context, id domain.ChannelID, at time.Time) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE calls SET ended_at = ? WHERE call_id = ? AND ended_at IS NULL`, at.UnixMilli(), string(id))
	if err != nil {
		return fmt.Errorf("end call %s: %w", id, err)
	}
	return nil
}

func (l *CallLog) openRow(ctx context.Context, id domain.ChannelID) (int64, error) {
	var row int64
	err := l.db.QueryRowContext(ctx,
		`SELECT id FROM calls WHERE call_id = ? AND ended_at IS NULL ORDER BY id DESC LIMIT 1`, string(id)).Scan(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find call %s: %w", id, err)
	}
	return row, nil
}

// Participants lists who joined the call stored at row, in join order.
func (l *CallLog) Participants(ctx context.Context, row int64) ([]domain.PlayerID, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT player FROM call_joins WHERE call_row = ? ORDER BY joined_at, rowid`, row)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.PlayerID
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, domain.PlayerID(p))
	}
	return out, rows.Err()
}

// Recent returns the newest calls first.
func (l *CallLog) Recent(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, call_id, members, peak, started_at, ended_at FROM calls ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var out []CallRecord
	for rows.Next() {
		var (
			rec     CallRecord
			callID  string
			members string
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &callID, &members, &rec.Peak, &started, &ended); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		rec.CallID = domain.ChannelID(callID)
		if err := json.Unmarshal([]byte(members), &rec.Members); err != nil {
			return nil, fmt.Errorf("decode members: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
