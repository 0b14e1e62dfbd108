// Copyright (c) 2026 The A2AFabric developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package auditdb records security events and ledger mutations in sqlite,
// so operators can reconstruct what the fabric did and why.
package auditdb

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/a2afabric/fabric/fabric"
)

const (
	securityTableSchema = `CREATE TABLE IF NOT EXISTS security_event (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	category TEXT NOT NULL,
	actor TEXT NOT NULL,
	session_id TEXT,
	detail TEXT
); CREATE INDEX IF NOT EXISTS security_event_i0 ON security_event(ts);
CREATE INDEX IF NOT EXISTS security_event_i1 ON security_event(category);`

	ledgerTableSchema = `CREATE TABLE IF NOT EXISTS ledger_event (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	op TEXT NOT NULL,
	src TEXT NOT NULL,
	dst TEXT NOT NULL,
	amount INTEGER NOT NULL,
	reference TEXT
); CREATE INDEX IF NOT EXISTS ledger_event_i0 ON ledger_event(ts);
CREATE INDEX IF NOT EXISTS ledger_event_i1 ON ledger_event(src);
CREATE INDEX IF NOT EXISTS ledger_event_i2 ON ledger_event(dst);`
)

// Security event categories.
const (
	CategoryReplay      = "replay_detected"
	CategoryAuthFail    = "auth_failed"
	CategoryHandshake   = "handshake"
	CategorySessionKill = "session_expired"
	CategoryRateLimit   = "rate_limited"
	CategoryGovernance  = "governance"
)

// SecurityEvent is one recorded security-relevant occurrence.
type SecurityEvent struct {
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Category  string         `json:"category"`
	Actor     fabric.AgentID `json:"actor"`
	SessionID string         `json:"session_id,omitempty"`
	Detail    string         `json:"detail,omitempty"`
}

// LedgerEvent is one recorded balance mutation.
type LedgerEvent struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Op        string    `json:"op"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    uint64    `json:"amount"`
	Reference string    `json:"reference,omitempty"`
}

// AuditDB is the sqlite-backed audit trail.
type AuditDB struct {
	path string
	db   *sql.DB
}

// New creates or opens the audit db at path.
func New(path string) (audit *AuditDB, err error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if audit == nil {
			db.Close()
		}
	}()
	if _, err := db.Exec(securityTableSchema + ledgerTableSchema); err != nil {
		return nil, errors.Wrap(err, "create audit schema")
	}
	return &AuditDB{path: path, db: db}, nil
}

// NewMem creates an audit db in ram.
func NewMem() (*AuditDB, error) {
	return New(":memory:")
}

// Close closes the audit db.
func (a *AuditDB) Close() {
	a.db.Close()
}

// Path returns the db path.
func (a *AuditDB) Path() string { return a.path }

// LogSecurity appends a security event.
func (a *AuditDB) LogSecurity(ev *SecurityEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := a.db.Exec(
		"INSERT INTO security_event(ts, category, actor, session_id, detail) VALUES(?,?,?,?,?)",
		ts.UnixMilli(), ev.Category, string(ev.Actor), ev.SessionID, ev.Detail)
	return errors.Wrap(err, "log security event")
}

// LogLedger appends a ledger mutation.
func (a *AuditDB) LogLedger(ev *LedgerEvent) error {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := a.db.Exec(
		"INSERT INTO ledger_event(ts, op, src, dst, amount, reference) VALUES(?,?,?,?,?,?)",
		ts.UnixMilli(), ev.Op, ev.From, ev.To, int64(ev.Amount), ev.Reference)
	return errors.Wrap(err, "log ledger event")
}

// SecurityFilter narrows a security-event query. Zero values mean "any".
type SecurityFilter struct {
	Category string
	Actor    fabric.AgentID
	From     time.Time
	To       time.Time
	Limit    int
}

// FilterSecurity queries security events, newest first.
func (a *AuditDB) FilterSecurity(ctx context.Context, filter *SecurityFilter) ([]*SecurityEvent, error) {
	stmt := "SELECT seq, ts, category, actor, session_id, detail FROM security_event WHERE 1"
	var args []any
	if filter != nil {
		if filter.Category != "" {
			stmt += " AND category = ?"
			args = append(args, filter.Category)
		}
		if filter.Actor != "" {
			stmt += " AND actor = ?"
			args = append(args, string(filter.Actor))
		}
		if !filter.From.IsZero() {
			stmt += " AND ts >= ?"
			args = append(args, filter.From.UnixMilli())
		}
		if !filter.To.IsZero() {
			stmt += " AND ts <= ?"
			args = append(args, filter.To.UnixMilli())
		}
	}
	stmt += " ORDER BY seq DESC"
	if filter != nil && filter.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query security events")
	}
	defer rows.Close()

	var out []*SecurityEvent
	for rows.Next() {
		var (
			ev        SecurityEvent
			ts        int64
			actor     string
			sessionID sql.NullString
			detail    sql.NullString
		)
		if err := rows.Scan(&ev.Seq, &ts, &ev.Category, &actor, &sessionID, &detail); err != nil {
			return nil, err
		}
		ev.Timestamp = time.UnixMilli(ts)
		ev.Actor = fabric.AgentID(actor)
		ev.SessionID = sessionID.String
		ev.Detail = detail.String
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// LedgerFilter narrows a ledger-event query. Zero values mean "any".
// Account matches either side of the mutation.
type LedgerFilter struct {
	Op      string
	Account string
	From    time.Time
	To      time.Time
	Limit   int
}

// FilterLedger queries ledger mutations, newest first.
func (a *AuditDB) FilterLedger(ctx context.Context, filter *LedgerFilter) ([]*LedgerEvent, error) {
	stmt := "SELECT seq, ts, op, src, dst, amount, reference FROM ledger_event WHERE 1"
	var args []any
	if filter != nil {
		if filter.Op != "" {
			stmt += " AND op = ?"
			args = append(args, filter.Op)
		}
		if filter.Account != "" {
			stmt += " AND (src = ? OR dst = ?)"
			args = append(args, filter.Account, filter.Account)
		}
		if !filter.From.IsZero() {
			stmt += " AND ts >= ?"
			args = append(args, filter.From.UnixMilli())
		}
		if !filter.To.IsZero() {
			stmt += " AND ts <= ?"
			args = append(args, filter.To.UnixMilli())
		}
	}
	stmt += " ORDER BY seq DESC"
	if filter != nil && filter.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query ledger events")
	}
	defer rows.Close()

	var out []*LedgerEvent
	for rows.Next() {
		var (
			ev        LedgerEvent
			ts        int64
			amount    int64
			reference sql.NullString
		)
		if err := rows.Scan(&ev.Seq, &ts, &ev.Op, &ev.From, &ev.To, &amount, &reference); err != nil {
			return nil, err
		}
		ev.Timestamp = time.UnixMilli(ts)
		ev.Amount = uint64(amount)
		ev.Reference = reference.String
		out = append(out, &ev)
	}
	return out, rows.Err()
}
