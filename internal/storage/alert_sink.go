package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/y001j/pizzeria-alerts/internal/model"
)

// ErrTableMissing means the alerts table does not exist yet. Callers treat
// it as a soft failure.
var ErrTableMissing = errors.New("alerts table missing")

// ErrAlertNotRecorded means an update matched no row.
var ErrAlertNotRecorded = errors.New("alert not recorded")

// DefaultAlertTable is the table alerts are recorded in.
const DefaultAlertTable = "system_alerts"

const alertColumns = "id, rule_id, type, category, title, message, data, created_at, resolved, resolved_at, resolved_by"

// AlertSink records alerts durably. Insert serves the database channel and
// Resolve serves the alert store, in either order.
type AlertSink struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// NewAlertSink wraps an open pool.
func NewAlertSink(db *sql.DB, dialect Dialect) *AlertSink {
	return &AlertSink{db: db, dialect: dialect, table: DefaultAlertTable}
}

// Migrate creates the alerts table if needed.
func (s *AlertSink) Migrate(ctx context.Context) error {
	textType, tsType := "TEXT", "TIMESTAMP"
	idType := "VARCHAR(191)"
	switch s.dialect {
	case DialectMySQL:
		textType, tsType = "LONGTEXT", "DATETIME(3)"
	case DialectPostgres:
		tsType = "TIMESTAMPTZ"
	}

	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id %s PRIMARY KEY,
		rule_id VARCHAR(128),
		type VARCHAR(16) NOT NULL,
		category VARCHAR(32) NOT NULL,
		title VARCHAR(255) NOT NULL,
		message %s,
		data %s,
		created_at %s NOT NULL,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at %s NULL,
		resolved_by VARCHAR(128)
	)`, s.table, idType, textType, textType, tsType, tsType)

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Insert records a new alert. A row that already exists is left untouched,
// so a late insert never undoes a resolution written first.
func (s *AlertSink) Insert(ctx context.Context, alert *model.Alert) error {
	var query string
	switch s.dialect {
	case DialectMySQL:
		query = fmt.Sprintf("INSERT IGNORE INTO %s (%s) VALUES (%s)", s.table, alertColumns, s.dialect.Placeholders(11))
	default:
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO NOTHING", s.table, alertColumns, s.dialect.Placeholders(11))
	}
	return s.write(ctx, "insert alert", query, alert)
}

// Update records a lifecycle change. It returns ErrAlertNotRecorded when no
// row matches alertID.
func (s *AlertSink) Update(ctx context.Context, alertID string, resolved bool, resolvedAt time.Time, resolvedBy string) error {
	query := fmt.Sprintf("UPDATE %s SET resolved = %s, resolved_at = %s, resolved_by = %s WHERE id = %s",
		s.table,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3), s.dialect.Placeholder(4))
	res, err := s.db.ExecContext(ctx, query, resolved, resolvedAt.UTC(), nullString(resolvedBy), alertID)
	if err != nil {
		return s.classify("update alert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update alert %s: %w", alertID, ErrAlertNotRecorded)
	}
	return nil
}

// Resolve writes a resolved alert. When the database channel has not
// inserted the row yet, the full alert is upserted with its resolution.
func (s *AlertSink) Resolve(ctx context.Context, alert *model.Alert) error {
	if !alert.Resolved || alert.ResolvedAt == nil {
		return fmt.Errorf("alert %s is not resolved", alert.ID)
	}
	err := s.Update(ctx, alert.ID, true, *alert.ResolvedAt, alert.ResolvedBy)
	if !errors.Is(err, ErrAlertNotRecorded) {
		return err
	}

	var query string
	switch s.dialect {
	case DialectMySQL:
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE "+
			"resolved = VALUES(resolved), resolved_at = VALUES(resolved_at), resolved_by = VALUES(resolved_by)",
			s.table, alertColumns, s.dialect.Placeholders(11))
	default:
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET "+
			"resolved = excluded.resolved, resolved_at = excluded.resolved_at, resolved_by = excluded.resolved_by",
			s.table, alertColumns, s.dialect.Placeholders(11))
	}
	return s.write(ctx, "upsert alert", query, alert)
}

func (s *AlertSink) write(ctx context.Context, op, query string, alert *model.Alert) error {
	data, err := json.Marshal(alert.Data)
	if err != nil {
		return fmt.Errorf("marshal alert data: %w", err)
	}
	var resolvedAt sql.NullTime
	if alert.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: alert.ResolvedAt.UTC(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, query,
		alert.ID,
		nullString(alert.RuleID),
		string(alert.Type),
		string(alert.Category),
		alert.Title,
		alert.Message,
		string(data),
		alert.Timestamp.UTC(),
		alert.Resolved,
		resolvedAt,
		nullString(alert.ResolvedBy),
	)
	if err != nil {
		return s.classify(op, err)
	}
	return nil
}

// Recent returns the newest alerts recorded, up to limit.
func (s *AlertSink) Recent(ctx context.Context, limit int) ([]*model.Alert, error) {
	query := fmt.Sprintf(
		"SELECT id, rule_id, type, category, title, message, data, created_at, resolved, resolved_at, resolved_by FROM %s ORDER BY created_at DESC LIMIT %s",
		s.table, s.dialect.Placeholder(1))
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, s.classify("list alerts", err)
	}
	defer rows.Close()

	var out []*model.Alert
	for rows.Next() {
		var (
			a                   model.Alert
			ruleID, resolvedBy  sql.NullString
			message, data       sql.NullString
			alertType, category string
			resolvedAt          sql.NullTime
		)
		if err := rows.Scan(&a.ID, &ruleID, &alertType, &category, &a.Title, &message, &data,
			&a.Timestamp, &a.Resolved, &resolvedAt, &resolvedBy); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.RuleID = ruleID.String
		a.Type = model.Severity(alertType)
		a.Category = model.Category(category)
		a.Message = message.String
		a.ResolvedBy = resolvedBy.String
		if resolvedAt.Valid {
			t := resolvedAt.Time
			a.ResolvedAt = &t
		}
		if data.Valid && data.String != "" && data.String != "null" {
			if err := json.Unmarshal([]byte(data.String), &a.Data); err != nil {
				return nil, fmt.Errorf("decode alert %s data: %w", a.ID, err)
			}
		}
		a.Actions = model.ActionsFor(a.Category)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Ping checks the pool.
func (s *AlertSink) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// classify wraps err, tagging missing-table errors with ErrTableMissing.
func (s *AlertSink) classify(op string, err error) error {
	if IsTableMissing(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrTableMissing, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTableMissing recognises "no such table" errors from every supported
// driver.
func IsTableMissing(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1146
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return strings.Contains(err.Error(), "no such table")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
