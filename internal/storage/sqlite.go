package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"stock-price-alerts/pkg/models"
)

// SQLiteStore persists alert rules, the watchlist and quote history.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite is happiest with a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS alert_rules (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			threshold TEXT NOT NULL,
			armed INTEGER NOT NULL DEFAULT 1,
			note TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			last_fired INTEGER,
			metric TEXT NOT NULL DEFAULT 'price',
			paused INTEGER NOT NULL DEFAULT 0,
			email TEXT NOT NULL DEFAULT '',
			telegram_chat_id TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_alert_rules_symbol ON alert_rules(symbol);`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			symbol TEXT PRIMARY KEY,
			added_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS quotes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			price TEXT NOT NULL,
			ts INTEGER NOT NULL,
			prev_close TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_quotes_symbol_ts ON quotes(symbol, ts);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// Databases created before these columns existed get them added in place.
	for _, col := range []struct {
		table string
		name  string
		ddl   string
	}{
		{"alert_rules", "metric", `ALTER TABLE alert_rules ADD COLUMN metric TEXT NOT NULL DEFAULT 'price';`},
		{"alert_rules", "paused", `ALTER TABLE alert_rules ADD COLUMN paused INTEGER NOT NULL DEFAULT 0;`},
		{"alert_rules", "email", `ALTER TABLE alert_rules ADD COLUMN email TEXT NOT NULL DEFAULT '';`},
		{"alert_rules", "telegram_chat_id", `ALTER TABLE alert_rules ADD COLUMN telegram_chat_id TEXT NOT NULL DEFAULT '';`},
		{"quotes", "prev_close", `ALTER TABLE quotes ADD COLUMN prev_close TEXT NOT NULL DEFAULT '';`},
	} {
		ok, err := s.hasColumn(ctx, col.table, col.name)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := s.db.ExecContext(ctx, col.ddl); err != nil {
				return fmt.Errorf("alter %s add %s: %w", col.table, col.name, err)
			}
		}
	}
	return nil
}

func (s *SQLiteStore) hasColumn(ctx context.Context, table, col string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s);`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			typ       string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if name == col {
			return true, nil
		}
	}
	return false, rows.Err()
}

func (s *SQLiteStore) SaveRule(ctx context.Context, rule *models.AlertRule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, symbol, metric, direction, threshold, armed, paused, note,
			email, telegram_chat_id, created_at, last_fired)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			metric = excluded.metric,
			direction = excluded.direction,
			threshold = excluded.threshold,
			armed = excluded.armed,
			paused = excluded.paused,
			note = excluded.note,
			email = excluded.email,
			telegram_chat_id = excluded.telegram_chat_id,
			last_fired = excluded.last_fired`,
		rule.ID,
		models.NormalizeSymbol(rule.Symbol),
		rule.Metric.String(),
		rule.Direction.String(),
		rule.Threshold.String(),
		boolToInt(rule.Armed),
		boolToInt(rule.Paused),
		rule.Note,
		rule.Email,
		rule.TelegramChatID,
		rule.CreatedAt.UnixNano(),
		nullableTime(rule.LastFired),
	)
	if err != nil {
		return fmt.Errorf("save rule %s: %w", rule.ID, err)
	}
	return nil
}

// DeleteRule removes a rule. Deleting an unknown id is a no-op.
func (s *SQLiteStore) DeleteRule(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) LoadRules(ctx context.Context) ([]*models.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, metric, direction, threshold, armed, paused, note,
			email, telegram_chat_id, created_at, last_fired
		FROM alert_rules ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		var (
			rule      models.AlertRule
			metric    string
			direction string
			threshold string
			armed     int
			paused    int
			createdAt int64
			lastFired sql.NullInt64
		)
		if err := rows.Scan(&rule.ID, &rule.Symbol, &metric, &direction, &threshold, &armed, &paused, &rule.Note,
			&rule.Email, &rule.TelegramChatID, &createdAt, &lastFired); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}

		var ok bool
		if rule.Metric, ok = models.ParseMetric(metric); !ok {
			return nil, fmt.Errorf("rule %s metric %q: unknown", rule.ID, metric)
		}
		rule.Direction = models.ParseDirection(direction)
		rule.Threshold, err = decimal.NewFromString(threshold)
		if err != nil {
			return nil, fmt.Errorf("rule %s threshold %q: %w", rule.ID, threshold, err)
		}
		rule.Armed = armed != 0
		rule.Paused = paused != 0
		rule.CreatedAt = time.Unix(0, createdAt)
		if lastFired.Valid {
			t := time.Unix(0, lastFired.Int64)
			rule.LastFired = &t
		}
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

// AddSymbol adds a ticker to the watchlist. Adding an existing ticker is a
// no-op.
func (s *SQLiteStore) AddSymbol(ctx context.Context, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return errors.New("symbol is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO watchlist (symbol, added_at) VALUES (?, ?)`,
		symbol, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("add %s to watchlist: %w", symbol, err)
	}
	return nil
}

// RemoveSymbol drops a ticker from the watchlist. Removing an absent ticker
// is a no-op.
func (s *SQLiteStore) RemoveSymbol(ctx context.Context, symbol string) error {
	symbol = models.NormalizeSymbol(symbol)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM watchlist WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("remove %s from watchlist: %w", symbol, err)
	}
	return nil
}

func (s *SQLiteStore) Watchlist(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM watchlist ORDER BY added_at, symbol`)
	if err != nil {
		return nil, fmt.Errorf("load watchlist: %w", err)
	}
	defer rows.Close()

	symbols := []string{}
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, err
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

func (s *SQLiteStore) RecordQuote(ctx context.Context, quote models.Quote) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quotes (symbol, price, prev_close, ts) VALUES (?, ?, ?, ?)`,
		models.NormalizeSymbol(quote.Symbol), quote.Price.String(), decimalOrEmpty(quote.PrevClose), quote.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("record quote %s: %w", quote.Symbol, err)
	}
	return nil
}

// History returns quotes for symbol at or after since, oldest first. A
// positive limit keeps only the most recent quotes.
func (s *SQLiteStore) History(ctx context.Context, symbol string, since time.Time, limit int) ([]models.Quote, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, price, prev_close, ts FROM (
			SELECT symbol, price, prev_close, ts FROM quotes
			WHERE symbol = ? AND ts >= ?
			ORDER BY ts DESC LIMIT ?
		) ORDER BY ts`,
		models.NormalizeSymbol(symbol), since.UnixNano(), limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	quotes := []models.Quote{}
	for rows.Next() {
		var (
			quote     models.Quote
			price     string
			prevClose string
			ts        int64
		)
		if err := rows.Scan(&quote.Symbol, &price, &prevClose, &ts); err != nil {
			return nil, err
		}
		quote.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("quote price %q: %w", price, err)
		}
		if prevClose != "" {
			if quote.PrevClose, err = decimal.NewFromString(prevClose); err != nil {
				return nil, fmt.Errorf("quote prev close %q: %w", prevClose, err)
			}
		}
		quote.Timestamp = time.Unix(0, ts)
		quotes = append(quotes, quote)
	}
	return quotes, rows.Err()
}

// PruneHistory deletes quotes older than cutoff and reports how many went.
func (s *SQLiteStore) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quotes WHERE ts < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func decimalOrEmpty(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
