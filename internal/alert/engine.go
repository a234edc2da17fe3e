// Package alert holds user-defined alert rules, evaluates them against
// fresh analytics snapshots, and keeps the per-symbol trigger audit log.
// Rules and triggers persist in an embedded SQLite database.
package alert

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"quantlab/pulse/internal/analytics"
)

// Metrics a rule condition can reference.
const (
	MetricPrice  = "price"
	MetricZScore = "z_score"
)

// Comparators a rule condition can use.
const (
	CompareAbove = ">"
	CompareBelow = "<"
)

// ErrInvalidRule reports a rule whose shape failed validation.
var ErrInvalidRule = errors.New("alert: invalid rule")

// Rule is a user-defined alert condition on one symbol.
type Rule struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Metric     string    `json:"metric"`
	Comparator string    `json:"comparator"`
	Threshold  float64   `json:"threshold"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Trigger records one instance of a rule's condition being satisfied,
// together with the snapshot that satisfied it.
type Trigger struct {
	AlertID     string             `json:"alert_id"`
	Symbol      string             `json:"symbol"`
	TriggeredAt time.Time          `json:"triggered_at"`
	Snapshot    analytics.Snapshot `json:"analytics"`
}

// Engine is the rule store plus evaluator. Reads run concurrently;
// mutations serialize on an internal mutex.
type Engine struct {
	db        *sql.DB
	mu        sync.Mutex
	retention time.Duration
	logger    *slog.Logger
}

// Open opens (or creates) the alert database and runs migrations.
func Open(path string, retention time.Duration, logger *slog.Logger) (*Engine, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL keeps HTTP reads cheap while the evaluator writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	e := &Engine{
		db:        db,
		retention: retention,
		logger:    logger.With("component", "alert"),
	}
	if err := e.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return e, nil
}

func (e *Engine) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS alert_rules (
			id         TEXT PRIMARY KEY,
			symbol     TEXT NOT NULL,
			metric     TEXT NOT NULL,
			comparator TEXT NOT NULL,
			threshold  REAL NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_symbol ON alert_rules(symbol)`,

		`CREATE TABLE IF NOT EXISTS alert_triggers (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id     TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			triggered_at INTEGER NOT NULL,
			snapshot     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_triggers_symbol ON alert_triggers(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_triggers_alert ON alert_triggers(alert_id)`,
	}
	for _, s := range stmts {
		if _, err := e.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:30], err)
		}
	}
	return nil
}

// CreateRule validates, persists, and returns a new rule. The symbol is
// normalized to lower case and the rule expires after the configured
// retention.
func (e *Engine) CreateRule(symbol, metric, comparator string, threshold float64) (Rule, error) {
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	if symbol == "" {
		return Rule{}, fmt.Errorf("%w: empty symbol", ErrInvalidRule)
	}
	if metric != MetricPrice && metric != MetricZScore {
		return Rule{}, fmt.Errorf("%w: unknown metric %q", ErrInvalidRule, metric)
	}
	if comparator != CompareAbove && comparator != CompareBelow {
		return Rule{}, fmt.Errorf("%w: unknown comparator %q", ErrInvalidRule, comparator)
	}

	now := time.Now().UTC()
	rule := Rule{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Metric:     metric,
		Comparator: comparator,
		Threshold:  threshold,
		CreatedAt:  now,
		ExpiresAt:  now.Add(e.retention),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.db.Exec(`INSERT INTO alert_rules
		(id, symbol, metric, comparator, threshold, created_at, expires_at)
		VALUES (?,?,?,?,?,?,?)`,
		rule.ID, rule.Symbol, rule.Metric, rule.Comparator, rule.Threshold,
		rule.CreatedAt.Unix(), rule.ExpiresAt.Unix(),
	)
	if err != nil {
		return Rule{}, fmt.Errorf("insert rule: %w", err)
	}
	return rule, nil
}

// RulesFor returns the non-expired rules for a symbol.
func (e *Engine) RulesFor(symbol string) ([]Rule, error) {
	rows, err := e.db.Query(`SELECT id, symbol, metric, comparator, threshold, created_at, expires_at
		FROM alert_rules WHERE symbol = ? AND expires_at > ? ORDER BY created_at`,
		strings.ToLower(symbol), time.Now().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		var r Rule
		var created, expires int64
		if err := rows.Scan(&r.ID, &r.Symbol, &r.Metric, &r.Comparator, &r.Threshold, &created, &expires); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0).UTC()
		r.ExpiresAt = time.Unix(expires, 0).UTC()
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// DeleteRule removes a rule and purges every trigger referencing it.
// A missing rule is a no-op, not an error: found is false and nothing is
// purged. Otherwise it reports how many triggers were removed.
func (e *Engine) DeleteRule(id string) (found bool, purged int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.db.Exec(`DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return false, 0, fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}
	if n == 0 {
		return false, 0, nil
	}

	res, err = e.db.Exec(`DELETE FROM alert_triggers WHERE alert_id = ?`, id)
	if err != nil {
		return true, 0, fmt.Errorf("purge triggers: %w", err)
	}
	purged, err = res.RowsAffected()
	if err != nil {
		return true, 0, err
	}
	return true, purged, nil
}

// Evaluate runs every stored rule for the symbol against a fresh snapshot
// and records a trigger per satisfied condition. A rule keeps firing on
// every evaluation cycle while its condition holds; there is no cooldown.
// Failures are logged, never propagated — evaluation must not disturb the
// analytics loop.
func (e *Engine) Evaluate(symbol string, snap analytics.Snapshot) {
	rules, err := e.RulesFor(symbol)
	if err != nil {
		e.logger.Error("load rules failed", "symbol", symbol, "error", err)
		return
	}

	for _, rule := range rules {
		if !rule.matches(snap) {
			continue
		}
		if err := e.recordTrigger(rule, snap); err != nil {
			e.logger.Error("record trigger failed", "rule", rule.ID, "error", err)
		}
	}
}

func (r Rule) matches(snap analytics.Snapshot) bool {
	var value float64
	switch r.Metric {
	case MetricPrice:
		value = snap.Price
	case MetricZScore:
		value = snap.ZScore
	default:
		return false
	}

	if r.Comparator == CompareAbove {
		return value > r.Threshold
	}
	return value < r.Threshold
}

func (e *Engine) recordTrigger(rule Rule, snap analytics.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.db.Exec(`INSERT INTO alert_triggers (alert_id, symbol, triggered_at, snapshot)
		VALUES (?,?,?,?)`,
		rule.ID, rule.Symbol, time.Now().Unix(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert trigger: %w", err)
	}
	return nil
}

// TriggersFor returns up to limit triggers for a symbol, newest first.
func (e *Engine) TriggersFor(symbol string, limit int) ([]Trigger, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := e.db.Query(`SELECT alert_id, symbol, triggered_at, snapshot
		FROM alert_triggers WHERE symbol = ? ORDER BY id DESC LIMIT ?`,
		strings.ToLower(symbol), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []Trigger
	for rows.Next() {
		var tr Trigger
		var at int64
		var snapshot string
		if err := rows.Scan(&tr.AlertID, &tr.Symbol, &at, &snapshot); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		tr.TriggeredAt = time.Unix(at, 0).UTC()
		if err := json.Unmarshal([]byte(snapshot), &tr.Snapshot); err != nil {
			// Corrupt audit row: skip it rather than fail the listing.
			e.logger.Warn("unreadable trigger snapshot", "alert", tr.AlertID)
			continue
		}
		triggers = append(triggers, tr)
	}
	return triggers, rows.Err()
}

// Close releases the database handle.
func (e *Engine) Close() error {
	return e.db.Close()
}
