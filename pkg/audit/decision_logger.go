package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/markus-lassfolk/hifiwifi/pkg"
	"github.com/markus-lassfolk/hifiwifi/pkg/logx"
)

// Config holds audit configuration
type Config struct {
	DatabasePath  string `json:"database_path"`
	RetentionDays int    `json:"retention_days"`
	MaxRecords    int    `json:"max_records"`
}

// DefaultConfig returns default audit configuration
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:  "/var/lib/hifiwifi/decisions.db",
		RetentionDays: 30,
		MaxRecords:    10000,
	}
}

// DecisionStats summarises decisions since some point in time
type DecisionStats struct {
	Total      int            `json:"total"`
	Acceptable int            `json:"acceptable"`
	Actions    map[string]int `json:"actions"`
	Reasons    map[string]int `json:"reasons"`
	Rooms      map[string]int `json:"rooms"`
	AvgScore   float64        `json:"avg_score"`
}

// DecisionLogger records every recommendation in a sqlite table
type DecisionLogger struct {
	logger *logx.Logger
	config *Config
	db     *sql.DB
	mu     sync.Mutex
}

// timestamp holds UTC unix nanoseconds so comparisons and ordering are numeric
const createTableSQL = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	room TEXT NOT NULL,
	activity TEXT NOT NULL,
	action TEXT NOT NULL,
	reason_code TEXT NOT NULL,
	target_location TEXT NOT NULL DEFAULT '',
	rule TEXT NOT NULL DEFAULT '',
	overall TEXT NOT NULL,
	weighted_score REAL NOT NULL,
	acceptable BOOLEAN NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
CREATE INDEX IF NOT EXISTS idx_decisions_room ON decisions(room);
`

// NewDecisionLogger opens the audit database, creating it when missing
func NewDecisionLogger(config *Config, logger *logx.Logger) (*DecisionLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(config.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: consistent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create decisions table: %w", err)
	}

	logger.Info("Decision audit log opened", "path", config.DatabasePath, "retention_days", config.RetentionDays)
	return &DecisionLogger{logger: logger, config: config, db: db}, nil
}

// Close closes the database
func (dl *DecisionLogger) Close() error {
	return dl.db.Close()
}

// LogDecision inserts one decision
func (dl *DecisionLogger) LogDecision(ctx context.Context, d *pkg.Decision) error {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	_, err := dl.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO decisions
			(id, timestamp, room, activity, action, reason_code, target_location, rule, overall, weighted_score, acceptable)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Timestamp.UTC().UnixNano(), d.Room, d.Activity, d.Action, d.ReasonCode,
		d.TargetLocation, d.Rule, d.Overall, d.WeightedScore, d.Acceptable,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision %s: %w", d.ID, err)
	}

	dl.logger.Debug("Decision recorded",
		"decision_id", d.ID,
		"room", d.Room,
		"action", d.Action,
		"reason_code", d.ReasonCode,
	)
	return nil
}

// Recent returns the newest decisions, newest first
func (dl *DecisionLogger) Recent(ctx context.Context, limit int) ([]*pkg.Decision, error) {
	if limit <= 0 {
		limit = 100
	}
	return dl.query(ctx, `SELECT id, timestamp, room, activity, action, reason_code, target_location, rule, overall, weighted_score, acceptable
		FROM decisions ORDER BY timestamp DESC LIMIT ?`, limit)
}

// ForRoom returns one room's decisions, newest first
func (dl *DecisionLogger) ForRoom(ctx context.Context, room string, limit int) ([]*pkg.Decision, error) {
	if limit <= 0 {
		limit = 100
	}
	return dl.query(ctx, `SELECT id, timestamp, room, activity, action, reason_code, target_location, rule, overall, weighted_score, acceptable
		FROM decisions WHERE room = ? ORDER BY timestamp DESC LIMIT ?`, room, limit)
}

func (dl *DecisionLogger) query(ctx context.Context, q string, args ...interface{}) ([]*pkg.Decision, error) {
	rows, err := dl.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var out []*pkg.Decision
	for rows.Next() {
		var (
			d  pkg.Decision
			ns int64
		)
		if err := rows.Scan(&d.ID, &ns, &d.Room, &d.Activity, &d.Action, &d.ReasonCode,
			&d.TargetLocation, &d.Rule, &d.Overall, &d.WeightedScore, &d.Acceptable); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Timestamp = time.Unix(0, ns).UTC()
		out = append(out, &d)
	}
	return out, rows.Err()
}

// Stats aggregates decisions made after since
func (dl *DecisionLogger) Stats(ctx context.Context, since time.Time) (*DecisionStats, error) {
	rows, err := dl.db.QueryContext(ctx,
		`SELECT room, action, reason_code, weighted_score, acceptable FROM decisions WHERE timestamp > ?`, since.UTC().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("failed to query decision stats: %w", err)
	}
	defer rows.Close()

	stats := &DecisionStats{
		Actions: make(map[string]int),
		Reasons: make(map[string]int),
		Rooms:   make(map[string]int),
	}
	var totalScore float64
	for rows.Next() {
		var (
			room, action, reason string
			score                float64
			acceptable           bool
		)
		if err := rows.Scan(&room, &action, &reason, &score, &acceptable); err != nil {
			return nil, fmt.Errorf("failed to scan decision stats: %w", err)
		}
		stats.Total++
		stats.Actions[action]++
		stats.Reasons[reason]++
		stats.Rooms[room]++
		totalScore += score
		if acceptable {
			stats.Acceptable++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.Total > 0 {
		stats.AvgScore = totalScore / float64(stats.Total)
	}
	return stats, nil
}

// Cleanup applies the retention period and the record cap. It returns the
// number of rows deleted.
func (dl *DecisionLogger) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	var deleted int64
	if dl.config.RetentionDays > 0 {
		cutoff := now.AddDate(0, 0, -dl.config.RetentionDays).UTC().UnixNano()
		res, err := dl.db.ExecContext(ctx, "DELETE FROM decisions WHERE timestamp < ?", cutoff)
		if err != nil {
			return 0, fmt.Errorf("failed to apply retention: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	if dl.config.MaxRecords > 0 {
		res, err := dl.db.ExecContext(ctx, `
			DELETE FROM decisions WHERE id IN (
				SELECT id FROM decisions ORDER BY timestamp DESC LIMIT -1 OFFSET ?
			)`, dl.config.MaxRecords)
		if err != nil {
			return deleted, fmt.Errorf("failed to cap decisions: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}

	if deleted > 0 {
		dl.logger.Info("Decision audit cleanup", "deleted", deleted)
	}
	return deleted, nil
}
