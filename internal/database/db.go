package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jgoulah/meterwatch/pkg/models"
	_ "modernc.org/sqlite"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// sqlite allows a single writer
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		number TEXT NOT NULL,
		remaining_power REAL NOT NULL,
		remaining_amount REAL NOT NULL,
		unit_price REAL NOT NULL,
		update_time TEXT,
		status TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_readings_created_at ON readings(created_at);

	CREATE TABLE IF NOT EXISTS usage_buckets (
		granularity TEXT NOT NULL,
		key TEXT NOT NULL,
		usage REAL NOT NULL DEFAULT 0,
		count INTEGER NOT NULL DEFAULT 0,
		avg_power REAL NOT NULL DEFAULT 0,
		peak_power REAL,
		UNIQUE(granularity, key)
	);
	CREATE INDEX IF NOT EXISTS idx_buckets_granularity ON usage_buckets(granularity);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertReading stores a scraped reading and returns its id
func (db *DB) InsertReading(r *models.Reading) (int, error) {
	query := `
	INSERT INTO readings (name, number, remaining_power, remaining_amount, unit_price, update_time, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	createdAt := r.Timestamp.UTC().Format(time.RFC3339Nano)
	res, err := db.conn.Exec(query, r.Name, r.Number, r.RemainingPower, r.RemainingAmount, r.UnitPrice, r.UpdateTime, r.Status, createdAt)
	if err != nil {
		return 0, fmt.Errorf("inserting reading: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading insert id: %w", err)
	}
	r.ID = int(id)
	return r.ID, nil
}

// LatestReadings returns up to limit readings, newest first
func (db *DB) LatestReadings(limit int) ([]models.Reading, error) {
	query := `
	SELECT id, name, number, remaining_power, remaining_amount, unit_price, update_time, status, created_at
	FROM readings
	ORDER BY id DESC
	LIMIT ?
	`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var results []models.Reading
	for rows.Next() {
		var r models.Reading
		var updateTime, status sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Name, &r.Number, &r.RemainingPower, &r.RemainingAmount, &r.UnitPrice, &updateTime, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.UpdateTime = updateTime.String
		r.Status = status.String
		r.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// LatestReading returns the newest reading, or nil if there are none
func (db *DB) LatestReading() (*models.Reading, error) {
	readings, err := db.LatestReadings(1)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

// CountReadings returns the number of stored readings
func (db *DB) CountReadings() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting readings: %w", err)
	}
	return n, nil
}

// TrimReadings deletes all but the newest max readings
func (db *DB) TrimReadings(max int) error {
	query := `
	DELETE FROM readings
	WHERE id NOT IN (SELECT id FROM readings ORDER BY id DESC LIMIT ?)
	`
	if _, err := db.conn.Exec(query, max); err != nil {
		return fmt.Errorf("trimming readings: %w", err)
	}
	return nil
}

// UpsertBucket adds usage to a bucket, creating it if needed. The bucket's
// avg_power is overwritten and, when trackPeak is set, peak_power keeps the
// highest value seen.
func (db *DB) UpsertBucket(g models.Granularity, key string, usage, power float64, trackPeak bool) error {
	var peak sql.NullFloat64
	if trackPeak {
		peak = sql.NullFloat64{Float64: power, Valid: true}
	}

	query := `
	INSERT INTO usage_buckets (granularity, key, usage, count, avg_power, peak_power)
	VALUES (?, ?, ?, 1, ?, ?)
	ON CONFLICT(granularity, key) DO UPDATE SET
		usage = usage + excluded.usage,
		count = count + 1,
		avg_power = excluded.avg_power,
		peak_power = CASE
			WHEN excluded.peak_power IS NULL THEN peak_power
			WHEN peak_power IS NULL OR excluded.peak_power > peak_power THEN excluded.peak_power
			ELSE peak_power
		END
	`

	if _, err := db.conn.Exec(query, string(g), key, usage, power, peak); err != nil {
		return fmt.Errorf("updating %s bucket %s: %w", g, key, err)
	}
	return nil
}

// GetBucket returns one bucket, or nil if it does not exist
func (db *DB) GetBucket(g models.Granularity, key string) (*models.UsageBucket, error) {
	query := `
	SELECT key, usage, count, avg_power, peak_power
	FROM usage_buckets
	WHERE granularity = ? AND key = ?
	`

	b := models.UsageBucket{Granularity: g}
	var peak sql.NullFloat64
	err := db.conn.QueryRow(query, string(g), key).Scan(&b.Key, &b.Usage, &b.Count, &b.AvgPower, &peak)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying bucket: %w", err)
	}
	if peak.Valid {
		b.PeakPower = &peak.Float64
	}
	return &b, nil
}

// ListBuckets returns all buckets for a granularity, ordered by key
func (db *DB) ListBuckets(g models.Granularity) ([]models.UsageBucket, error) {
	query := `
	SELECT key, usage, count, avg_power, peak_power
	FROM usage_buckets
	WHERE granularity = ?
	ORDER BY key ASC
	`

	rows, err := db.conn.Query(query, string(g))
	if err != nil {
		return nil, fmt.Errorf("querying buckets: %w", err)
	}
	defer rows.Close()

	var results []models.UsageBucket
	for rows.Next() {
		b := models.UsageBucket{Granularity: g}
		var peak sql.NullFloat64
		if err := rows.Scan(&b.Key, &b.Usage, &b.Count, &b.AvgPower, &peak); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if peak.Valid {
			v := peak.Float64
			b.PeakPower = &v
		}
		results = append(results, b)
	}

	return results, rows.Err()
}

// PruneBuckets deletes buckets whose key sorts before cutoff
func (db *DB) PruneBuckets(g models.Granularity, cutoff string) (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM usage_buckets WHERE granularity = ? AND key < ?`, string(g), cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning %s buckets: %w", g, err)
	}
	return res.RowsAffected()
}

// CountBuckets returns the number of buckets for a granularity
func (db *DB) CountBuckets(g models.Granularity) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM usage_buckets WHERE granularity = ?`, string(g)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting buckets: %w", err)
	}
	return n, nil
}

// GetSetting returns the raw value stored under key and whether it exists
func (db *DB) GetSetting(key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("querying setting %s: %w", key, err)
	}
	return value, true, nil
}

// PutSetting stores value under key, replacing any previous value
func (db *DB) PutSetting(key, value string) error {
	query := `
	INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.conn.Exec(query, key, value, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("saving setting %s: %w", key, err)
	}
	return nil
}
