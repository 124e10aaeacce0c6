// Package catalog records one row per capture session in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	// Registers the sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
)

const (
	createTableTmpl = `CREATE TABLE IF NOT EXISTS sessions (
		"ID"              TEXT NOT NULL PRIMARY KEY,
		"BaseName"        TEXT NOT NULL,
		"Device"          TEXT NOT NULL,
		"Frequency"       INTEGER,
		"SampleRate"      REAL,
		"Width"           INTEGER,
		"Tracks"          INTEGER,
		"Start"           INTEGER,
		"End"             INTEGER,
		"StopReason"      TEXT,
		"Rows"            INTEGER,
		"ImageChunks"     INTEGER,
		"IQChunks"        INTEGER,
		"ImagePath"       TEXT,
		"WavePath"        TEXT,
		"Latitude"        REAL,
		"Longitude"       REAL,
		"Altitude"        REAL
	);`
	insertSessionTmpl = `INSERT INTO sessions(
		ID, BaseName, Device, Frequency, SampleRate, Width, Tracks, Start, End,
		StopReason, Rows, ImageChunks, IQChunks, ImagePath, WavePath,
		Latitude, Longitude, Altitude
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	selectSessionsTmpl = `SELECT
		ID, BaseName, Device, Frequency, SampleRate, Width, Tracks, Start, End,
		StopReason, Rows, ImageChunks, IQChunks, ImagePath, WavePath,
		Latitude, Longitude, Altitude
	FROM sessions ORDER BY Start;`
)

// Session is one recorded capture
type Session struct {
	ID          string
	BaseName    string
	Device      string
	Frequency   int64
	SampleRate  float64
	Width       int
	Tracks      int
	Start       time.Time
	End         time.Time
	StopReason  string
	Rows        int
	ImageChunks int
	IQChunks    int
	ImagePath   string
	WavePath    string
	Latitude    float64
	Longitude   float64
	Altitude    float64
}

// Catalog is an open session database
type Catalog struct {
	db *sql.DB
}

// Open opens or creates the database at path
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite DB %q: %w", path, err)
	}
	if _, err := db.Exec(createTableTmpl); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to create sessions table: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Record inserts s, assigning a new identifier when s.ID is empty. The
// identifier used is returned.
func (c *Catalog) Record(ctx context.Context, s Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	stmt, err := c.db.PrepareContext(ctx, insertSessionTmpl)
	if err != nil {
		return "", fmt.Errorf("unable to prepare insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx,
		s.ID, s.BaseName, s.Device, s.Frequency, s.SampleRate, s.Width, s.Tracks,
		s.Start.UnixMilli(), s.End.UnixMilli(),
		s.StopReason, s.Rows, s.ImageChunks, s.IQChunks, s.ImagePath, s.WavePath,
		s.Latitude, s.Longitude, s.Altitude,
	)
	if err != nil {
		return "", fmt.Errorf("unable to insert session %s: %w", s.ID, err)
	}
	return s.ID, nil
}

// Sessions returns all recorded sessions ordered by start time
func (c *Catalog) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := c.db.QueryContext(ctx, selectSessionsTmpl)
	if err != nil {
		return nil, fmt.Errorf("unable to query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var start, end int64
		if err := rows.Scan(
			&s.ID, &s.BaseName, &s.Device, &s.Frequency, &s.SampleRate, &s.Width, &s.Tracks,
			&start, &end, &s.StopReason, &s.Rows, &s.ImageChunks, &s.IQChunks,
			&s.ImagePath, &s.WavePath, &s.Latitude, &s.Longitude, &s.Altitude,
		); err != nil {
			return nil, fmt.Errorf("unable to scan session: %w", err)
		}
		s.Start, s.End = time.UnixMilli(start), time.UnixMilli(end)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Close closes the database
func (c *Catalog) Close() error {
	return c.db.Close()
}
