package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/sitesync/sitesync/pkg/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Capture is one catalog row: a snapshot that was taken and stored.
type Capture struct {
	// ID is the capture's unique id.
	ID string `json:"id"`

	// SiteID is the captured site.
	SiteID string `json:"siteId"`

	// Ref is the blob reference in the snapshot store.
	Ref string `json:"ref"`

	// CapturedAt is the snapshot's capture time.
	CapturedAt time.Time `json:"capturedAt"`

	// FormatVersion is the persisted format version of the blob.
	FormatVersion string `json:"formatVersion"`

	// Entities is the snapshot's total entity count.
	Entities int `json:"entities"`

	// CreatedAt is when the row was written.
	CreatedAt time.Time `json:"createdAt"`
}

// Catalog records captures in a WAL-mode SQLite database.
type Catalog struct {
	db     *sql.DB
	logger zerolog.Logger
}

// OpenCatalog opens (creating if needed) the catalog database and runs
// pending migrations.
func OpenCatalog(ctx context.Context, path string, logger zerolog.Logger) (*Catalog, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog path is required")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	c := &Catalog{
		db:     db,
		logger: logger.With().Str("component", "catalog").Logger(),
	}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// migrate brings the schema up to date from the embedded migrations.
func (c *Catalog) migrate() error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(c.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// RecordCapture writes one catalog row for a stored snapshot.
func (c *Catalog) RecordCapture(ctx context.Context, snap *model.Snapshot, ref string) (*Capture, error) {
	rec := &Capture{
		ID:            uuid.NewString(),
		SiteID:        snap.SiteID,
		Ref:           ref,
		CapturedAt:    snap.CapturedAt.UTC(),
		FormatVersion: snap.FormatVersion,
		Entities:      snap.EntityCount(),
		CreatedAt:     time.Now().UTC(),
	}

	const q = `
		INSERT INTO captures (id, site_id, ref, captured_at, format_version, entities, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := c.db.ExecContext(ctx, q,
		rec.ID, rec.SiteID, rec.Ref, rec.CapturedAt, rec.FormatVersion, rec.Entities, rec.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("record capture: %w", err)
	}

	c.logger.Debug().Str("site_id", rec.SiteID).Str("ref", rec.Ref).Msg("Capture recorded")
	return rec, nil
}

// ListCaptures returns catalog rows newest first. An empty siteID
// lists every site; a zero limit means no limit.
func (c *Catalog) ListCaptures(ctx context.Context, siteID string, limit int) ([]*Capture, error) {
	q := `
		SELECT id, site_id, ref, captured_at, format_version, entities, created_at
		FROM captures
	`
	var args []any
	if siteID != "" {
		q += " WHERE site_id = ?"
		args = append(args, siteID)
	}
	q += " ORDER BY captured_at DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	defer rows.Close()

	var out []*Capture
	for rows.Next() {
		rec := &Capture{}
		if err := rows.Scan(
			&rec.ID, &rec.SiteID, &rec.Ref, &rec.CapturedAt, &rec.FormatVersion, &rec.Entities, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan capture: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list captures: %w", err)
	}
	return out, nil
}
