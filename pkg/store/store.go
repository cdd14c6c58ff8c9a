// Package store persists snapshots. Two blob backends share one
// interface, a local filesystem tree and an SFTP-reachable remote
// tree, and a SQLite catalog records every capture for listing.
package store

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sitesync/sitesync/pkg/model"
)

// Info describes one stored snapshot blob.
type Info struct {
	// SiteID is the site the snapshot belongs to.
	SiteID string `json:"siteId"`

	// Ref is the backend-relative reference, usable with Read.
	Ref string `json:"ref"`

	// Size is the blob size in bytes.
	Size int64 `json:"size"`

	// ModTime is the blob's last modification time.
	ModTime time.Time `json:"modTime"`
}

// Store reads and writes snapshot blobs.
type Store interface {
	// Write persists the snapshot and returns its reference.
	Write(ctx context.Context, snap *model.Snapshot) (string, error)

	// Read loads the snapshot at ref.
	Read(ctx context.Context, ref string) (*model.Snapshot, error)

	// List returns stored snapshots for one site, newest first.
	List(ctx context.Context, siteID string) ([]Info, error)
}

// refTimeFormat names snapshot blobs so lexical order is capture
// order. Nanosecond precision keeps two captures of the same site in
// the same second from sharing a reference, which would silently
// overwrite the earlier blob.
const refTimeFormat = "20060102T150405.000000000Z"

// snapshotRef builds the site-scoped reference for a snapshot.
func snapshotRef(snap *model.Snapshot) string {
	name := fmt.Sprintf("%s-%s.json", snap.SiteID, snap.CapturedAt.UTC().Format(refTimeFormat))
	return path.Join(snap.SiteID, name)
}

// validateRef rejects references that escape the store root.
func validateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("empty snapshot reference")
	}
	clean := path.Clean(ref)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("snapshot reference %q escapes the store root", ref)
	}
	return nil
}
