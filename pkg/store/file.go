package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sitesync/sitesync/pkg/model"
)

// FileStore keeps snapshot blobs in a local directory tree, one
// subdirectory per site.
type FileStore struct {
	root   string
	logger zerolog.Logger
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, logger zerolog.Logger) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("store root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FileStore{
		root:   root,
		logger: logger.With().Str("component", "store").Str("backend", "file").Logger(),
	}, nil
}

// Write persists the snapshot atomically: a temp file in the target
// directory, then a rename.
func (s *FileStore) Write(ctx context.Context, snap *model.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := model.Encode(snap)
	if err != nil {
		return "", err
	}

	ref := snapshotRef(snap)
	full := filepath.Join(s.root, filepath.FromSlash(ref))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create site directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".snapshot-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}

	s.logger.Debug().Str("site_id", snap.SiteID).Str("ref", ref).Int("bytes", len(data)).Msg("Snapshot written")
	return ref, nil
}

// Read loads and decodes the snapshot at ref.
func (s *FileStore) Read(ctx context.Context, ref string) (*model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(ref)))
	if err != nil {
		return nil, err
	}
	return model.Decode(data)
}

// List returns the site's stored snapshots, newest first.
func (s *FileStore) List(ctx context.Context, siteID string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, siteID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, Info{
			SiteID:  siteID,
			Ref:     siteID + "/" + e.Name(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	// Blob names embed the capture time, so name order is time order.
	sort.Slice(out, func(i, j int) bool { return out[i].Ref > out[j].Ref })
	return out, nil
}
