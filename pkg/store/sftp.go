package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/sitesync/sitesync/pkg/model"
)

// SFTPConfig describes the remote host holding a snapshot tree.
type SFTPConfig struct {
	// Host is the remote hostname or address.
	Host string

	// Port is the SSH port, 22 when zero.
	Port int

	// User is the SSH user.
	User string

	// Password enables password authentication when set.
	Password string

	// PrivateKeyPath enables key authentication when set. Takes
	// precedence over Password.
	PrivateKeyPath string

	// PrivateKeyPassphrase decrypts an encrypted private key.
	PrivateKeyPassphrase string

	// KnownHostsPath enables strict host key verification when set.
	// Without it the host key is not checked.
	KnownHostsPath string

	// Root is the remote directory holding the snapshot tree.
	Root string

	// Timeout bounds the connection attempt, 30s when zero.
	Timeout time.Duration
}

// Validate checks the config for completeness.
func (c *SFTPConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if c.Root == "" {
		return fmt.Errorf("remote root is required")
	}
	if c.PrivateKeyPath == "" && c.Password == "" {
		return fmt.Errorf("either a private key or a password is required")
	}
	return nil
}

// buildClientConfig assembles the ssh.ClientConfig from the settings.
func (c *SFTPConfig) buildClientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if c.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	} else {
		auth = append(auth, ssh.Password(c.Password))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if c.KnownHostsPath != "" {
		cb, err := knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}, nil
}

// address returns host:port with the default SSH port applied.
func (c *SFTPConfig) address() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// SFTPStore keeps snapshot blobs on a remote host over SFTP, in the
// same site-per-directory layout as FileStore.
type SFTPStore struct {
	cfg    SFTPConfig
	logger zerolog.Logger

	mu     sync.Mutex
	conn   *ssh.Client
	client *sftp.Client
}

// DialSFTP connects to the remote host and ensures the root exists.
func DialSFTP(cfg SFTPConfig, logger zerolog.Logger) (*SFTPStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sftp config: %w", err)
	}
	clientConfig, err := cfg.buildClientConfig()
	if err != nil {
		return nil, err
	}

	conn, err := ssh.Dial("tcp", cfg.address(), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.address(), err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open sftp session: %w", err)
	}
	if err := client.MkdirAll(cfg.Root); err != nil {
		_ = client.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("create remote root: %w", err)
	}

	return &SFTPStore{
		cfg:    cfg,
		logger: logger.With().Str("component", "store").Str("backend", "sftp").Str("host", cfg.Host).Logger(),
		conn:   conn,
		client: client,
	}, nil
}

// Close releases the SFTP session and the SSH connection.
func (s *SFTPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	if s.client != nil {
		firstErr = s.client.Close()
		s.client = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); firstErr == nil {
			firstErr = err
		}
		s.conn = nil
	}
	return firstErr
}

// Write uploads the snapshot, temp name first, then a posix rename so a
// reader never sees a partial blob.
func (s *SFTPStore) Write(ctx context.Context, snap *model.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := model.Encode(snap)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return "", fmt.Errorf("sftp store is closed")
	}

	ref := snapshotRef(snap)
	full := path.Join(s.cfg.Root, ref)
	if err := s.client.MkdirAll(path.Dir(full)); err != nil {
		return "", fmt.Errorf("create remote site directory: %w", err)
	}

	tmp := full + ".tmp"
	f, err := s.client.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = s.client.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = s.client.Remove(tmp)
		return "", err
	}
	if err := s.client.PosixRename(tmp, full); err != nil {
		_ = s.client.Remove(tmp)
		return "", err
	}

	s.logger.Debug().Str("site_id", snap.SiteID).Str("ref", ref).Int("bytes", len(data)).Msg("Snapshot uploaded")
	return ref, nil
}

// Read downloads and decodes the snapshot at ref.
func (s *SFTPStore) Read(ctx context.Context, ref string) (*model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, fmt.Errorf("sftp store is closed")
	}

	f, err := s.client.Open(path.Join(s.cfg.Root, ref))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return model.Decode(data)
}

// List returns the site's stored snapshots, newest first.
func (s *SFTPStore) List(ctx context.Context, siteID string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, fmt.Errorf("sftp store is closed")
	}

	entries, err := s.client.ReadDir(path.Join(s.cfg.Root, siteID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Info
	for _, fi := range entries {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".json") {
			continue
		}
		out = append(out, Info{
			SiteID:  siteID,
			Ref:     siteID + "/" + fi.Name(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref > out[j].Ref })
	return out, nil
}
