// Package authfile handles reading and writing the auth file, which stores
// the signed-in user id and OAuth2 token alongside cached profile metadata.
// It is a leaf package imported by both the CLI and the sync engine so
// neither depends on the other for identity.
package authfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// FilePerms restricts auth files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the auth directory.
const DirPerms = 0o700

// File is the on-disk format. UserID is the remote store's user id — the
// root of the per-user collection tree.
type File struct {
	UserID string            `json:"user_id"`
	Token  *oauth2.Token     `json:"token,omitempty"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// Load reads the auth file at path. Returns (nil, nil) if the file does not
// exist — absent file means not signed in, which is not an error.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not signed in"
	}

	if err != nil {
		return nil, fmt.Errorf("authfile: reading %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("authfile: decoding %s: %w", path, err)
	}

	if f.UserID == "" {
		return nil, fmt.Errorf("authfile: %s missing user_id (sign in again)", path)
	}

	return &f, nil
}

// Save writes the auth file atomically with owner-only permissions.
func Save(path string, f *File) error {
	if err := os.MkdirAll(filepath.Dir(path), DirPerms); err != nil {
		return fmt.Errorf("authfile: creating %s: %w", filepath.Dir(path), err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("authfile: encoding: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, FilePerms); err != nil {
		return fmt.Errorf("authfile: writing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("authfile: replacing %s: %w", path, err)
	}

	return nil
}

// Provider implements the sync engine's Identity interface from an auth
// file on disk. The file is read once at construction; a re-login replaces
// the process in this design.
type Provider struct {
	userID string
}

// NewProvider loads identity from path. A missing file yields a Provider
// that reports no signed-in user.
func NewProvider(path string) (*Provider, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}

	p := &Provider{}
	if f != nil {
		p.userID = f.UserID
	}

	return p, nil
}

// CurrentUserID returns the signed-in user id, or ok=false when absent.
func (p *Provider) CurrentUserID() (string, bool) {
	return p.userID, p.userID != ""
}
