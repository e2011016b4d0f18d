// internal/state/staging.go
package state

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"

	"github.com/user/stitchbot/internal/types"
)

// fallbackExt is used when neither the filename nor the content reveals a type.
const fallbackExt = ".dat"

// MediaStore keeps each user's received files under <root>/<userID>/.
type MediaStore struct {
	fs   afero.Fs
	root string
}

// NewMediaStore creates a MediaStore rooted at root on the given filesystem.
func NewMediaStore(fs afero.Fs, root string) *MediaStore {
	return &MediaStore{fs: fs, root: root}
}

// Root returns the directory holding all staging directories.
func (m *MediaStore) Root() string {
	return m.root
}

func (m *MediaStore) userDir(user types.UserID) string {
	return filepath.Join(m.root, user.String())
}

// StagingDir returns the user's staging directory, creating it if absent.
func (m *MediaStore) StagingDir(user types.UserID) (string, error) {
	dir := m.userDir(user)
	if err := m.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	return dir, nil
}

// Save streams r into <uniqueID><ext> inside the user's staging directory and
// returns the path. An empty ext is resolved by sniffing the content.
func (m *MediaStore) Save(user types.UserID, uniqueID, ext string, r io.Reader) (string, error) {
	if uniqueID == "" || strings.ContainsAny(uniqueID, `/\`) || uniqueID == "." || uniqueID == ".." {
		return "", fmt.Errorf("invalid file id %q", uniqueID)
	}
	dir, err := m.StagingDir(user)
	if err != nil {
		return "", err
	}

	target := filepath.Join(dir, uniqueID+ext)
	tmp := filepath.Join(dir, uniqueID+".part")
	f, err := m.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		m.fs.Remove(tmp)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		m.fs.Remove(tmp)
		return "", fmt.Errorf("close staged file: %w", err)
	}

	if ext == "" {
		ext = m.sniffExt(tmp)
		target = filepath.Join(dir, uniqueID+ext)
	}
	if err := m.fs.Rename(tmp, target); err != nil {
		m.fs.Remove(tmp)
		return "", fmt.Errorf("rename staged file: %w", err)
	}
	return target, nil
}

// sniffExt detects a supported media extension from file content, falling back to .dat.
func (m *MediaStore) sniffExt(path string) string {
	f, err := m.fs.Open(path)
	if err != nil {
		return fallbackExt
	}
	defer f.Close()
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return fallbackExt
	}
	ext := mt.Extension()
	if types.KindOf(ext) == types.KindUnknown {
		return fallbackExt
	}
	return ext
}

// RemoveFile deletes a single staged file belonging to user.
func (m *MediaStore) RemoveFile(user types.UserID, path string) error {
	dir := m.userDir(user)
	if filepath.Dir(filepath.Clean(path)) != dir {
		return fmt.Errorf("path %s is outside staging dir %s", path, dir)
	}
	if err := m.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// Clear deletes everything in the user's staging directory and recreates it empty.
func (m *MediaStore) Clear(user types.UserID) error {
	if err := m.Remove(user); err != nil {
		return err
	}
	_, err := m.StagingDir(user)
	return err
}

// Remove deletes the user's staging directory entirely.
func (m *MediaStore) Remove(user types.UserID) error {
	if err := m.fs.RemoveAll(m.userDir(user)); err != nil {
		return fmt.Errorf("remove staging dir: %w", err)
	}
	return nil
}

// DirInfo describes one user's staging directory.
type DirInfo struct {
	UserID  types.UserID `json:"user_id"`
	Path    string       `json:"path"`
	Files   int          `json:"files"`
	Size    int64        `json:"size_bytes"`
	ModTime time.Time    `json:"mod_time"`
}

// List returns every user staging directory under the root. Entries whose
// name is not a user id are ignored.
func (m *MediaStore) List() ([]DirInfo, error) {
	entries, err := afero.ReadDir(m.fs, m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read staging root: %w", err)
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		user, err := types.ParseUserID(entry.Name())
		if err != nil {
			continue
		}
		info := DirInfo{
			UserID:  user,
			Path:    filepath.Join(m.root, entry.Name()),
			ModTime: entry.ModTime(),
		}
		files, err := afero.ReadDir(m.fs, info.Path)
		if err != nil {
			return nil, fmt.Errorf("read staging dir: %w", err)
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			info.Files++
			info.Size += f.Size()
			if f.ModTime().After(info.ModTime) {
				info.ModTime = f.ModTime()
			}
		}
		dirs = append(dirs, info)
	}
	return dirs, nil
}

// CleanResult contains the outcome of a stale directory cleanup.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanStale removes staging directories last modified before cutoff, except
// those belonging to users in active.
func (m *MediaStore) CleanStale(cutoff time.Time, active map[types.UserID]struct{}) CleanResult {
	var result CleanResult
	dirs, err := m.List()
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: m.root, Error: err})
		return result
	}
	for _, dir := range dirs {
		if _, ok := active[dir.UserID]; ok {
			continue
		}
		if !dir.ModTime.Before(cutoff) {
			continue
		}
		if err := m.fs.RemoveAll(dir.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir.Path, Error: err})
			continue
		}
		result.Removed = append(result.Removed, dir.Path)
	}
	return result
}
