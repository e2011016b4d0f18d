// internal/state/journal.go
package state

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"github.com/user/stitchbot/internal/types"
)

// Journal is a JSONL-backed append-only log of /end outcomes.
// Records are stored per user in <root>/<userID>.jsonl.
type Journal struct {
	fs    afero.Fs
	root  string
	mu    sync.Mutex
	locks map[types.UserID]*sync.Mutex
}

// NewJournal creates a file-backed Journal rooted at the given directory.
func NewJournal(fs afero.Fs, root string) *Journal {
	return &Journal{
		fs:    fs,
		root:  root,
		locks: make(map[types.UserID]*sync.Mutex),
	}
}

// getLock returns the per-user mutex, creating one if it doesn't exist.
func (j *Journal) getLock(user types.UserID) *sync.Mutex {
	j.mu.Lock()
	defer j.mu.Unlock()

	if lock, ok := j.locks[user]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	j.locks[user] = lock
	return lock
}

func (j *Journal) path(user types.UserID) string {
	return filepath.Join(j.root, user.String()+".jsonl")
}

// Append adds an outcome to the user's journal.
func (j *Journal) Append(_ context.Context, outcome *types.Outcome) error {
	lock := j.getLock(outcome.UserID)
	lock.Lock()
	defer lock.Unlock()

	if err := j.fs.MkdirAll(j.root, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	f, err := j.fs.OpenFile(j.path(outcome.UserID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}

// read returns every outcome for user. Caller must hold the user lock.
func (j *Journal) read(user types.UserID) ([]*types.Outcome, error) {
	f, err := j.fs.Open(j.path(user))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var outcomes []*types.Outcome
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var outcome types.Outcome
		if err := json.Unmarshal(scanner.Bytes(), &outcome); err != nil {
			return nil, fmt.Errorf("unmarshal outcome: %w", err)
		}
		outcomes = append(outcomes, &outcome)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return outcomes, nil
}

// Tail returns the last N outcomes for the given user.
func (j *Journal) Tail(_ context.Context, user types.UserID, limit int) ([]*types.Outcome, error) {
	lock := j.getLock(user)
	lock.Lock()
	defer lock.Unlock()

	outcomes, err := j.read(user)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(outcomes) > limit {
		outcomes = outcomes[len(outcomes)-limit:]
	}
	return outcomes, nil
}

// Count returns the number of successful outcomes for the given user.
func (j *Journal) Count(_ context.Context, user types.UserID) (int64, error) {
	lock := j.getLock(user)
	lock.Lock()
	defer lock.Unlock()

	outcomes, err := j.read(user)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, o := range outcomes {
		if o.Success {
			count++
		}
	}
	return count, nil
}
