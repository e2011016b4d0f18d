// internal/state/session.go
package state

import (
	"errors"
	"sync"
	"time"

	"github.com/user/stitchbot/internal/types"
)

// ErrMixedKinds is returned by AppendFile when a stitch-mode queue would hold
// both photos and videos.
var ErrMixedKinds = errors.New("queue already holds a different media kind")

// Registry is the in-memory session store. The mutex only protects the map;
// ordering of one user's events is the gateway lane's job.
type Registry struct {
	mu       sync.RWMutex
	sessions map[types.UserID]*types.Session
	now      func() time.Time
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[types.UserID]*types.Session),
		now:      time.Now,
	}
}

// ensure returns the live record for user, creating it. Caller must hold mu.
func (r *Registry) ensure(user types.UserID) *types.Session {
	if sess, ok := r.sessions[user]; ok {
		return sess
	}
	now := r.now()
	sess := &types.Session{
		UserID:    user,
		Mode:      types.DefaultMode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.sessions[user] = sess
	return sess
}

func snapshot(sess *types.Session) types.Session {
	out := *sess
	out.Files = append([]string(nil), sess.Files...)
	return out
}

// Ensure returns the user's session, creating an empty one on first use.
func (r *Registry) Ensure(user types.UserID) types.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot(r.ensure(user))
}

// Snapshot returns the user's session without creating it.
func (r *Registry) Snapshot(user types.UserID) (types.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[user]
	if !ok {
		return types.Session{}, false
	}
	return snapshot(sess), true
}

// SetMode overwrites the session mode. Queued files are kept.
func (r *Registry) SetMode(user types.UserID, mode types.Mode) types.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.ensure(user)
	sess.Mode = mode
	sess.UpdatedAt = r.now()
	return snapshot(sess)
}

// AppendFile queues path and returns the new queue length. The first file of
// a known kind fixes the queue's kind; after that, in stitch modes, a photo
// cannot join a video queue and vice versa. Files of unknown kind never set
// or break the lock.
func (r *Registry) AppendFile(user types.UserID, path string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess := r.ensure(user)
	kind := types.KindOf(path)
	if kind != types.KindUnknown {
		switch {
		case sess.Kind == types.KindUnknown:
			sess.Kind = kind
		case sess.Mode.Stitches() && kind != sess.Kind:
			return len(sess.Files), ErrMixedKinds
		}
	}
	sess.Files = append(sess.Files, path)
	sess.UpdatedAt = r.now()
	return len(sess.Files), nil
}

// Clear empties the queue. The mode survives.
func (r *Registry) Clear(user types.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[user]
	if !ok {
		return
	}
	sess.Files = nil
	sess.Kind = types.KindUnknown
	sess.UpdatedAt = r.now()
}

// Idle lists users whose session has not changed since before cutoff.
func (r *Registry) Idle(cutoff time.Time) []types.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var users []types.UserID
	for id, sess := range r.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			users = append(users, id)
		}
	}
	return users
}

// Evict drops the session if it is still idle at cutoff. Returns true if the
// session was removed.
func (r *Registry) Evict(user types.UserID, cutoff time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[user]
	if !ok || !sess.UpdatedAt.Before(cutoff) {
		return false
	}
	delete(r.sessions, user)
	return true
}

// Users returns the ids of all live sessions.
func (r *Registry) Users() map[types.UserID]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[types.UserID]struct{}, len(r.sessions))
	for id := range r.sessions {
		out[id] = struct{}{}
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
