// Package state holds the per-user session registry, the on-disk staging
// area for received files, and the outcome journal.
package state

import "github.com/user/stitchbot/internal/types"

// Compile-time interface compliance checks.
var _ types.SessionStore = (*Registry)(nil)
var _ types.StagingStore = (*MediaStore)(nil)
var _ types.OutcomeJournal = (*Journal)(nil)
