// internal/types/ids.go
package types

import (
	"strconv"

	"github.com/google/uuid"
)

// UserID identifies a chat user. Sessions and staging directories are keyed by it.
type UserID int64

type ChatID int64
type JobID string

func (u UserID) String() string {
	return strconv.FormatInt(int64(u), 10)
}

// ParseUserID parses the decimal form produced by UserID.String.
func ParseUserID(s string) (UserID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return UserID(n), nil
}

func NewJobID() JobID {
	return JobID(uuid.New().String())
}
