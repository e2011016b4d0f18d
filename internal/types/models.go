// internal/types/models.go
package types

import (
	"path/filepath"
	"strings"
	"time"
)

// Mode selects what /end does with the queued files.
type Mode string

const (
	ModeVertical   Mode = "vertical"
	ModeHorizontal Mode = "horizontal"
	ModeAlbum      Mode = "album"
)

// DefaultMode is the mode of a freshly created session.
const DefaultMode = ModeAlbum

// ParseMode maps a command name to a Mode. "long" is an alias for vertical.
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "/")) {
	case "vertical", "long":
		return ModeVertical, true
	case "horizontal":
		return ModeHorizontal, true
	case "album":
		return ModeAlbum, true
	}
	return "", false
}

// Stitches reports whether the mode produces a single merged artifact.
func (m Mode) Stitches() bool {
	return m == ModeVertical || m == ModeHorizontal
}

// MediaKind is the kind of a staged file, derived from its extension.
type MediaKind string

const (
	KindUnknown MediaKind = ""
	KindPhoto   MediaKind = "photo"
	KindVideo   MediaKind = "video"
)

var imageExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

var videoExts = map[string]struct{}{
	".mp4": {},
	".mov": {},
	".avi": {},
}

// KindOf classifies a path by its extension, case-insensitively.
func KindOf(path string) MediaKind {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := imageExts[ext]; ok {
		return KindPhoto
	}
	if _, ok := videoExts[ext]; ok {
		return KindVideo
	}
	return KindUnknown
}

// Session is a point-in-time copy of a user's queue.
type Session struct {
	UserID    UserID    `json:"user_id"`
	Mode      Mode      `json:"mode"`
	Kind      MediaKind `json:"kind,omitempty"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AttachmentType is how the transport delivered a file.
type AttachmentType string

const (
	AttachmentPhoto    AttachmentType = "photo"
	AttachmentVideo    AttachmentType = "video"
	AttachmentDocument AttachmentType = "document"
)

// Attachment references a file held by the transport until it is downloaded.
type Attachment struct {
	Type     AttachmentType `json:"type"`
	FileID   string         `json:"file_id"`
	UniqueID string         `json:"unique_id"`
	FileName string         `json:"file_name,omitempty"`
	MimeType string         `json:"mime_type,omitempty"`
	Size     int64          `json:"size,omitempty"`
}

// Extension returns the staged file extension for the attachment. Documents
// keep their original extension; an empty result means it must be sniffed.
func (a *Attachment) Extension() string {
	switch a.Type {
	case AttachmentPhoto:
		return ".jpg"
	case AttachmentVideo:
		return ".mp4"
	}
	return filepath.Ext(a.FileName)
}

// InboundEvent is one command or attachment received from a user.
type InboundEvent struct {
	Source     string      `json:"source"`
	UserID     UserID      `json:"user_id"`
	ChatID     ChatID      `json:"chat_id"`
	Command    string      `json:"command,omitempty"`
	Args       string      `json:"args,omitempty"`
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Outcome is a journal record of one /end attempt.
type Outcome struct {
	UserID  UserID    `json:"user_id"`
	JobID   JobID     `json:"job_id"`
	At      time.Time `json:"at"`
	Mode    Mode      `json:"mode"`
	Kind    MediaKind `json:"kind,omitempty"`
	Files   int       `json:"files"`
	Success bool      `json:"success"`
	Failure string    `json:"failure,omitempty"`
	Error   string    `json:"error,omitempty"`
}
