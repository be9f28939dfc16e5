package models

import "time"

// FileRecord describes one stored file owned by a user.
//
// Filename is the user-visible name, unique per user. StorageKey is the
// opaque key of the blob in the backing store; it is never exposed and
// never changes, so renames are metadata-only. Fingerprint is the SHA-256
// hex digest of the content computed at upload time.
type FileRecord struct {
	ID          string
	UserID      string
	Filename    string
	StorageKey  string
	Size        int64
	Fingerprint string
	CreatedAt   time.Time
}

// FileInfo is the fixed listing shape returned to callers.
type FileInfo struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}
