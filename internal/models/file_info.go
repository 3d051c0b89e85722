package models

import "time"

// FileKind tells stored rule documents apart from scenario files.
type FileKind string

const (
	FileKindRules     FileKind = "rules"
	FileKindScenarios FileKind = "scenarios"
)

// FileStatus is the processing state of a stored file.
type FileStatus string

const (
	FileStatusUploaded FileStatus = "uploaded"
	FileStatusLoaded   FileStatus = "loaded"
	FileStatusError    FileStatus = "error"
)

// FileInfo represents metadata about an uploaded file.
type FileInfo struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Kind       FileKind   `json:"kind"`
	Size       int64      `json:"size"`
	UploadedAt time.Time  `json:"uploadedAt"`
	Status     FileStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
}
