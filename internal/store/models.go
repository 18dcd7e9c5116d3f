package store

import "time"

// Diagram is the mutable head of a document: the code the editor shows,
// plus the version number that code corresponds to.
type Diagram struct {
	ID             string
	Name           string
	CurrentCode    string
	CurrentVersion int
	Thumbnail      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Version is an immutable snapshot of a diagram's code. Rows are only ever
// inserted and trimmed, never updated.
type Version struct {
	ID            string
	DiagramID     string
	VersionNumber int
	Code          string
	CreatedAt     time.Time
}

// Comment is a line-range review annotation. CodeSnapshot freezes the
// referenced lines at creation time; ProcessedInVersion is stamped once
// when the comment is resolved and never changes afterwards.
type Comment struct {
	ID                 string
	DiagramID          string
	Text               string
	StartLine          int
	EndLine            int
	CodeSnapshot       string
	Author             *string
	Processed          bool
	ProcessedInVersion *int
	CreatedAt          time.Time
}

// DiagramSummary is a listing row with derived child counts.
type DiagramSummary struct {
	Diagram
	VersionsCount int
	CommentsCount int
}
