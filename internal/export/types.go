// Package export renders a diagram with its review comments to PDF.
package export

import (
	"errors"
	"time"
)

// Diagram carries everything the export template needs.
type Diagram struct {
	ID        string
	Name      string
	Code      string
	Version   int
	UpdatedAt time.Time
}

// Comment is one review annotation, already resolved or still pending.
type Comment struct {
	Text               string
	StartLine          int
	EndLine            int
	CodeSnapshot       string
	Author             string
	Processed          bool
	ProcessedInVersion *int
	CreatedAt          time.Time
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
