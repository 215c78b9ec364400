package domain

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// EmptyID is the id of the synthetic "no results" descriptor
const EmptyID = "empty"

// DefaultMinQueryLength is the trimmed query length at which a query becomes a search
const DefaultMinQueryLength = 3

// MediaType is the kind of media a descriptor points at
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// MediaDescriptor represents one media item pushed by the host
type MediaDescriptor struct {
	ID   string    `json:"id"`
	Path string    `json:"path"` // host filesystem path, opaque to the client
	Type MediaType `json:"type"`
	Name string    `json:"name"`
}

// Sentinel returns the placeholder injected when a listing pass found nothing
func Sentinel() MediaDescriptor {
	return MediaDescriptor{ID: EmptyID}
}

// IsSentinel reports whether d is the "no results" placeholder
func (d MediaDescriptor) IsSentinel() bool {
	return d.ID == EmptyID
}

// IsVideo reports whether the descriptor is a video
func (d MediaDescriptor) IsVideo() bool {
	return d.Type == MediaTypeVideo
}

// DisplayName returns the name shown in the UI, falling back to the file name
func (d MediaDescriptor) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	if d.Path == "" {
		return d.ID
	}
	return filepath.Base(d.Path)
}

// Equal reports whether two renders of an item are identical.
// A re-render is skipped only when id, path, type and name all match.
func (d MediaDescriptor) Equal(other MediaDescriptor) bool {
	return d.ID == other.ID &&
		d.Path == other.Path &&
		d.Type == other.Type &&
		d.Name == other.Name
}

// Mode selects which host stream drives the catalog
type Mode int32

const (
	ModeListing Mode = iota
	ModeSearching
)

func (m Mode) String() string {
	switch m {
	case ModeListing:
		return "listing"
	case ModeSearching:
		return "searching"
	default:
		return "unknown"
	}
}

// ClassifyQuery returns ModeSearching when the trimmed query has at least minLen runes
func ClassifyQuery(query string, minLen int) Mode {
	if minLen <= 0 {
		minLen = DefaultMinQueryLength
	}
	if utf8.RuneCountInString(strings.TrimSpace(query)) >= minLen {
		return ModeSearching
	}
	return ModeListing
}
