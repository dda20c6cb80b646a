// Package store is the persistent search/index layer: an embedded
// SQLite database with FTS5 indexes over OCR text, audio
// transcriptions and UI snapshots, plus the speaker registry.
package store

import (
	"time"

	"github.com/lokutor-ai/recall/pkg/audio"
)

// ContentType selects which kinds of rows a search touches.
type ContentType string

const (
	ContentTypeOCR   ContentType = "ocr"
	ContentTypeAudio ContentType = "audio"
	ContentTypeUI    ContentType = "ui"
	ContentTypeAll   ContentType = "all"
)

// SearchResult is one hit from Search. Concrete types are OCRResult,
// AudioResult and UIResult.
type SearchResult interface {
	ResultKind() ContentType
	ResultTime() time.Time
	resultID() int64
}

// OCRResult is a frame of recognized screen text.
type OCRResult struct {
	FrameID     int64
	FrameName   string
	Timestamp   time.Time
	FilePath    string
	OffsetIndex int64
	OCRText     string
	TextJSON    string
	AppName     string
	WindowName  string
	BrowserURL  string
	Focused     bool
	Engine      string
}

func (r OCRResult) ResultKind() ContentType { return ContentTypeOCR }
func (r OCRResult) ResultTime() time.Time   { return r.Timestamp }
func (r OCRResult) resultID() int64         { return r.FrameID }

// AudioResult is one transcription row.
type AudioResult struct {
	ID            int64
	ChunkID       int64
	Timestamp     time.Time
	FilePath      string
	OffsetIndex   int64
	Transcription string
	Engine        string
	Device        audio.AudioDevice
	SpeakerID     *int64
	StartOffset   *float64
	EndOffset     *float64
}

func (r AudioResult) ResultKind() ContentType { return ContentTypeAudio }
func (r AudioResult) ResultTime() time.Time   { return r.Timestamp }
func (r AudioResult) resultID() int64         { return r.ID }

// UIResult is one accessibility-tree snapshot.
type UIResult struct {
	ID                 int64
	Text               string
	Timestamp          time.Time
	App                string
	Window             string
	InitialTraversalAt time.Time
}

func (r UIResult) ResultKind() ContentType { return ContentTypeUI }
func (r UIResult) ResultTime() time.Time   { return r.Timestamp }
func (r UIResult) resultID() int64         { return r.ID }

// Speaker is a clustered voice identity. Metadata is an opaque JSON
// blob owned by callers, except the audio_samples key that
// GetUnnamedSpeakers maintains.
type Speaker struct {
	ID            int64
	Name          string
	Metadata      string
	Hallucination bool
}

// AudioChunk is one encoded clip artifact on disk.
type AudioChunk struct {
	ID        int64
	FilePath  string
	Timestamp time.Time
}

// SearchOptions are the optional filters every search composes.
// Zero values mean "no filter"; Focused uses a pointer because false
// is a meaningful filter value.
type SearchOptions struct {
	StartTime  time.Time
	EndTime    time.Time
	AppName    string
	WindowName string
	MinLength  int
	MaxLength  int
	SpeakerIDs []int64
	FrameName  string
	BrowserURL string
	Focused    *bool
}
