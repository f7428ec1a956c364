package model

import "time"

// Track represents an audio track in the music library.
// Technical attributes are set once at ingest by the upload subsystem and
// must not change after any transcode output has been produced, otherwise
// cached tiers would no longer match the source.
type Track struct {
	ID         string    `json:"id"` // UUID
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Format     string    `json:"format"`     // Container format, e.g. "flac", "mp3", "wav"
	SampleRate int       `json:"sampleRate"` // Hz; 0 when unknown
	BitDepth   int       `json:"bitDepth"`   // Bits per sample; 0 for lossy sources
	FileSize   int64     `json:"fileSize"`   // Size of the original file in bytes
	Duration   int       `json:"duration"`   // Duration in seconds
	FilePath   string    `json:"-"`          // Path to the original audio file, not exposed in API directly
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
