package voice

import (
	"github.com/haivivi/nova/pkg/buffer"
)

// Speaker tags a transcript entry.
type Speaker string

// Speakers.
const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// TranscriptCapacity is the number of entries kept by a TranscriptLog.
const TranscriptCapacity = 11

// TranscriptEntry is one recognized speech fragment.
type TranscriptEntry struct {
	Speaker Speaker `json:"speaker" yaml:"speaker"`
	Text    string  `json:"text" yaml:"text"`
}

// TranscriptLog keeps the most recent TranscriptCapacity entries, evicting
// the oldest first. It is safe for concurrent use.
type TranscriptLog struct {
	ring *buffer.RingBuffer[TranscriptEntry]
}

// NewTranscriptLog creates an empty log.
func NewTranscriptLog() *TranscriptLog {
	return &TranscriptLog{ring: buffer.RingN[TranscriptEntry](TranscriptCapacity)}
}

// Append adds an entry, evicting the oldest one when the log is full.
func (l *TranscriptLog) Append(speaker Speaker, text string) TranscriptEntry {
	e := TranscriptEntry{Speaker: speaker, Text: text}
	// The ring is never closed, Add cannot fail.
	_ = l.ring.Add(e)
	return e
}

// Entries returns a copy of the log, oldest first.
func (l *TranscriptLog) Entries() []TranscriptEntry {
	return l.ring.Snapshot()
}

// Len returns the number of entries.
func (l *TranscriptLog) Len() int {
	return l.ring.Len()
}

// Reset empties the log.
func (l *TranscriptLog) Reset() {
	l.ring.Reset()
}
