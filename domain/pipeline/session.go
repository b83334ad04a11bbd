package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session groups every artifact produced for one uploaded video
type Session struct {
	ID         string    `json:"id"`
	Stem       string    `json:"stem"`
	SourceName string    `json:"sourceName,omitempty"` // artifact name in the uploads bucket
	SourceExt  string    `json:"sourceExt,omitempty"`
	State      State     `json:"state"`
	Languages  []string  `json:"languages,omitempty"`
	Detached   bool      `json:"detached,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewSessionID returns a 32 character lowercase hex identifier
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSession starts a session for an upload
func NewSession(stem, ext string, now time.Time) *Session {
	return &Session{
		ID:        NewSessionID(),
		Stem:      stem,
		SourceExt: ext,
		State:     StateUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewDetachedSession starts a session for text that did not come from an upload
func NewDetachedSession(now time.Time) *Session {
	return &Session{
		ID:        NewSessionID(),
		Stem:      "text",
		State:     StateTranscribed,
		Detached:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Advance moves the session forward to state; it never moves backwards
func (s *Session) Advance(state State, now time.Time) {
	if state > s.State {
		s.State = state
	}
	s.UpdatedAt = now
}

// Allows reports whether stage may run from the current state
func (s *Session) Allows(stage Stage) bool {
	return s.State >= stage.Requires()
}

// HasSource reports whether the source video is known
func (s *Session) HasSource() bool {
	return s.SourceName != ""
}

// AddLanguage records a target language once
func (s *Session) AddLanguage(lang string) {
	for _, l := range s.Languages {
		if l == lang {
			return
		}
	}
	s.Languages = append(s.Languages, lang)
	sort.Strings(s.Languages)
}

// Clone returns a copy safe to hand out of a registry
func (s *Session) Clone() *Session {
	c := *s
	c.Languages = append([]string(nil), s.Languages...)
	return &c
}

// SessionRepository keeps sessions between stage calls
type SessionRepository interface {
	// Get returns a copy of the session, if known
	Get(id string) (*Session, bool)

	// Put stores a copy of the session
	Put(s *Session)

	// Update applies fn to the stored session atomically and returns a copy of the result
	Update(id string, fn func(*Session)) (*Session, bool)
}
