package session

import (
	"errors"
	"time"
)

// ErrSessionNotFound is returned for operations on an owner without a session
var ErrSessionNotFound = errors.New("session not found")

// Owner identifies the user a session belongs to
type Owner int64

// State is the conversational state of a session
type State int

const (
	// StateIdle accepts uploads and commands; plain text is not interpreted
	StateIdle State = iota
	// StateAwaitingName treats the next text message as the archive name
	StateAwaitingName
)

// String returns the state name used in logs
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingName:
		return "awaiting_name"
	default:
		return "unknown"
	}
}

// StagedFile references an uploaded blob
type StagedFile struct {
	Path        string
	DisplayName string
	Size        int64
	StagedAt    time.Time
}

// Session is one user's pending collection of files
type Session struct {
	Owner        Owner
	Files        []StagedFile
	NameOverride string
	HasName      bool
	State        State
	CreatedAt    time.Time
}

// clone returns a copy that shares no memory with s
func (s *Session) clone() Session {
	out := *s
	out.Files = make([]StagedFile, len(s.Files))
	copy(out.Files, s.Files)
	return out
}
