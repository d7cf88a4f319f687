package conversation

import (
	"github.com/harun/zipbot/pkg/archive"
)

// Status is the outcome class of one inbound event
type Status int

const (
	// StatusOK means the event was handled and Reply should be sent
	StatusOK Status = iota
	// StatusError means the event failed; Kind says why and Reply explains it to the user
	StatusError
	// StatusIgnored means the event is not for this controller
	StatusIgnored
)

// String returns the status name used in logs and metrics
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a failed event
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindSessionNotFound
	KindEmptySession
	KindStagingError
	KindAssemblyError
)

// String returns the kind name used in logs and metrics
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindSessionNotFound:
		return "session_not_found"
	case KindEmptySession:
		return "empty_session"
	case KindStagingError:
		return "staging_error"
	case KindAssemblyError:
		return "assembly_error"
	default:
		return "unknown"
	}
}

// Result is what the transport needs to answer an event
type Result struct {
	Status Status
	Kind   ErrorKind
	Reply  string
	Err    error

	// FileCount is the session's file count after a successful upload
	FileCount int
	// Archive is set after a successful assembly
	Archive *archive.Result
}

func ok(reply string) Result {
	return Result{Status: StatusOK, Reply: reply}
}

func fail(kind ErrorKind, reply string, err error) Result {
	return Result{Status: StatusError, Kind: kind, Reply: reply, Err: err}
}

func ignored() Result {
	return Result{Status: StatusIgnored}
}
