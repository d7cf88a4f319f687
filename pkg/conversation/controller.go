package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/harun/zipbot/internal/observability"
	"github.com/harun/zipbot/pkg/archive"
	"github.com/harun/zipbot/pkg/blobstore"
	"github.com/harun/zipbot/pkg/session"
	"github.com/rs/zerolog"
)

// User-facing replies
const (
	ReplySessionStarted = "Session started. You can now send documents, videos, or images. Use the options below:"
	ReplyStartFirst     = "Please start a session with /start first."
	ReplyAskName        = "Please provide a name for the ZIP file."
	ReplyNameSet        = "ZIP file name set to: %s"
	ReplyFileStored     = "Document received and stored! (%d files stored)"
	ReplyStagingFailed  = "Could not store %s. Please send it again."
	ReplyTooLarge       = "%s is too large. The limit is %d bytes."
	ReplyNoFiles        = "You have no files to zip. Please send some documents, videos, or images first."
	ReplyArchiveSent    = "ZIP file '%s' created and sent!"
	ReplyAssemblyFailed = "Could not create the ZIP file. Your session has been cleared, please /start again."
)

// ErrTooLarge is wrapped in a StagingError when an upload exceeds the size limit
var ErrTooLarge = errors.New("upload exceeds size limit")

// Controller handles the inbound events of every user's conversation
type Controller struct {
	sessions      *session.Store
	blobs         blobstore.Store
	assembler     *archive.Assembler
	logger        zerolog.Logger
	maxUploadSize int64
}

// Option configures a Controller
type Option func(*Controller)

// WithMaxUploadSize rejects uploads larger than n bytes; n <= 0 disables the limit
func WithMaxUploadSize(n int64) Option {
	return func(c *Controller) {
		c.maxUploadSize = n
	}
}

// NewController wires the session store, blob store and assembler together
func NewController(sessions *session.Store, blobs blobstore.Store, assembler *archive.Assembler, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		sessions:  sessions,
		blobs:     blobs,
		assembler: assembler,
		logger:    logger.With().Str("component", "conversation").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) log(ctx context.Context, owner session.Owner) zerolog.Logger {
	return observability.LoggerFromContext(ctx, c.logger).With().Int64("owner", int64(owner)).Logger()
}

func record(event string, r Result) Result {
	outcome := r.Status.String()
	if r.Status == StatusError {
		outcome = r.Kind.String()
	}
	observability.RecordConversationEvent(event, outcome)
	return r
}

// Start opens a fresh session for owner, discarding any unfinished one
// together with its staged blobs.
func (c *Controller) Start(ctx context.Context, owner session.Owner) Result {
	logger := c.log(ctx, owner)

	discarded := c.sessions.Create(owner)
	for _, f := range discarded {
		if err := c.blobs.Delete(context.WithoutCancel(ctx), f.Path); err != nil {
			logger.Warn().Err(err).Str("path", f.Path).Msg("Failed to delete blob of discarded session")
		}
	}

	logger.Info().Int("discarded", len(discarded)).Msg("Session started")
	observability.RecordSessionAudit(ctx, "session_started", int64(owner), "success", map[string]interface{}{
		"discarded_files": len(discarded),
	})

	return record("start", ok(ReplySessionStarted))
}

// RequestNaming makes the next text message the archive name
func (c *Controller) RequestNaming(ctx context.Context, owner session.Owner) Result {
	if err := c.sessions.SetState(owner, session.StateAwaitingName); err != nil {
		return record("set_name", fail(KindSessionNotFound, ReplyStartFirst, err))
	}

	reqLog := c.log(ctx, owner)
	reqLog.Debug().Msg("Awaiting archive name")
	return record("set_name", ok(ReplyAskName))
}

// Text handles a plain text message. It only matters while the session is
// awaiting a name; otherwise the result is StatusIgnored.
func (c *Controller) Text(ctx context.Context, owner session.Owner, text string) Result {
	applied, err := c.sessions.CompleteNaming(owner, text)
	if err != nil || !applied {
		return record("text", ignored())
	}

	reqLog := c.log(ctx, owner)
	reqLog.Info().Str("name", text).Msg("Archive name set")
	return record("receive_name", ok(fmt.Sprintf(ReplyNameSet, text)))
}

// Upload stages r as filename in owner's session
func (c *Controller) Upload(ctx context.Context, owner session.Owner, filename string, r io.Reader) Result {
	logger := c.log(ctx, owner).With().Str("filename", filename).Logger()

	if _, err := c.sessions.Get(owner); err != nil {
		return record("upload", fail(KindSessionNotFound, ReplyStartFirst, err))
	}

	src := r
	if c.maxUploadSize > 0 {
		src = io.LimitReader(r, c.maxUploadSize+1)
	}

	path := blobstore.NewStagingPath(int64(owner), filename)
	size, err := c.blobs.Stage(ctx, path, src)
	if err != nil {
		observability.RecordUpload(0, false)
		logger.Error().Err(err).Msg("Failed to stage upload")
		return record("upload", fail(KindStagingError,
			fmt.Sprintf(ReplyStagingFailed, filename),
			&StagingError{Filename: filename, Err: err}))
	}

	if c.maxUploadSize > 0 && size > c.maxUploadSize {
		c.discard(ctx, path, logger)
		observability.RecordUpload(0, false)
		logger.Warn().Int64("limit", c.maxUploadSize).Msg("Upload rejected, too large")
		return record("upload", fail(KindStagingError,
			fmt.Sprintf(ReplyTooLarge, filename, c.maxUploadSize),
			&StagingError{Filename: filename, Err: ErrTooLarge}))
	}

	count, err := c.sessions.AppendFile(owner, session.StagedFile{
		Path:        path,
		DisplayName: filename,
		Size:        size,
	})
	if err != nil {
		// Session ended while the bytes were in flight
		c.discard(ctx, path, logger)
		observability.RecordUpload(0, false)
		return record("upload", fail(KindSessionNotFound, ReplyStartFirst, err))
	}

	observability.RecordUpload(size, true)
	logger.Info().
		Int64("size", size).
		Int("files", count).
		Msg("Upload staged")

	res := ok(fmt.Sprintf(ReplyFileStored, count))
	res.FileCount = count
	return record("upload", res)
}

// Assemble builds and delivers owner's archive through d, then ends the
// session. An empty session is left untouched.
func (c *Controller) Assemble(ctx context.Context, owner session.Owner, d archive.Deliverer) Result {
	logger := c.log(ctx, owner)

	sess, err := c.sessions.Get(owner)
	if err != nil {
		return record("assemble", fail(KindSessionNotFound, ReplyStartFirst, err))
	}
	if len(sess.Files) == 0 {
		return record("assemble", fail(KindEmptySession, ReplyNoFiles, ErrEmptySession))
	}

	result, err := c.assembler.Assemble(ctx, sess, d)
	c.sessions.Remove(owner)

	if err != nil {
		observability.RecordSessionAudit(ctx, "archive_failed", int64(owner), "failure", map[string]interface{}{
			"files": len(sess.Files),
			"error": err.Error(),
		})
		return record("assemble", fail(KindAssemblyError, ReplyAssemblyFailed, err))
	}

	for _, w := range result.Warnings {
		logger.Warn().Err(w).Msg("Cleanup warning")
	}
	observability.RecordSessionAudit(ctx, "archive_delivered", int64(owner), "success", map[string]interface{}{
		"archive":  result.Name,
		"entries":  len(result.Entries),
		"size":     result.Size,
		"warnings": len(result.Warnings),
	})

	res := ok(fmt.Sprintf(ReplyArchiveSent, result.Name))
	res.Archive = result
	return record("assemble", res)
}

// discard deletes a blob that will never join a session
func (c *Controller) discard(ctx context.Context, path string, logger zerolog.Logger) {
	if err := c.blobs.Delete(context.WithoutCancel(ctx), path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to delete dropped upload")
	}
}
