package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/harun/zipbot/internal/observability"
	"github.com/harun/zipbot/pkg/blobstore"
	"github.com/harun/zipbot/pkg/session"
	"github.com/rs/zerolog"
)

const (
	// DefaultBaseName is used when the session has no name override
	DefaultBaseName = "files"
	// Extension is appended to every archive name
	Extension = ".zip"
)

// Deliverer sends a finished archive upstream
type Deliverer interface {
	DeliverArchive(ctx context.Context, name string, r io.Reader) error
}

// DelivererFunc adapts a function to the Deliverer interface
type DelivererFunc func(ctx context.Context, name string, r io.Reader) error

// DeliverArchive calls f
func (f DelivererFunc) DeliverArchive(ctx context.Context, name string, r io.Reader) error {
	return f(ctx, name, r)
}

// Result describes a delivered archive
type Result struct {
	Name     string
	Entries  []string
	Size     int64
	Warnings []error
}

// Assembler packages a session's staged files into one zip archive
type Assembler struct {
	store  blobstore.Store
	logger zerolog.Logger
	method uint16
}

// Option configures an Assembler
type Option func(*Assembler)

// WithStoreOnly writes entries without compression
func WithStoreOnly() Option {
	return func(a *Assembler) {
		a.method = zip.Store
	}
}

// NewAssembler creates an assembler reading from store
func NewAssembler(store blobstore.Store, logger zerolog.Logger, opts ...Option) *Assembler {
	a := &Assembler{
		store:  store,
		logger: logger.With().Str("module", "assembler").Logger(),
		method: zip.Deflate,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ArchiveName returns the file name the archive for sess is delivered under
func ArchiveName(sess session.Session) string {
	base := DefaultBaseName
	if sess.HasName {
		base = sess.NameOverride
	}
	return base + Extension
}

// EntryName flattens a display name to the archive root
func EntryName(displayName string) string {
	return blobstore.SafeBase(path.Clean(strings.ReplaceAll(displayName, "\\", "/")))
}

// Assemble builds the archive for sess, hands it to d, and then deletes every
// staged blob and the archive blob whatever the outcome.
func (a *Assembler) Assemble(ctx context.Context, sess session.Session, d Deliverer) (*Result, error) {
	logger := observability.LoggerFromContext(ctx, a.logger).With().
		Int64("owner", int64(sess.Owner)).
		Logger()
	start := time.Now()

	name := ArchiveName(sess)
	archivePath := blobstore.NewArchivePath(Extension)

	result, err := a.buildAndDeliver(ctx, sess, name, archivePath, d)

	// Cleanup runs detached from ctx so a cancelled request still releases storage
	warnings := a.cleanup(context.WithoutCancel(ctx), sess, archivePath, logger)
	observability.RecordCleanupWarnings(len(warnings))

	if err != nil {
		observability.RecordAssembly(time.Since(start), 0, false)
		var ae *AssemblyError
		if errors.As(err, &ae) {
			ae.Warnings = warnings
		}
		logger.Error().
			Err(err).
			Str("archive", name).
			Int("files", len(sess.Files)).
			Msg("Archive assembly failed")
		return nil, err
	}

	result.Warnings = warnings
	observability.RecordAssembly(time.Since(start), len(result.Entries), true)

	logger.Info().
		Str("archive", name).
		Int("entries", len(result.Entries)).
		Int64("size", result.Size).
		Int("warnings", len(warnings)).
		Dur("duration", time.Since(start)).
		Msg("Archive delivered")

	return result, nil
}

func (a *Assembler) buildAndDeliver(ctx context.Context, sess session.Session, name, archivePath string, d Deliverer) (*Result, error) {
	entries, size, err := a.build(ctx, sess, archivePath)
	if err != nil {
		return nil, err
	}

	r, err := a.store.Open(ctx, archivePath)
	if err != nil {
		return nil, &AssemblyError{Op: "open", Path: archivePath, Err: err}
	}
	defer r.Close()

	if err := d.DeliverArchive(ctx, name, r); err != nil {
		return nil, &AssemblyError{Op: "deliver", Err: err}
	}

	return &Result{
		Name:    name,
		Entries: entries,
		Size:    size,
	}, nil
}

// build streams the zip into a new archive blob
func (a *Assembler) build(ctx context.Context, sess session.Session, archivePath string) ([]string, int64, error) {
	pr, pw := io.Pipe()
	entries := make([]string, 0, len(sess.Files))

	go func() {
		zw := zip.NewWriter(pw)
		for _, f := range sess.Files {
			entry := EntryName(f.DisplayName)
			if err := a.writeEntry(ctx, zw, f, entry); err != nil {
				pw.CloseWithError(err)
				return
			}
			entries = append(entries, entry)
		}
		if err := zw.Close(); err != nil {
			pw.CloseWithError(&AssemblyError{Op: "finalize", Err: err})
			return
		}
		pw.Close()
	}()

	size, err := a.store.Stage(ctx, archivePath, pr)
	// Unblock the writer if Stage gave up early
	pr.CloseWithError(io.ErrClosedPipe)
	if err != nil {
		var ae *AssemblyError
		if errors.As(err, &ae) {
			return nil, 0, ae
		}
		return nil, 0, &AssemblyError{Op: "write", Path: archivePath, Err: err}
	}

	return entries, size, nil
}

func (a *Assembler) writeEntry(ctx context.Context, zw *zip.Writer, f session.StagedFile, entry string) error {
	r, err := a.store.Open(ctx, f.Path)
	if err != nil {
		return &AssemblyError{Op: "read", Path: f.Path, Err: err}
	}
	defer r.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entry,
		Method:   a.method,
		Modified: f.StagedAt,
	})
	if err != nil {
		return &AssemblyError{Op: "write", Path: f.Path, Err: err}
	}

	if _, err := io.Copy(w, r); err != nil {
		return &AssemblyError{Op: "copy", Path: f.Path, Err: err}
	}

	return nil
}

// cleanup deletes every staged blob and the archive blob, collecting failures
func (a *Assembler) cleanup(ctx context.Context, sess session.Session, archivePath string, logger zerolog.Logger) []error {
	var warnings []error

	paths := make([]string, 0, len(sess.Files)+1)
	for _, f := range sess.Files {
		paths = append(paths, f.Path)
	}
	paths = append(paths, archivePath)

	for _, p := range paths {
		if err := a.store.Delete(ctx, p); err != nil {
			warnings = append(warnings, &CleanupWarning{Path: p, Err: err})
			logger.Warn().Err(err).Str("path", p).Msg("Failed to delete blob after assembly")
		}
	}

	return warnings
}

// String renders a short summary for logs and replies
func (r *Result) String() string {
	return fmt.Sprintf("%s (%d entries, %d bytes)", r.Name, len(r.Entries), r.Size)
}
