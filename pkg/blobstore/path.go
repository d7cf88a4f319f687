package blobstore

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// StagingDir holds uploaded files until their session is assembled
	StagingDir = "/staging"
	// ArchiveDir holds finished archives until they are delivered
	ArchiveDir = "/archives"

	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffixLength   = 12
)

// NewStagingPath returns a collision-free path for an upload by owner.
// The original filename is kept as the readable tail of the path.
func NewStagingPath(owner int64, filename string) string {
	suffix, err := gonanoid.Generate(suffixAlphabet, suffixLength)
	if err != nil {
		// Only fails on invalid alphabet or length
		panic(fmt.Sprintf("blobstore: nanoid generation failed: %v", err))
	}

	return filepath.Join(StagingDir, fmt.Sprintf("%d", owner), suffix+"-"+SafeBase(filename))
}

// NewArchivePath returns a unique path for an assembled archive
func NewArchivePath(ext string) string {
	return filepath.Join(ArchiveDir, uuid.New().String()+ext)
}

// SafeBase reduces a client supplied filename to its base name with
// separators and NUL bytes stripped.
func SafeBase(filename string) string {
	name := strings.ReplaceAll(filename, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.ReplaceAll(name, "\x00", "")
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
