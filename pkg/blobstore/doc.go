// Package blobstore provides the transient staging area for uploaded files
// and assembled archives.
//
// Invariants:
// - Blobs are write-once: Stage never overwrites an existing path.
// - Delete is idempotent; deleting a missing blob is not an error.
// - Generated staging paths are unique across the whole store.
//
// Usage:
//
//	store := blobstore.NewFSStore(afero.NewMemMapFs(), logger)
//	p := blobstore.NewStagingPath(42, "report.pdf")
//	_, _ = store.Stage(ctx, p, body)
//	r, _ := store.Open(ctx, p)
//	defer r.Close()
//	_ = store.Delete(ctx, p)
package blobstore
