// Package session keeps the in-memory state of each user's file collection.
//
// Invariants:
// - A Session exists only between an explicit Create and Remove.
// - Operations on an absent Session fail with ErrSessionNotFound and never create one.
// - Files keep their arrival order.
// - Mutations for the same owner are serialized; different owners never contend.
//
// Usage:
//
//	store := session.NewStore()
//	store.Create(42)
//	_, _ = store.AppendFile(42, session.StagedFile{Path: p, DisplayName: "a.txt"})
//	sess, _ := store.Get(42)
//	_ = sess
//	store.Remove(42)
package session
