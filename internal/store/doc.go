// Package store keeps explorer responses between runs.
//
// ExplorerCache sits in front of an explorer.Source. Entries are keyed by
// canonical position and filter fingerprint, held in sharded maps, and
// persisted as one zstd-compressed JSON snapshot written via temp file and
// rename.
package store
