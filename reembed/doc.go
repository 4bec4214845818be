// Package reembed rebuilds the persisted embedding caches of catalog kinds,
// typically after the embedding model changed or a catalog file was edited.
//
// Each kind is rebuilt as one task on a bounded worker pool and progress is
// reported in catalog rows.
package reembed
