// Package reembed recomputes the vectors of every stored chunk with the
// current embedding model.
//
// Chunks are loaded in batches, embedded, normalized to unit length and
// written back. When the run completes the store's embedding profile is
// switched to the new model so later imports validate against it.
package reembed
