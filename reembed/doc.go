// Package reembed re-embeds stored policy chunks with a new embedding model.
//
// Chunks are read from a source storage.VectorIndex in batches, embedded with
// the new ai.Embedder, normalized to unit length and written to a target
// index. The target may be the source itself when the dimensionality does
// not change. Batches run concurrently, each embedding request is retried
// with exponential backoff and progress is reported to an io.Writer.
package reembed
