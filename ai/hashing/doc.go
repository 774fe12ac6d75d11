// Package hashing provides an offline ai.AIProvider.
//
// The embedder maps text to a fixed-length vector with the signed hashing
// trick: each lowercase alphanumeric token (and each adjacent token pair) is
// hashed to a dimension and a sign, weighted by 1+ln(tf), and the result is
// L2 normalized. Texts sharing vocabulary get positive cosine similarity, so
// semantic search works without a model server.
//
// The provider has no text generator; Generate always returns
// ai.ErrGenerationUnavailable and callers fall back to keyword logic.
package hashing
