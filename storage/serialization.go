package storage

import (
	"fmt"

	"github.com/poiesic/coverwise/core"
)

// MarshalChunk serializes a chunk without its embedding. Embeddings are
// stored separately with MarshalVector.
func MarshalChunk(chunk *core.DocumentChunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a chunk written by MarshalChunk.
func UnmarshalChunk(data []byte) (*core.DocumentChunk, error) {
	chunk, _, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk: %w", ErrSerializationFailed, err)
	}
	return &chunk, nil
}

// MarshalVector serializes an embedding.
func MarshalVector(v []float32) []byte {
	buf := make([]byte, core.VectorMUS.Size(v))
	core.VectorMUS.Marshal(v, buf)
	return buf
}

// UnmarshalVector deserializes a vector written by MarshalVector.
func UnmarshalVector(data []byte) ([]float32, error) {
	v, _, err := core.VectorMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: vector: %w", ErrSerializationFailed, err)
	}
	return v, nil
}

// MarshalPolicy serializes a policy document.
func MarshalPolicy(doc *core.PolicyDocument) []byte {
	buf := make([]byte, core.PolicyMUS.Size(*doc))
	core.PolicyMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalPolicy deserializes a policy document written by MarshalPolicy.
func UnmarshalPolicy(data []byte) (*core.PolicyDocument, error) {
	doc, _, err := core.PolicyMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: policy: %w", ErrSerializationFailed, err)
	}
	return &doc, nil
}

// MarshalDimensions encodes an index dimensionality.
func MarshalDimensions(dims int) []byte {
	buf := make([]byte, core.DimsMUS.Size(dims))
	core.DimsMUS.Marshal(dims, buf)
	return buf
}

// UnmarshalDimensions decodes a value written by MarshalDimensions.
func UnmarshalDimensions(data []byte) (int, error) {
	dims, n, err := core.DimsMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: dimensions: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return 0, fmt.Errorf("%w: dimensions of %d bytes", ErrTruncatedData, len(data))
	}
	return dims, nil
}
