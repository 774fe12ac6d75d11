// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

// NewMemoryVectorIndex creates an in-memory vector index for testing.
// Closing the index closes its private backend.
func NewMemoryVectorIndex(dims int) (*VectorIndex, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	x, err := NewVectorIndex(backend, dims)
	if err != nil {
		backend.Close()
		return nil, err
	}
	x.ownsBackend = true
	return x, nil
}

// NewMemoryStores creates an in-memory vector index and policy repository
// sharing one backend. Caller must close the backend when done.
func NewMemoryStores(dims int) (*VectorIndex, *PolicyRepository, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, err
	}
	x, err := NewVectorIndex(backend, dims)
	if err != nil {
		backend.Close()
		return nil, nil, nil, err
	}
	return x, NewPolicyRepository(backend), backend, nil
}
