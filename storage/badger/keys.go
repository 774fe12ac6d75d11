package badger

// Key layout:
//
//	chunk:<chunkID>                    chunk record (JSON, no embedding)
//	vec:<chunkID>                      embedding (little-endian float32)
//	chkpol:<policyID>\x00<chunkID>     policy secondary index, empty value
//	meta:dims                          index dimensionality
//	policy:<policyID>                  policy document (JSON)
const (
	chunkPrefix       = "chunk:"
	vectorPrefix      = "vec:"
	chunkPolicyPrefix = "chkpol:"
	policyPrefix      = "policy:"
	dimensionsKey     = "meta:dims"
)

func makeChunkKey(id string) []byte {
	return []byte(chunkPrefix + id)
}

func makeVectorKey(id string) []byte {
	return []byte(vectorPrefix + id)
}

// makeChunkPolicyKey builds the secondary index key. The NUL separator keeps
// policy "P1" from matching the prefix scan of policy "P10".
func makeChunkPolicyKey(policyID, chunkID string) []byte {
	return []byte(chunkPolicyPrefix + policyID + "\x00" + chunkID)
}

func makePartialChunkPolicyKey(policyID string) []byte {
	return []byte(chunkPolicyPrefix + policyID + "\x00")
}

func makePolicyKey(id string) []byte {
	return []byte(policyPrefix + id)
}
