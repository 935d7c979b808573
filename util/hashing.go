package util

import "hash/fnv"

// HashId hashes an opaque vertex id. Ids are treated as raw bytes; no
// canonical string form is assumed beyond equality.
func HashId(vertexId string) uint64 {
	algorithm := fnv.New64a()
	algorithm.Write([]byte(vertexId))
	return algorithm.Sum64()
}

// AssignedWorker maps a vertex id to the logical worker owning it.
func AssignedWorker(vertexId string, numWorkers uint8) uint32 {
	return uint32(HashId(vertexId) % uint64(numWorkers))
}
