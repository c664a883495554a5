package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const hashLen = 10

// contentHash derives a node run's identity from the node id, its declared
// inputs in canonical JSON form, its parents' hashes in order, and the loop
// iteration index. Identical lineage yields identical hashes across runs.
func contentHash(nodeID string, inputs map[string]any, parentHashes []string, iteration int) string {
	h := sha256.New()
	h.Write([]byte(nodeID))
	if len(inputs) > 0 {
		// json.Marshal sorts map keys, so this is canonical.
		b, err := json.Marshal(inputs)
		if err == nil {
			h.Write(b)
		}
	}
	for _, p := range parentHashes {
		h.Write([]byte(p))
	}
	fmt.Fprintf(h, "%d", iteration)
	return hex.EncodeToString(h.Sum(nil))[:hashLen]
}
