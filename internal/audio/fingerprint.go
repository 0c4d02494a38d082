package audio

import (
	"fmt"
	"hash/fnv"
)

// fingerprintPrefix caps how much payload feeds the hash. Clips from the
// same utterance share their opening bytes, so hashing more buys nothing.
const fingerprintPrefix = 4096

// Fingerprint identifies an audio payload for duplicate suppression. It is
// a cheap content heuristic, not a cryptographic digest: FNV-1a over the
// leading bytes plus the total length. Two clips that collide merely share
// a suppression slot for the dedup window.
func Fingerprint(payload []byte) string {
	h := fnv.New64a()
	if len(payload) > fingerprintPrefix {
		h.Write(payload[:fingerprintPrefix])
	} else {
		h.Write(payload)
	}
	return fmt.Sprintf("%016x-%d", h.Sum64(), len(payload))
}
