// Package fingerprint computes change-detection keys for diagram scenes.
//
// The hash is FNV-1a 32-bit over the compact JSON of the element array. It
// keys caches only and is not an integrity check.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// Sum32 returns the fingerprint of elements. Order matters.
func Sum32(elements []json.RawMessage) uint32 {
	h := fnv.New32a()
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, raw := range elements {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := json.Compact(&buf, raw); err != nil {
			// Not valid JSON; hash the bytes as given.
			buf.Write(raw)
		}
	}
	buf.WriteByte(']')
	_, _ = h.Write(buf.Bytes())
	return h.Sum32()
}

// Of returns the fingerprint of elements as 8 lowercase hex digits.
func Of(elements []json.RawMessage) string {
	return fmt.Sprintf("%08x", Sum32(elements))
}
