package signing

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CanonicalBytes serializes a payload to its canonical byte form.
//
// The rule is frozen permanently; changing it would invalidate every
// previously issued signature:
//
//  1. Marshal the payload with encoding/json.
//  2. Decode the result into generic values with json.Decoder.UseNumber,
//     so numeric literals survive byte-exact.
//  3. Marshal again. encoding/json emits object keys in lexicographic
//     order at every nesting level and no insignificant whitespace.
//
// Step 2+3 strip any key-order or whitespace variance the input carried,
// so logically equal payloads always canonicalize to identical bytes.
func CanonicalBytes(payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return canonicalizeRaw(raw)
}

func canonicalizeRaw(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	out, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-marshal payload: %w", err)
	}
	return out, nil
}
