package val

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashing. Hashing different shapes under
// distinct domains keeps a state and a patch with identical bytes from
// colliding.
const (
	stateHashDomain = "statecell/state/v1"
	patchHashDomain = "statecell/patch/v1"
)

// hashWithDomain computes SHA-256 over domain || 0x00 || data.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StateHash returns the content hash of a committed state: SHA-256 over
// the domain-separated canonical JSON form, hex encoded.
func StateHash(v Value) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("state hash: %w", err)
	}
	return hashWithDomain(stateHashDomain, data), nil
}

// MustStateHash is StateHash for values known to serialize; panics on
// error.
func MustStateHash(v Value) string {
	h, err := StateHash(v)
	if err != nil {
		panic(fmt.Sprintf("val: %v", err))
	}
	return h
}

// PatchHash returns the content hash of a patch under its own domain.
func PatchHash(v Value) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("patch hash: %w", err)
	}
	return hashWithDomain(patchHashDomain, data), nil
}
