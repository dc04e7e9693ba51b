// Package assignment implements the deterministic bucketing that splits
// live traffic between the incumbent (control) and replacement (test)
// configurations.
package assignment

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/rivalapexmediation/migration-engine/internal/domain"
)

// Assign buckets one request into an arm.
//
// The bucket is the first 8 bytes of SHA-256(seed + ":" + userIdentifier +
// ":" + placementID), read big-endian, reduced modulo 100. A request lands
// in the test arm iff its bucket is below mirrorPercent. The function is
// pure: identical inputs yield the identical arm forever for a given seed,
// and any number of goroutines may call it without synchronization.
//
// mirrorPercent <= 0 always yields control without hashing.
func Assign(seed, userIdentifier, placementID string, mirrorPercent int) domain.Arm {
	if mirrorPercent <= 0 {
		return domain.ArmControl
	}
	digest := sha256.Sum256([]byte(seed + ":" + userIdentifier + ":" + placementID))
	bucket := binary.BigEndian.Uint64(digest[:8]) % 100
	if bucket < uint64(mirrorPercent) {
		return domain.ArmTest
	}
	return domain.ArmControl
}

// Bucket exposes the raw bucket in [0,100) for the same inputs. Used by
// diagnostics to explain why a user landed in an arm.
func Bucket(seed, userIdentifier, placementID string) uint64 {
	digest := sha256.Sum256([]byte(seed + ":" + userIdentifier + ":" + placementID))
	return binary.BigEndian.Uint64(digest[:8]) % 100
}
