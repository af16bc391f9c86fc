// Package resource implements the on-disk resource storage engine: resource
// identifiers, the sharded directory layout, per-resource configuration and
// file counters, listing, eviction of old files, and share links.
package resource

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"golang.org/x/crypto/sha3"
)

// IDLength is the length of a resource ID (and of a share token).
const IDLength = 32

// seedAlphabet is the character set of the random seed fed into the digest.
// It omits 'l' and 'L'.
const seedAlphabet = "abcdefghijkmnopqrstuvwxyz0123456789ABCDEFGHIJKMNOPQRSTUVWXYZ"

var idPattern = regexp.MustCompile(`^[a-z0-9]{32}$`)

// NewID returns a new 32-character lowercase hex identifier. It digests the
// current time in milliseconds concatenated with 32 random alphabet characters.
// Uniqueness is not checked against existing resources.
func NewID() (string, error) {
	seed := make([]byte, IDLength)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("read random seed: %w", err)
	}
	for i := range seed {
		seed[i] = seedAlphabet[int(seed[i])%len(seedAlphabet)]
	}

	input := strconv.FormatInt(time.Now().UnixMilli(), 10) + string(seed)
	digest := make([]byte, IDLength/2)
	sha3.ShakeSum256(digest, []byte(input))
	return hex.EncodeToString(digest), nil
}

// WellFormed reports whether id has the shape of a generated identifier. It
// does not touch the filesystem.
func WellFormed(id string) bool {
	return idPattern.MatchString(id)
}
