package downloader

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Separator splits a content id into its kind and reference:
// "file$/music/a.flac", "http$https://host/a.mp3", "s3$bucket/key.ogg".
const Separator = "$"

var (
	kindPattern    = regexp.MustCompile(`^[a-z][a-z0-9]*$`)
	safeRefPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,96}$`)
)

// ParseContentID splits id into kind and reference.
func ParseContentID(id string) (kind, ref string, err error) {
	kind, ref, ok := strings.Cut(id, Separator)
	if !ok || !kindPattern.MatchString(kind) || ref == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidContentID, id)
	}
	return kind, ref, nil
}

// CacheDirName maps id to a single path element. Short references made of
// safe characters are kept readable; everything else is hashed.
func CacheDirName(id string) (string, error) {
	kind, ref, err := ParseContentID(id)
	if err != nil {
		return "", err
	}
	if safeRefPattern.MatchString(ref) && ref != "." && ref != ".." {
		return kind + "_" + ref, nil
	}
	sum := sha256.Sum256([]byte(ref))
	return kind + "_" + hex.EncodeToString(sum[:16]), nil
}
