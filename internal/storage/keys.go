package storage

import (
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key layout:
//
//	input/base-image/{identity}/{file}.jpg
//	input/mask-image/{identity}/{file}.jpg
//	output/{base-file}/payload.json
//	output/{base-file}/result.jpg
const (
	baseImagePrefix = "input/base-image"
	maskImagePrefix = "input/mask-image"
	outputPrefix    = "output"
)

const keyTimestampLayout = "20060102150405"

// BaseImageKey builds the storage key for a submitted base image.
func BaseImageKey(identity, fileID string, ts time.Time) string {
	return imageKey(baseImagePrefix, identity, fileID, ts)
}

// MaskImageKey builds the storage key for a submitted user-edited image.
func MaskImageKey(identity, fileID string, ts time.Time) string {
	return imageKey(maskImagePrefix, identity, fileID, ts)
}

func imageKey(prefix, identity, fileID string, ts time.Time) string {
	return fmt.Sprintf("%s/%s/%s%s.jpg", prefix, SanitizeIdentity(identity), fileID, ts.Format(keyTimestampLayout))
}

// ResultPrefix derives the output namespace from a base image key. All
// per-job artifacts (payload, result) live under it, so keys never collide
// across jobs.
func ResultPrefix(baseImageKey string) string {
	name := path.Base(baseImageKey)
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return outputPrefix + "/" + name
}

// PayloadKey is the locator for a job's inference request payload.
func PayloadKey(resultPrefix string) string {
	return resultPrefix + "/payload.json"
}

// SanitizeIdentity reduces a chat username to a safe key segment: diacritics
// are stripped, anything outside [A-Za-z0-9._-] is dropped. Falls back to
// "user" when nothing survives.
func SanitizeIdentity(identity string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, identity)
	if err != nil {
		ascii = identity
	}
	var b strings.Builder
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}
