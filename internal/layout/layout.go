// Package layout owns the object key conventions of the pipeline:
//
//	incoming/<fileName>  ->  processed/<fileName>.txt
//	                         processed/<fileName>.csv
//
// The original file extension stays part of the artifact key, so
// incoming/report.pdf yields processed/report.pdf.txt.
package layout

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

const (
	RawPrefix       = "incoming/"
	ProcessedPrefix = "processed/"

	TextExt = ".txt"
	CSVExt  = ".csv"
)

var (
	ErrNotRaw       = errors.New("key is not in the incoming namespace")
	ErrNotProcessed = errors.New("key is not in the processed namespace")
	ErrNoExtension  = errors.New("key has no extension")
)

// Pair names the two artifacts derived from one raw object.
type Pair struct {
	Base string // processed/<fileName>, without artifact extension
	Text string
	CSV  string
}

// RawKey returns the key a client upload of fileName is written to.
func RawKey(fileName string) string {
	return RawPrefix + fileName
}

// IsRaw reports whether key lives under incoming/.
func IsRaw(key string) bool {
	return strings.HasPrefix(key, RawPrefix)
}

// IsProcessed reports whether key lives under processed/.
func IsProcessed(key string) bool {
	return strings.HasPrefix(key, ProcessedPrefix)
}

// ArtifactKeys derives the artifact pair for a raw key.
func ArtifactKeys(rawKey string) (Pair, error) {
	if !IsRaw(rawKey) || rawKey == RawPrefix {
		return Pair{}, fmt.Errorf("%q: %w", rawKey, ErrNotRaw)
	}
	base := ProcessedPrefix + strings.TrimPrefix(rawKey, RawPrefix)
	return pairFor(base), nil
}

// SiblingKeys rebuilds the artifact pair from either artifact's key by
// stripping the final extension of the last path segment.
func SiblingKeys(artifactKey string) (Pair, error) {
	if !IsProcessed(artifactKey) {
		return Pair{}, fmt.Errorf("%q: %w", artifactKey, ErrNotProcessed)
	}
	ext := path.Ext(artifactKey)
	if ext == "" {
		return Pair{}, fmt.Errorf("%q: %w", artifactKey, ErrNoExtension)
	}
	base := strings.TrimSuffix(artifactKey, ext)
	if base == ProcessedPrefix {
		return Pair{}, fmt.Errorf("%q: %w", artifactKey, ErrNoExtension)
	}
	return pairFor(base), nil
}

// IsArtifact reports whether key is a .txt or .csv artifact under processed/.
func IsArtifact(key string) bool {
	if !IsProcessed(key) {
		return false
	}
	ext := path.Ext(key)
	return ext == TextExt || ext == CSVExt
}

func pairFor(base string) Pair {
	return Pair{Base: base, Text: base + TextExt, CSV: base + CSVExt}
}
