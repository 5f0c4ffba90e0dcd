// Package idgen generates short cycle identifiers backed by nanoid. They tie
// together the log lines, status snapshots and bus events of one cycle.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// CyclePrefix is prepended to every cycle ID.
const CyclePrefix = "cy-"

// alphabet avoids look-alike characters; IDs are read off a status screen.
const alphabet = "23456789abcdefghjkmnpqrstuvwxyz"

// length is the number of random characters (excluding the prefix).
const length = 10

// NewCycleID returns a fresh cycle identifier.
func NewCycleID() (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return CyclePrefix + id, nil
}
