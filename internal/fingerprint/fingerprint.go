package fingerprint

import (
	"fmt"
	"strconv"
	"strings"
)

// Snapshot is a fixed-shape capture of client environment signals. How the
// signals are collected is the provider's concern; the hashing below only
// depends on the snapshot values.
type Snapshot struct {
	UserAgent      string
	Language       string
	ColorDepth     int
	ScreenWidth    int
	ScreenHeight   int
	TimezoneOffset int // minutes
	HasPlugins     bool
	DoNotTrack     string // type of the DNT signal, e.g. "string" or "undefined"
}

// Provider supplies the current environment snapshot.
type Provider interface {
	Snapshot() Snapshot
}

// StaticProvider returns a fixed snapshot; useful for tests and for callers
// that capture signals out of band.
type StaticProvider struct {
	S Snapshot
}

func (p StaticProvider) Snapshot() Snapshot {
	return p.S
}

// Generate derives a best-effort device identifier from a snapshot. Same
// snapshot always yields the same string; different snapshots very likely
// differ. This is a convenience heuristic for "have we seen this device
// before", not a security boundary, and collisions across similar devices
// are acceptable.
func Generate(s Snapshot) string {
	parts := []string{
		s.UserAgent,
		s.Language,
		strconv.Itoa(s.ColorDepth),
		fmt.Sprintf("%dx%d", s.ScreenWidth, s.ScreenHeight),
		strconv.Itoa(s.TimezoneOffset),
		strconv.FormatBool(s.HasPlugins),
		s.DoNotTrack,
	}
	joined := strings.Join(parts, "|")

	// Rolling multiplicative hash with 32-bit wraparound
	var h int32
	for _, r := range joined {
		h = h*31 + int32(r)
	}
	if h < 0 {
		h = -h
	}

	return strconv.FormatInt(int64(h), 36)
}

// FromProvider is shorthand for Generate(p.Snapshot()).
func FromProvider(p Provider) string {
	return Generate(p.Snapshot())
}
