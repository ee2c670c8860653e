package chunking

import (
	"fmt"
	"math"
)

// Allowed lists the chunk lengths (seconds) a run may use.
var Allowed = []int{3, 5, 7, 10, 12, 15}

const DefaultSeconds = 5

// Window is a requested slice of the source audio. The last window of a plan
// may extend past the end of the stream; the extractor truncates it there.
type Window struct {
	Start  int
	Length int
}

func (w Window) End() int { return w.Start + w.Length }

// Plan lays out consecutive, non-overlapping windows of chunkSec seconds over
// [0, floor(duration)). It returns nil for a non-positive chunk length or a
// stream shorter than one second.
func Plan(duration float64, chunkSec int) []Window {
	if chunkSec <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) || duration <= 0 {
		return nil
	}
	limit := int(duration)
	out := make([]Window, 0, (limit+chunkSec-1)/chunkSec)
	for start := 0; start < limit; start += chunkSec {
		out = append(out, Window{Start: start, Length: chunkSec})
	}
	return out
}

// Covered returns the seconds of audio a window actually spans for a stream of
// the given duration: chunkSec for every window but a truncated tail.
func Covered(w Window, duration float64) float64 {
	end := math.Min(float64(w.End()), duration)
	if end <= float64(w.Start) {
		return 0
	}
	return end - float64(w.Start)
}

func IsAllowed(sec int) bool {
	for _, a := range Allowed {
		if a == sec {
			return true
		}
	}
	return false
}

// ValidateSeconds reports an error for chunk lengths outside Allowed.
func ValidateSeconds(sec int) error {
	if !IsAllowed(sec) {
		return fmt.Errorf("chunk size must be one of 3, 5, 7, 10, 12, 15 (got %d)", sec)
	}
	return nil
}
