package types

import "fmt"

// ErrorLabel is the label reported for a chunk the classifier could not handle.
const ErrorLabel = "Error"

// AudioChunk is one waveform slice of the extracted audio track.
type AudioChunk struct {
	Start int // seconds from the beginning of the source
	Path  string
}

// Prediction mirrors the four collections returned by the pretrained classifier.
type Prediction struct {
	OutProb []float64 `json:"out_prob"`
	Score   []float64 `json:"score"`
	Index   []int     `json:"index"`
	Labels  []string  `json:"text_lab"`
}

type Classification struct {
	Start      int
	End        int
	Label      string
	Confidence float64 // percent, 0..100
}

// Interval is the display form, e.g. "10-15 sec".
func (c Classification) Interval() string {
	return fmt.Sprintf("%d-%d sec", c.Start, c.End)
}

// CSVInterval is the export form, e.g. "10-15s".
func (c Classification) CSVInterval() string {
	return fmt.Sprintf("%d-%ds", c.Start, c.End)
}

func (c Classification) Failed() bool {
	return c.Label == ErrorLabel && c.Confidence == 0
}
