package report

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/forPelevin/accentscan/internal/types"
)

// Filename is the fixed name of the exported results file.
const Filename = "accent_analysis_results.csv"

var Header = []string{"Time Interval", "Predicted Accent", "Confidence"}

// FormatConfidence renders a percentage with two decimals and a trailing "%".
func FormatConfidence(pct float64) string {
	return strconv.FormatFloat(pct, 'f', 2, 64) + "%"
}

func Row(c types.Classification) []string {
	return []string{c.CSVInterval(), c.Label, FormatConfidence(c.Confidence)}
}

// WriteCSV writes the header and one row per classification, in order, with
// CRLF record terminators.
func WriteCSV(w io.Writer, rows []types.Classification) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(Row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func Render(rows []types.Classification) ([]byte, error) {
	var b bytes.Buffer
	if err := WriteCSV(&b, rows); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
