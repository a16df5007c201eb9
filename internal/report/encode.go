package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/muhadif/culverin/internal/models"
)

// Encode re-encodes a result stream into the named format.
func Encode(w io.Writer, results []models.Outcome, to string) error {
	switch to {
	case "json":
		return EncodeJSON(w, results)
	case "csv":
		return EncodeCSV(w, results)
	default:
		return fmt.Errorf("unsupported encoding format %q", to)
	}
}

// EncodeJSON writes the results as one indented JSON array.
func EncodeJSON(w io.Writer, results []models.Outcome) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

// EncodeCSV writes one row per outcome.
func EncodeCSV(w io.Writer, results []models.Outcome) error {
	cw := csv.NewWriter(w)

	header := []string{
		"timestamp",
		"latency",
		"status_code",
		"error",
		"method",
		"url",
		"bytes_in",
		"bytes_out",
		"timed_out",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i := range results {
		o := &results[i]
		row := []string{
			o.Timestamp.Format(time.RFC3339Nano),
			FormatDuration(o.Latency),
			strconv.Itoa(o.StatusCode),
			o.Error,
			o.Target.Method,
			o.Target.URL,
			strconv.FormatInt(o.BytesIn, 10),
			strconv.FormatInt(o.BytesOut, 10),
			strconv.FormatBool(o.TimedOut),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
