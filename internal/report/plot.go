package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/muhadif/culverin/internal/models"
)

const plotPage = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>%[1]s</title>
    <script src="https://cdn.plot.ly/plotly-latest.min.js"></script>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .plot { width: 100%%; height: 500px; }
        h1 { color: #333; }
    </style>
</head>
<body>
    <h1>%[1]s</h1>

    <div id="latency-plot" class="plot"></div>
    <div id="status-plot" class="plot"></div>

    <script>
        var timestamps = %[2]s;

        Plotly.newPlot('latency-plot', [{
            x: timestamps,
            y: %[3]s,
            type: 'scatter',
            mode: 'lines',
            name: 'Latency (ms)'
        }], {
            title: 'Request Latencies',
            xaxis: { title: 'Time (s)' },
            yaxis: { title: 'Latency (ms)' }
        });

        Plotly.newPlot('status-plot', [{
            x: timestamps,
            y: %[4]s,
            type: 'scatter',
            mode: 'markers',
            marker: { size: 5 },
            name: 'Status Codes'
        }], {
            title: 'Response Status Codes',
            xaxis: { title: 'Time (s)' },
            yaxis: { title: 'Status Code' }
        });
    </script>
</body>
</html>`

// Plot writes a self-contained HTML page with latency and status scatter
// plots. Series longer than threshold are downsampled by stride.
func Plot(w io.Writer, results []models.Outcome, threshold int, title string) error {
	sorted := make([]models.Outcome, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	if threshold > 0 && len(sorted) > threshold {
		stride := len(sorted) / threshold
		kept := sorted[:0]
		for i := range sorted {
			if i%stride == 0 {
				kept = append(kept, sorted[i])
			}
		}
		sorted = kept
	}

	timestamps := make([]float64, len(sorted))
	latencies := make([]float64, len(sorted))
	statuses := make([]int, len(sorted))
	for i := range sorted {
		timestamps[i] = float64(sorted[i].Timestamp.UnixMilli()) / 1000
		latencies[i] = sorted[i].Latency.Seconds() * 1000
		statuses[i] = sorted[i].StatusCode
	}

	ts, err := json.Marshal(timestamps)
	if err != nil {
		return err
	}
	lats, err := json.Marshal(latencies)
	if err != nil {
		return err
	}
	codes, err := json.Marshal(statuses)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, plotPage, title, ts, lats, codes)
	return err
}
