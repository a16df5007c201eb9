package report

import (
	"fmt"
	"time"
)

// FormatDuration renders a duration with a unit suited to its magnitude.
func FormatDuration(d time.Duration) string {
	micros := d.Microseconds()
	if micros < 1_000 {
		return fmt.Sprintf("%dµs", micros)
	}
	if d.Milliseconds() < 1_000 {
		return fmt.Sprintf("%.2fms", d.Seconds()*1000)
	}
	secs := d.Seconds()
	if secs < 60 {
		return fmt.Sprintf("%.2fs", secs)
	}
	minutes := int64(secs / 60)
	return fmt.Sprintf("%dm%.2fs", minutes, secs-float64(minutes)*60)
}

// FormatSize renders a byte count with binary units.
func FormatSize(size int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case size < kb:
		return fmt.Sprintf("%dB", size)
	case size < mb:
		return fmt.Sprintf("%.2fKB", float64(size)/kb)
	case size < gb:
		return fmt.Sprintf("%.2fMB", float64(size)/mb)
	default:
		return fmt.Sprintf("%.2fGB", float64(size)/gb)
	}
}
