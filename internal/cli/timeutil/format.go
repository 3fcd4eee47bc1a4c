// Package timeutil provides time formatting utilities for CLI output.
package timeutil

import (
	"fmt"
	"time"
)

// FormatTrackDuration renders a track length in seconds as "m:ss" or
// "h:mm:ss". Negative lengths, the unknown-duration sentinel included,
// render as "-".
func FormatTrackDuration(seconds int64) string {
	if seconds < 0 {
		return "-"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// FormatPlaytime converts a PCM byte count to the audio duration it holds
// at bytesPerSecond, rounded to whole seconds.
func FormatPlaytime(bytes, bytesPerSecond int64) string {
	if bytes < 0 || bytesPerSecond <= 0 {
		return "-"
	}
	d := time.Duration(bytes) * time.Second / time.Duration(bytesPerSecond)
	return FormatTrackDuration(int64(d.Round(time.Second) / time.Second))
}
