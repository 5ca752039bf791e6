package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// parseProgress consumes ffmpeg's -progress pipe:1 key=value stream and turns
// out_time updates into fractional percentages of the segment duration.
func parseProgress(r io.Reader, durationSeconds float64, fn func(ProgressUpdate)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		update, ok := parseProgressLine(scanner.Text(), durationSeconds)
		if !ok {
			continue
		}
		if fn != nil {
			fn(update)
		}
	}
	return scanner.Err()
}

func parseProgressLine(line string, durationSeconds float64) (ProgressUpdate, bool) {
	line = strings.TrimSpace(line)
	key, value, found := strings.Cut(line, "=")
	if !found {
		return ProgressUpdate{}, false
	}
	value = strings.TrimSpace(value)

	var outSeconds float64
	switch key {
	case "out_time_us", "out_time_ms":
		// ffmpeg historically reported microseconds under both keys.
		micros, err := strconv.ParseInt(value, 10, 64)
		if err != nil || micros < 0 {
			return ProgressUpdate{}, false
		}
		outSeconds = float64(micros) / 1e6
	case "out_time":
		seconds, ok := parseClock(value)
		if !ok {
			return ProgressUpdate{}, false
		}
		outSeconds = seconds
	case "progress":
		if value == "end" {
			return ProgressUpdate{Percent: 100, OutTimeSeconds: durationSeconds}, true
		}
		return ProgressUpdate{}, false
	default:
		return ProgressUpdate{}, false
	}

	percent := 0.0
	if durationSeconds > 0 {
		percent = outSeconds / durationSeconds * 100
	}
	if percent > 100 {
		percent = 100
	}
	if percent < 0 {
		percent = 0
	}
	return ProgressUpdate{Percent: percent, OutTimeSeconds: outSeconds}, true
}

// parseClock parses HH:MM:SS.micros timestamps.
func parseClock(value string) (float64, bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err1 := strconv.ParseFloat(parts[0], 64)
	minutes, err2 := strconv.ParseFloat(parts[1], 64)
	seconds, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return hours*3600 + minutes*60 + seconds, true
}
