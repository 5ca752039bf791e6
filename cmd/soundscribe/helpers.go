package main

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"soundscribe/internal/pipeline"
)

var titleCaser = cases.Title(language.English)

func titleCase(value string) string {
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}

func formatPercent(value float64) string {
	return strconv.FormatFloat(value, 'f', 1, 64) + "%"
}

func formatStatus(status pipeline.FileStatus) string {
	label := titleCase(string(status.Status))
	if status.Status == pipeline.StatusError && status.FailedPhase != "" {
		return fmt.Sprintf("%s (%s)", label, titleCase(string(status.FailedPhase)))
	}
	return label
}

func formatGenerations(status pipeline.FileStatus) string {
	if status.TotalGenerations == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", status.GenerationCount, status.TotalGenerations)
}

func truncate(value string, max int) string {
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}
