package provenance

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as Markdown.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Coverage Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Range: %s .. %s\n\n", formatMillis(r.From), formatMillis(r.Through)))
	sb.WriteString(fmt.Sprintf("Events: %d | Snapshots: %d\n\n", r.Events.Total, r.Snapshots.Total))

	sb.WriteString("## By Precision\n\n")
	if r.Events.Total == 0 && r.Snapshots.Total == 0 {
		sb.WriteString("No events or snapshots in range.\n\n")
	} else {
		sb.WriteString("| Precision | Events | Share | At or Finer | Snapshots |\n")
		sb.WriteString("|-----------|--------|-------|-------------|-----------|\n")
		for _, row := range r.Precision {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %.4f | %d |\n",
				row.Precision, row.Events, row.EventShare, row.CumulativeEventShare, row.Snapshots))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## By Source\n\n")
	if len(r.Sources) == 0 {
		sb.WriteString("No sources in range.\n")
	} else {
		sb.WriteString("| Source | Events | Share | Snapshots |\n")
		sb.WriteString("|--------|--------|-------|-----------|\n")
		for _, row := range r.Sources {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.4f | %d |\n",
				row.Source, row.Events, row.EventShare, row.Snapshots))
		}
	}
	sb.WriteString("\n")

	return sb.String()
}

// formatMillis prints open-ended bounds as "-" and everything else as RFC3339.
func formatMillis(ms int64) string {
	if ms <= minRenderable || ms >= maxRenderable {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

// Outside this window time.Format produces years with more than four digits.
var (
	minRenderable = time.Date(0, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	maxRenderable = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC).UnixMilli()
)
