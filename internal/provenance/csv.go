package provenance

import (
	"fmt"
	"strings"
)

// RenderCSV renders the report as CSV with one row per (dimension, key).
func RenderCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("dimension,key,events,event_share,cumulative_event_share,snapshots\n")

	for _, row := range r.Precision {
		sb.WriteString(fmt.Sprintf("precision,%s,%d,%.6f,%.6f,%d\n",
			row.Precision, row.Events, row.EventShare, row.CumulativeEventShare, row.Snapshots))
	}
	for _, row := range r.Sources {
		sb.WriteString(fmt.Sprintf("source,%s,%d,%.6f,,%d\n",
			row.Source, row.Events, row.EventShare, row.Snapshots))
	}

	return sb.String()
}
