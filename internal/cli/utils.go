// Package cli formats command output for scout.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hyperjump/scout/internal/evaluate"
	"github.com/hyperjump/scout/internal/indexer"
	"github.com/hyperjump/scout/internal/models"
	"github.com/hyperjump/scout/internal/server"
	"github.com/hyperjump/scout/pkg/utils"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat validates a -output flag value. Empty means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	mode := "embedding similarity"
	if response.Reranked {
		mode = "re-ranked by " + response.Strategy
	}
	fmt.Fprintf(w, "\nFound %d results for %q in %dms (%s)\n\n",
		response.Total, response.Query, response.QueryTime, mode)
	for _, r := range response.Results {
		fmt.Fprintf(w, "%3d. %-40s %.4f", r.Rank, utils.Truncate(r.Metadata.Filename, 40), r.Score)
		if r.Reranked {
			fmt.Fprintf(w, "  (stage 1: %.4f)", r.Stage1Score)
		}
		fmt.Fprintf(w, "\n     %s\n", r.Metadata.Path)
	}
	return nil
}

// PrintSearchResults prints search results to stdout as text.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// WriteIngestStats writes an ingestion summary.
func WriteIngestStats(w io.Writer, stats *indexer.Stats, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Images found:     %d\n", stats.Total)
	fmt.Fprintf(w, "Newly ingested:   %d\n", stats.Processed)
	fmt.Fprintf(w, "Already indexed:  %d\n", stats.Skipped)
	fmt.Fprintf(w, "Embedding failed: %d\n", stats.Failed)
	fmt.Fprintf(w, "Upsert failed:    %d\n", stats.UpsertFailed)
	if stats.Pruned > 0 {
		fmt.Fprintf(w, "Pruned:           %d\n", stats.Pruned)
	}
	fmt.Fprintf(w, "Batches:          %d\n", stats.Batches)
	fmt.Fprintf(w, "Duration:         %s\n", stats.Duration.Round(time.Millisecond))
	return nil
}

// WriteEvaluation writes an evaluation report.
func WriteEvaluation(w io.Writer, report *evaluate.Report, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, report)
	}
	strategy := report.Strategy
	if strategy == "" {
		strategy = "none"
	}
	fmt.Fprintf(w, "Queries:    %d (%d failed)\n", report.SampleSize, report.Failed)
	fmt.Fprintf(w, "Re-ranker:  %s\n", strategy)
	fmt.Fprintf(w, "Recall@1:   %.4f\n", report.RecallAt1)
	fmt.Fprintf(w, "Recall@5:   %.4f\n", report.RecallAt5)
	fmt.Fprintf(w, "Recall@10:  %.4f\n", report.RecallAt10)
	fmt.Fprintf(w, "MRR:        %.4f\n", report.MRR)
	fmt.Fprintf(w, "Duration:   %s\n", report.Duration.Round(time.Millisecond))
	return nil
}

// WriteStatus writes the index and storage status.
func WriteStatus(w io.Writer, st server.Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "Index:      %s (%s)\n", st.Index, st.Backend)
	fmt.Fprintf(w, "Images:     %d\n", st.Images)
	fmt.Fprintf(w, "Dimensions: %d\n", st.Dimensions)
	fmt.Fprintf(w, "Re-ranker:  %s\n", st.RerankStrategy)
	if st.Device != "" {
		fmt.Fprintf(w, "Device:     %s\n", st.Device)
	}
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(st.DiskUsageBytes))
	for _, u := range st.DiskUsage {
		if !u.Exists {
			continue
		}
		fmt.Fprintf(w, "  %-13s %10s  %s\n", u.Label, FormatBytes(u.Bytes), u.Path)
	}
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
