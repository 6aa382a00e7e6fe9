package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/odindexer/internal/model"
)

// SimpleWriter outputs human-readable text reports.
// This format is designed for terminal display with clear section
// formatting.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors by default because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no entries are shown.
	showEmpty bool

	// verbose enables additional detail in the output.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with exact byte counts and folder URLs.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the report in human-readable format.
func (w *SimpleWriter) Write(report *model.Report) (int, error) {
	return w.WriteSummary(&Summary{Report: report})
}

// WriteSummary outputs the report and its tree breakdown.
func (w *SimpleWriter) WriteSummary(summary *Summary) (int, error) {
	var sb strings.Builder
	report := summary.Report

	w.writeHeader(&sb, report)
	w.writeTotals(&sb, summary)
	w.writeFolders(&sb, summary.TopFolders)
	w.writeExtensions(&sb, summary.Extensions)
	w.writeErrors(&sb, report.Errors)
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.Report) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        ODINDEXER REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Root URL:       %s\n", report.RootURL)
	if report.Backend != "" {
		fmt.Fprintf(sb, "Backend:        %s\n", report.Backend)
	}
	fmt.Fprintf(sb, "Started:        %s\n", report.Started.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Elapsed:        %s\n", report.Elapsed().Round(time.Second))
	fmt.Fprintf(sb, "Status:         %s\n", outcomeText(report.Outcome))
	if report.SnapshotPath != "" {
		fmt.Fprintf(sb, "Snapshot:       %s\n", report.SnapshotPath)
	}
	sb.WriteString("\n")
}

// writeTotals writes the aggregate counters.
func (w *SimpleWriter) writeTotals(sb *strings.Builder, summary *Summary) {
	report := summary.Report
	writeSection(sb, "TOTALS")

	fmt.Fprintf(sb, "  Folders:  %s (%s done, %d failed)\n",
		humanize.Comma(int64(report.Folders)),
		humanize.Comma(report.FoldersCompleted),
		len(report.Errors),
	)
	if summary.Pending > 0 {
		fmt.Fprintf(sb, "  Pending:  %s\n", humanize.Comma(int64(summary.Pending)))
	}
	fmt.Fprintf(sb, "  Files:    %s\n", humanize.Comma(report.Files))
	fmt.Fprintf(sb, "  Size:     %s\n", w.size(report.Bytes))
	sb.WriteString("\n")
}

// writeFolders writes the largest top-level folders.
func (w *SimpleWriter) writeFolders(sb *strings.Builder, folders []FolderSummary) {
	if len(folders) == 0 && !w.showEmpty {
		return
	}
	writeSection(sb, "TOP FOLDERS")

	if len(folders) == 0 {
		sb.WriteString("  No subfolders\n\n")
		return
	}
	for _, f := range folders {
		fmt.Fprintf(sb, "  %-40s %12s %10s files\n",
			truncateString(f.Path, 40), w.size(f.Bytes), humanize.Comma(f.Files))
		if w.verbose {
			fmt.Fprintf(sb, "    %s (%s)\n", f.URL, f.Status)
		}
	}
	sb.WriteString("\n")
}

// writeExtensions writes the most common file extensions.
func (w *SimpleWriter) writeExtensions(sb *strings.Builder, exts []ExtensionSummary) {
	if len(exts) == 0 && !w.showEmpty {
		return
	}
	writeSection(sb, "EXTENSIONS")

	if len(exts) == 0 {
		sb.WriteString("  No files\n\n")
		return
	}
	for _, e := range exts {
		fmt.Fprintf(sb, "  %-12s %12s %10s files\n", e.Extension, w.size(e.Bytes), humanize.Comma(e.Files))
	}
	sb.WriteString("\n")
}

// writeErrors writes every failed folder.
func (w *SimpleWriter) writeErrors(sb *strings.Builder, errs []model.NodeError) {
	if len(errs) == 0 && !w.showEmpty {
		return
	}
	writeSection(sb, "FAILED FOLDERS")

	if len(errs) == 0 {
		sb.WriteString("  No failed folders\n\n")
		return
	}
	for _, e := range errs {
		fmt.Fprintf(sb, "  [!] %s\n", e.Path)
		fmt.Fprintf(sb, "      Reason: %s\n", e.Reason)
		if w.verbose {
			fmt.Fprintf(sb, "      URL: %s\n", e.URL)
		}
	}
	sb.WriteString("\n")
}

// writeFooter writes the report footer.
func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("Report generated by odindexer\n")
	sb.WriteString("https://github.com/nao1215/odindexer\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}

// size formats a byte count. Verbose output appends the exact count.
func (w *SimpleWriter) size(n int64) string {
	if n < 0 {
		n = 0
	}
	s := humanize.IBytes(uint64(n))
	if w.verbose {
		s += fmt.Sprintf(" (%s bytes)", humanize.Comma(n))
	}
	return s
}

func writeSection(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

// outcomeText returns the display text of an outcome.
func outcomeText(o model.Outcome) string {
	switch o {
	case model.OutcomeCompleted:
		return "Complete"
	case model.OutcomeCompletedWithErrors:
		return "Complete with errors"
	case model.OutcomeCancelled:
		return "CANCELLED (resumable from snapshot)"
	default:
		return "Unknown"
	}
}
