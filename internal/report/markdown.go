package report

import (
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/odindexer/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the report in Markdown format.
func (w *MarkdownWriter) Write(report *model.Report) (int, error) {
	return w.WriteSummary(&Summary{Report: report})
}

// WriteSummary outputs the report and its tree breakdown in Markdown format.
func (w *MarkdownWriter) WriteSummary(summary *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary.Report)
	w.writeTotals(md, summary)
	w.writeFolders(md, summary.TopFolders)
	w.writeExtensions(md, summary.Extensions)
	w.writeErrors(md, summary.Report.Errors)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.Report) {
	md.H1("odindexer Report")
	md.PlainText("")

	rows := [][]string{
		{"Root URL", "`" + report.RootURL + "`"},
		{"Backend", valueOrDash(report.Backend)},
		{"Started", report.Started.Format("2006-01-02 15:04:05 MST")},
		{"Elapsed", report.Elapsed().Round(time.Second).String()},
		{"Status", w.getStatusText(report)},
	}
	if report.SnapshotPath != "" {
		rows = append(rows, []string{"Snapshot", "`" + report.SnapshotPath + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// getStatusText returns the status text based on the outcome.
func (w *MarkdownWriter) getStatusText(report *model.Report) string {
	switch report.Outcome {
	case model.OutcomeCancelled:
		return "⚠️ Cancelled (partial results)"
	case model.OutcomeCompletedWithErrors:
		return "❌ Complete with " + strconv.Itoa(len(report.Errors)) + " failed folder(s)"
	default:
		return "✅ Complete"
	}
}

// writeTotals writes the totals table, the folder status chart and an alert.
func (w *MarkdownWriter) writeTotals(md *markdown.Markdown, summary *Summary) {
	report := summary.Report
	md.H2("Totals")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Value"},
		Rows: [][]string{
			{"Folders", humanize.Comma(int64(report.Folders))},
			{"Folders done", humanize.Comma(report.FoldersCompleted)},
			{"Folders failed", strconv.Itoa(len(report.Errors))},
			{"Files", humanize.Comma(report.Files)},
			{"**Size**", "**" + humanize.IBytes(nonNegative(report.Bytes)) + "**"},
		},
	})
	md.PlainText("")

	if report.Folders > 1 {
		w.writePieChart(md, summary)
	}
	w.writeAlert(md, summary)
}

// writePieChart writes a mermaid pie chart of folder states.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, summary *Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Folder Status"),
		piechart.WithShowData(true),
	)

	report := summary.Report
	if report.FoldersCompleted > 0 {
		chart.LabelAndIntValue("Done", uint64(report.FoldersCompleted))
	}
	if n := len(report.Errors); n > 0 {
		chart.LabelAndIntValue("Failed", uint64(n))
	}
	if summary.Pending > 0 {
		chart.LabelAndIntValue("Pending", uint64(summary.Pending))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert matching the outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, summary *Summary) {
	report := summary.Report
	switch {
	case report.Outcome == model.OutcomeCancelled:
		md.Warningf(
			"The crawl was cancelled with %d folder(s) left. Resume it from the snapshot to finish.",
			summary.Pending,
		)
	case report.HasErrors():
		md.Cautionf(
			"%d folder(s) could not be listed. Their contents are missing from the totals.",
			len(report.Errors),
		)
	case report.Files == 0:
		md.Note("No files were found.")
	default:
		md.Tip("Every folder was listed.")
	}
	md.PlainText("")
}

// writeFolders writes the largest top-level folders.
func (w *MarkdownWriter) writeFolders(md *markdown.Markdown, folders []FolderSummary) {
	if len(folders) == 0 {
		return
	}
	md.H2("Top Folders")
	md.PlainText("")

	rows := make([][]string, len(folders))
	for i, f := range folders {
		rows[i] = []string{
			truncateString(f.Path, 60),
			humanize.Comma(f.Files),
			humanize.IBytes(nonNegative(f.Bytes)),
			f.Status.String(),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Folder", "Files", "Size", "Status"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeExtensions writes the extension breakdown.
func (w *MarkdownWriter) writeExtensions(md *markdown.Markdown, exts []ExtensionSummary) {
	if len(exts) == 0 {
		return
	}
	md.H2("Extensions")
	md.PlainText("")

	rows := make([][]string, len(exts))
	for i, e := range exts {
		rows[i] = []string{e.Extension, humanize.Comma(e.Files), humanize.IBytes(nonNegative(e.Bytes))}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Extension", "Files", "Size"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeErrors writes a table of failed folders with their reasons.
func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, errs []model.NodeError) {
	if len(errs) == 0 {
		return
	}
	md.H2("Failed Folders")
	md.PlainText("")

	rows := make([][]string, len(errs))
	for i, e := range errs {
		rows[i] = []string{
			truncateString(e.Path, 50),
			truncateString(valueOrDash(e.Reason), 80),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Path", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, e := range errs {
		md.Details(e.Path, e.URL)
	}
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [odindexer](https://github.com/nao1215/odindexer)*")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
