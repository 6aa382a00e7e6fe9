package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/odindexer/internal/backend"
	"github.com/nao1215/odindexer/internal/config"
	"github.com/nao1215/odindexer/internal/database"
	"github.com/nao1215/odindexer/internal/report"
	"github.com/nao1215/odindexer/internal/tree"
)

// defaultHistoryLimit is the number of sessions listed per root.
const defaultHistoryLimit = 20

// historyTimeLayout is how session times are shown.
const historyTimeLayout = "2006-01-02 15:04:05"

// NewHistoryCmd creates the history command.
// This command reads the sessions recorded in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [url]",
		Short: "Show recorded crawl sessions",
		Long: `History lists the crawls recorded in the session database.

Without arguments it lists every indexed root. With a URL it lists the
sessions of that root, newest first. With --id it prints the full report of
one session.

Examples:
  # List all indexed roots
  odindexer history

  # List the sessions of one root
  odindexer history http://example.com/pub/

  # Show the report of session 12 as JSON
  odindexer history --id 12 --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Int64P("id", "i", 0,
		"Print the report of the session with this ID")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of sessions listed (0 for all)")
	cmd.Flags().BoolP("json", "j", false,
		"Output the session report in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output the session report in Markdown format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the session history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	id, err := flags.GetInt64("id")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	switch {
	case id != 0:
		return showSession(ctx, out, db, id, jsonOutput, markdownOutput)
	case len(args) == 1:
		clean, _, _, _ := backend.Credentials(backend.FixURL(args[0]))
		return listSessions(ctx, out, db, tree.Canonical(clean), limit)
	default:
		return listRoots(ctx, out, db)
	}
}

// listRoots lists every root with a recorded session.
func listRoots(ctx context.Context, out io.Writer, db *database.SessionDB) error {
	roots, err := db.ListRoots(ctx)
	if err != nil {
		return err
	}

	if len(roots) == 0 {
		fmt.Fprintln(out, "No crawl sessions found in the database.")
		fmt.Fprintln(out, "\nUse 'odindexer index <url>' to index a directory.")
		return nil
	}

	fmt.Fprintf(out, "Indexed roots (%d):\n\n", len(roots))
	for _, root := range roots {
		fmt.Fprintf(out, "  • %s\n", root)
	}
	fmt.Fprintln(out, "\nUse 'odindexer history <url>' to see the sessions of a root.")
	return nil
}

// listSessions lists the sessions of one root, newest first.
func listSessions(ctx context.Context, out io.Writer, db *database.SessionDB, rootURL string, limit int) error {
	sessions, err := db.ListSessions(ctx, rootURL, limit)
	if err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Fprintf(out, "No sessions found for %s\n", rootURL)
		fmt.Fprintln(out, "\nUse 'odindexer history' to list the indexed roots.")
		return nil
	}

	fmt.Fprintf(out, "Sessions for %s (%d):\n\n", rootURL, len(sessions))
	fmt.Fprintf(out, "  %-6s  %-19s  %-9s  %-21s  %10s  %10s  %s\n",
		"ID", "Finished", "Elapsed", "Outcome", "Files", "Size", "Errors")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 96))

	for _, s := range sessions {
		fmt.Fprintf(out, "  %-6d  %-19s  %-9s  %-21s  %10s  %10s  %d\n",
			s.ID,
			s.Finished.Local().Format(historyTimeLayout),
			s.Finished.Sub(s.Started).Round(time.Second),
			s.Outcome,
			humanize.Comma(s.Files),
			humanize.IBytes(nonNegative(s.Bytes)),
			s.Errors,
		)
	}

	fmt.Fprintln(out, "\nUse 'odindexer history --id <id>' to see the report of a session.")
	return nil
}

// showSession prints the stored report of one session. The directory tree
// is not stored, so the report carries totals and failed folders only.
func showSession(ctx context.Context, out io.Writer, db *database.SessionDB, id int64, jsonOutput, markdownOutput bool) error {
	r, err := db.GetReport(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("session %d not found", id)
	}
	if len(r.Errors) == 0 {
		if r.Errors, err = db.SessionErrors(ctx, id); err != nil {
			return err
		}
	}

	var w report.Writer
	switch {
	case jsonOutput:
		w = report.NewFullJSONWriter(out, getVersion())
	case markdownOutput:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}
	_, err = w.WriteSummary(report.Summarize(r, nil, 0))
	return err
}
