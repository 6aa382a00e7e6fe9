package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/odindexer/internal/pipeline"
	"github.com/nao1215/odindexer/internal/snapshot"
)

// NewResumeCmd creates the resume command.
func NewResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <snapshot>...",
		Short: "Continue crawls saved in snapshots",
		Long: `Resume restores the tree saved in each snapshot and crawls the folders
that were still pending when the previous run stopped. Folders already
listed are not requested again. The snapshot is updated when the run ends.

Folders that failed are kept as failed unless --retry-errors is given, in
which case they are crawled again.

Examples:
  # Continue an interrupted crawl
  odindexer resume ~/.local/share/odindexer/sessions/example.com_pub.json

  # Retry only the folders that failed last time
  odindexer resume --retry-errors example.com_pub.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: runResumeCmd,
	}
	addCrawlFlags(cmd)
	cmd.Flags().Bool("retry-errors", false,
		"Crawl folders that failed in the previous run again")
	return cmd
}

// runResumeCmd executes the resume command.
func runResumeCmd(cmd *cobra.Command, args []string) error {
	retryErrors, err := cmd.Flags().GetBool("retry-errors")
	if err != nil {
		return err
	}

	// Targets are the recorded roots, so onion checks apply to them.
	targets := make([]string, 0, len(args))
	for _, path := range args {
		header, err := snapshot.LoadHeader(path)
		if err != nil {
			return fmt.Errorf("failed to read snapshot %s: %w", path, err)
		}
		targets = append(targets, header.RootURL)
	}

	return execute(cmd, targets, func(ctx context.Context, r *runner) ([]*pipeline.Job, error) {
		jobs := make([]*pipeline.Job, 0, len(args))
		for _, path := range args {
			job, err := r.resumeJob(ctx, path, retryErrors)
			if err != nil {
				return nil, fmt.Errorf("failed to resume %s: %w", path, err)
			}
			jobs = append(jobs, job)
		}
		return jobs, nil
	})
}
