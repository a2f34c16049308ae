package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/2beens/trainlog/internal/trainlog"
	"github.com/2beens/trainlog/internal/trainlog/logsync"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const commandTimeout = 30 * time.Second

// withRepo runs fn with a repo connection and the user id from the flags.
func withRepo(fn func(ctx context.Context, repo logsync.SnapshotRepo, userID string) error) error {
	userID, err := requireUserID()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	repo, closeRepo, err := openRepo(ctx)
	if err != nil {
		return err
	}
	defer closeRepo()

	return fn(ctx, repo, userID)
}

var pbsCmd = &cobra.Command{
	Use:   "pbs",
	Short: "Show the personal bests of a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepo(func(ctx context.Context, repo logsync.SnapshotRepo, userID string) error {
			store, err := loadStore(ctx, repo, userID)
			if err != nil {
				return err
			}
			return printPersonalBests(cmd.OutOrStdout(), store, trainlog.NewStaticCurriculum())
		})
	},
}

var weekCmd = &cobra.Command{
	Use:   "week <week>",
	Short: "Show the progress of one week",
	Long: `Show the progress of one week of the plan.

Examples:
  trainlogctl week 3 --user abc`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		week, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: %s", trainlog.ErrInvalidWeek, args[0])
		}
		return withRepo(func(ctx context.Context, repo logsync.SnapshotRepo, userID string) error {
			store, err := loadStore(ctx, repo, userID)
			if err != nil {
				return err
			}
			progress, err := trainlog.BuildWeekProgress(store, trainlog.NewStaticCurriculum(), week)
			if err != nil {
				return err
			}
			printWeekProgress(cmd.OutOrStdout(), progress)
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the stored snapshot as YAML or JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")

		return withRepo(func(ctx context.Context, repo logsync.SnapshotRepo, userID string) error {
			store, err := loadStore(ctx, repo, userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return exportSnapshot(out, store.Snapshot(), format)
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the stored snapshot with the content of a YAML or JSON file",
	Long: `Replace the stored snapshot with the content of a file written by export.
Keys that are not valid log keys are dropped.

Examples:
  trainlogctl import backup.yaml --user abc`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		format := formatFromPath(args[0])

		snapshot, dropped, err := importSnapshot(raw, format)
		if err != nil {
			return err
		}

		return withRepo(func(ctx context.Context, repo logsync.SnapshotRepo, userID string) error {
			if err := repo.Save(ctx, userID, snapshot); err != nil {
				return fmt.Errorf("save snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "IMPORTED %d entries (%d dropped) for %s\n", len(snapshot), dropped, userID)
			return nil
		})
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe the training log of a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("refusing to reset without --yes")
		}
		return withRepo(func(ctx context.Context, repo logsync.SnapshotRepo, userID string) error {
			if err := repo.Save(ctx, userID, trainlog.Snapshot{}); err != nil {
				return fmt.Errorf("save empty snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "RESET %s\n", userID)
			return nil
		})
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping <base-url>",
	Short: "Check that a running service answers and print its version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		client := &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
		version, err := pingService(ctx, client, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK %s\n", version)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("format", formatYAML, "output format [yaml | json]")
	exportCmd.Flags().StringP("out", "o", "", "write to file instead of stdout")
	resetCmd.Flags().Bool("yes", false, "confirm the reset")

	rootCmd.AddCommand(pbsCmd, weekCmd, exportCmd, importCmd, resetCmd, pingCmd)
}

func loadStore(ctx context.Context, repo logsync.SnapshotRepo, userID string) (*trainlog.LogStore, error) {
	snapshot, err := repo.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot of [%s]: %w", userID, err)
	}
	return trainlog.NewLogStoreFromSnapshot(snapshot), nil
}

func printPersonalBests(w io.Writer, store *trainlog.LogStore, curriculum trainlog.Curriculum) error {
	pbs := trainlog.DerivePersonalBests(store, curriculum.Bindings())

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EXERCISE\tBEST\tUNIT\tWEEK")
	for _, b := range curriculum.Bindings() {
		pb := pbs[b.Exercise]
		week := "--"
		if pb.Found {
			week = strconv.Itoa(pb.Week)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Label, pb, b.Unit, week)
	}
	return tw.Flush()
}

func printWeekProgress(w io.Writer, progress *trainlog.WeekProgress) {
	fmt.Fprintf(w, "WEEK %d (%s) %d/%d %.2f%%\n", progress.Week, progress.Phase.Name, progress.Done, progress.Total, progress.Percent)
	for _, day := range progress.Days {
		fmt.Fprintf(w, "  %s: %s [%d/%d]\n", day.Day, day.Title, day.Done, day.Total)
		for _, task := range day.Tasks {
			mark := " "
			if task.Done {
				mark = "x"
			}
			line := fmt.Sprintf("    [%s] %s", mark, task.Task.Name)
			if task.Value != "" {
				line += " = " + task.Value
			}
			fmt.Fprintln(w, line)
		}
	}
}

func formatFromPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return formatJSON
	}
	return formatYAML
}

func pingService(ctx context.Context, client *http.Client, baseURL string) (string, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	for _, path := range []string{"/", "/version"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+path, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("User-Agent", "curl/trainlogctl")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("get %s: %w", path, err)
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("get %s: status %d", path, resp.StatusCode)
		}
		if path == "/version" {
			return strings.TrimSpace(string(body)), nil
		}
	}
	return "", nil
}
