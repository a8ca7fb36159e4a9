// Package main provides an offline CLI over the tracker's history database.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MisterZedd/SourceStalker/internal/constants"
	"github.com/MisterZedd/SourceStalker/internal/database"
	"github.com/MisterZedd/SourceStalker/internal/domain"
	"github.com/MisterZedd/SourceStalker/internal/graph"
	"github.com/MisterZedd/SourceStalker/internal/logger"
	"github.com/MisterZedd/SourceStalker/internal/repository"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	dbPath    string
	queueType string
	verbose   bool
}

func main() {
	_ = godotenv.Load()

	rootCmd := newRootCmd(os.Stdout)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "stalkctl",
		Short:         "Inspect and maintain SourceStalker rank history",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.SetOut(out)

	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", envOr("DB_PATH", "sourcestalker.db"), "path to the history database")
	rootCmd.PersistentFlags().StringVar(&opts.queueType, "queue", envOr("RIOT_QUEUE_TYPE", domain.QueueSolo), "queue type to read")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(newGraphCmd(opts))
	rootCmd.AddCommand(newHistoryCmd(opts))
	rootCmd.AddCommand(newTrimCmd(opts))

	return rootCmd
}

func newGraphCmd(opts *globalOptions) *cobra.Command {
	var (
		days  int
		out   string
		title string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the rank graph to a .png or .html file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepo(cmd.Context(), opts, func(ctx context.Context, repo *repository.HistoryRepository) error {
				obs, err := loadHistory(ctx, repo, days, opts.queueType)
				if err != nil {
					return err
				}
				if title == "" {
					title = domain.QueueName(opts.queueType)
				}
				if err := writeGraph(out, obs, title); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d observations to %s\n", len(obs), out)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", constants.DefaultGraphDays, "days of history to plot")
	cmd.Flags().StringVarP(&out, "out", "o", "rank.png", "output file (.png or .html)")
	cmd.Flags().StringVar(&title, "title", "", "chart title (default: queue name)")
	return cmd
}

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print stored rank observations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepo(cmd.Context(), opts, func(ctx context.Context, repo *repository.HistoryRepository) error {
				obs, err := loadHistory(ctx, repo, days, opts.queueType)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if len(obs) == 0 {
					fmt.Fprintln(w, "no observations")
					return nil
				}
				for _, o := range obs {
					fmt.Fprintf(w, "%s  %-8s %4d LP\n",
						o.Timestamp.Local().Format("2006-01-02 15:04"),
						domain.ShortLabel(o.Tier, o.Division),
						o.LeaguePoints)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", constants.DefaultGraphDays, "days of history to print")
	return cmd
}

func newTrimCmd(opts *globalOptions) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "trim",
		Short: "Delete observations older than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if retention <= 0 {
				return fmt.Errorf("--retention must be positive")
			}
			return withRepo(cmd.Context(), opts, func(ctx context.Context, repo *repository.HistoryRepository) error {
				removed, err := repo.Trim(ctx, retention)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d observations older than %s\n", removed, retention)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&retention, "retention", constants.DefaultRetentionWindow, "keep observations newer than this")
	return cmd
}

func withRepo(ctx context.Context, opts *globalOptions, fn func(context.Context, *repository.HistoryRepository) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	level := zerolog.WarnLevel
	if opts.verbose {
		level = zerolog.DebugLevel
	}
	log := logger.SetLevel(level)

	db, err := openDB(opts.dbPath, log)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return fn(ctx, repository.NewHistoryRepository(db, log))
}

func openDB(path string, log zerolog.Logger) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("history database %s: %w", path, err)
	}
	db, err := database.Open(path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return db, nil
}

func loadHistory(ctx context.Context, repo *repository.HistoryRepository, days int, queueType string) ([]domain.RankObservation, error) {
	if days <= 0 || days > constants.MaxGraphDays {
		return nil, fmt.Errorf("--days must be between 1 and %d", constants.MaxGraphDays)
	}

	end := time.Now()
	start := end.AddDate(0, 0, -days)

	all, err := repository.Collect(repo.QueryWindow(ctx, start, end))
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, o := range all {
		if o.QueueType == queueType {
			out = append(out, o)
		}
	}
	return out, nil
}

func writeGraph(path string, obs []domain.RankObservation, title string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".png" && ext != ".html" && ext != ".htm" {
		return fmt.Errorf("unsupported output extension %q, use .png or .html", filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if ext == ".png" {
		r := graph.NewRenderer()
		r.Title = title
		var img []byte
		if img, err = r.Render(obs); err == nil {
			_, err = f.Write(img)
		}
	} else {
		err = graph.RenderHTML(f, obs, title)
	}
	if err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	return f.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
