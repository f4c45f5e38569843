package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/deusflow/opbop/internal/app"
	"github.com/deusflow/opbop/internal/config"
	"github.com/deusflow/opbop/internal/logger"
	"github.com/deusflow/opbop/internal/model"
	"github.com/deusflow/opbop/internal/pipeline"
	"github.com/deusflow/opbop/internal/storage"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "opbop",
		Short:         "Summarize, simplify and cross-reference news articles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $OPBOP_CONFIG)")

	root.AddCommand(newServeCmd(), newProcessCmd(), newStoreCmd())
	return root
}

// loadConfig reads .env, the config file and the environment, and sets up
// logging from the result.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: could not load .env: %v\n", err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.Serve(ctx)
		},
	}
}

func newProcessCmd() *cobra.Command {
	var (
		filter    int
		from, to  string
		blacklist []string
	)

	cmd := &cobra.Command{
		Use:   "process <url>",
		Short: "Run the pipeline once and print the bundle as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			req := pipeline.Request{
				URL:         args[0],
				FilterLevel: model.Sensitivity(filter),
				Blacklist:   blacklist,
			}
			if req.Range.From, err = parseDay(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if req.Range.To, err = parseDay(to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Pipeline().Process(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().IntVar(&filter, "filter", 0, "explicit content tolerance: 0, 1 or 2")
	cmd.Flags().StringVar(&from, "from", "", "related articles published on or after YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "related articles published on or before YYYY-MM-DD")
	cmd.Flags().StringSliceVar(&blacklist, "blacklist", nil, "publisher domains to exclude")
	return cmd
}

func newStoreCmd() *cobra.Command {
	store := &cobra.Command{
		Use:   "store",
		Short: "Cache store maintenance",
	}

	store.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Connect to the configured store and round-trip a throwaway bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return checkStore(cmd, cfg)
		},
	})
	return store
}

func checkStore(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	fmt.Fprintf(out, "Connecting to %s store %s\n", cfg.Store.Driver, storage.MaskDSN(cfg.Store.DSN))
	s, err := storage.Open(ctx, cfg.Store.Driver, cfg.Store.DSN, logger.Component("storage"))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer s.Close()

	stats, err := s.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}
	for k, v := range stats {
		fmt.Fprintf(out, "  %s: %d\n", k, v)
	}

	sample := model.CachedBundle{
		URL:         "https://opbop.invalid/store-check/" + time.Now().UTC().Format("20060102150405"),
		TLDR:        "store check",
		Reliability: model.ReliabilityUnknown,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Put(ctx, sample); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}
	got, err := s.Get(ctx, sample.URL)
	if err != nil {
		return fmt.Errorf("failed to read sample: %w", err)
	}
	if got == nil || got.TLDR != sample.TLDR {
		return fmt.Errorf("sample %s did not round-trip", sample.URL)
	}
	if err := s.Delete(ctx, sample.URL); err != nil {
		return fmt.Errorf("failed to remove sample %s: %w", sample.URL, err)
	}

	fmt.Fprintln(out, "Store OK")
	return nil
}

func parseDay(v string) (time.Time, error) {
	if v = strings.TrimSpace(v); v == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", v)
}
