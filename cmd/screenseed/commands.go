package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ehr/screenseed/internal/platform/blobstore"
	"github.com/ehr/screenseed/internal/platform/db"
	"github.com/ehr/screenseed/internal/platform/eventstream"
	"github.com/ehr/screenseed/internal/platform/reporting"
	"github.com/ehr/screenseed/internal/platform/seedio"
	"github.com/ehr/screenseed/internal/synth"
)

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ---------------------------------------------------------------------------
// generate
// ---------------------------------------------------------------------------

func (a *app) generateCmd() *cobra.Command {
	var (
		out                           string
		mode                          string
		seed                          int64
		members, employers, providers int
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a full seed dataset and its manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			if f.Changed("out") {
				a.cfg.OutputDir = out
			}
			if f.Changed("seed") {
				a.cfg.Seed = seed
			}
			if f.Changed("mode") {
				a.cfg.OutcomeMode = mode
			}
			if f.Changed("members") {
				a.cfg.NumMembers = members
			}
			if f.Changed("employers") {
				a.cfg.NumEmployers = employers
			}
			if f.Changed("providers") {
				a.cfg.NumProviders = providers
			}

			sc, err := a.cfg.SynthConfig()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			ds, err := synth.NewSeeder(sc, a.logger).Generate()
			if err != nil {
				return err
			}
			tables, err := seedio.WriteDataset(a.cfg.OutputDir, sc, ds)
			if err != nil {
				return err
			}
			a.logger.Info().
				Str("dir", a.cfg.OutputDir).
				Str("run_id", seedio.RunID(sc)).
				Int("tables", len(tables)).
				Msg("dataset written")

			w := cmd.OutOrStdout()
			p := reporting.NewPrinter()
			reporting.NewRunSummary(tables, sc.StartDate, sc.EndDate, a.cfg.OutputDir).Render(w, p)
			for i := range tables {
				if tables[i].Name != seedio.ScreeningsTable {
					continue
				}
				stats, err := reporting.ComputeScreeningStats(&tables[i])
				if err != nil {
					return err
				}
				stats.Render(w, p, "all")
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&out, "out", "", "output directory (default OUTPUT_DIR)")
	f.Int64Var(&seed, "seed", 0, "random seed (default SEED)")
	f.StringVar(&mode, "mode", "", "outcome mode: flat or conditioned (default OUTCOME_MODE)")
	f.IntVar(&members, "members", 0, "number of members (default NUM_MEMBERS)")
	f.IntVar(&employers, "employers", 0, "number of employers (default NUM_EMPLOYERS)")
	f.IntVar(&providers, "providers", 0, "number of providers (default NUM_PROVIDERS)")
	return cmd
}

// ---------------------------------------------------------------------------
// expand
// ---------------------------------------------------------------------------

func (a *app) expandCmd() *cobra.Command {
	var (
		file, membersFile string
		add, total        int
		seed              int64
	)
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Append screenings to an existing screenings file",
		Long: "Append screenings that reference only the members, employers and providers " +
			"already present in the file. The original is backed up first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := a.cfg.SynthConfig()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			start, end, err := a.cfg.ExpandWindow()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			mode, err := a.cfg.ExpandMode()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			if !cmd.Flags().Changed("seed") {
				seed = sc.Seed
			}
			// An explicit zero means nothing to append, not the default count.
			var addN, totalN *int
			if cmd.Flags().Changed("add") {
				addN = &add
			}
			if cmd.Flags().Changed("total") {
				totalN = &total
			}

			res, err := seedio.Expand(seedio.ExpandRequest{
				Path:         or(file, filepath.Join(a.cfg.OutputDir, seedio.ScreeningsTable+".csv")),
				MembersPath:  membersFile,
				Add:          addN,
				Total:        totalN,
				Seed:         seed,
				StartDate:    start,
				EndDate:      end,
				AsOf:         sc.AsOf,
				Mode:         mode,
				FollowUpRate: sc.FollowUpRate,
			}, a.logger)
			if err != nil {
				return err
			}
			return reporting.RenderExpansion(cmd.OutOrStdout(), reporting.NewPrinter(), res)
		},
	}
	f := cmd.Flags()
	f.StringVar(&file, "file", "", "screenings CSV to expand (default OUTPUT_DIR/raw_screenings.csv)")
	f.StringVar(&membersFile, "members", "", "members CSV supplying real date_of_birth and gender")
	f.IntVar(&add, "add", 0, fmt.Sprintf("number of screenings to append (default %d)", seedio.DefaultExpandCount))
	f.IntVar(&total, "total", 0, "append until the file holds this many screenings")
	f.Int64Var(&seed, "seed", 0, "random seed (default SEED)")
	cmd.MarkFlagsMutuallyExclusive("add", "total")
	return cmd
}

// ---------------------------------------------------------------------------
// summary
// ---------------------------------------------------------------------------

func (a *app) summaryCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print screening statistics for a screenings file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := or(file, filepath.Join(a.cfg.OutputDir, seedio.ScreeningsTable+".csv"))
			t, err := seedio.ReadTable(path)
			if err != nil {
				return err
			}
			stats, err := reporting.ComputeScreeningStats(t)
			if err != nil {
				return err
			}
			stats.Render(cmd.OutOrStdout(), reporting.NewPrinter(), filepath.Base(path))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "screenings CSV (default OUTPUT_DIR/raw_screenings.csv)")
	return cmd
}

// ---------------------------------------------------------------------------
// load
// ---------------------------------------------------------------------------

func (a *app) loadCmd() *cobra.Command {
	var dir, schema string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load seed CSVs into the Postgres warehouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			dir = or(dir, a.cfg.OutputDir)
			schema = or(schema, a.cfg.WarehouseSchema)

			tables, err := db.ReadDir(dir)
			if err != nil {
				return err
			}
			if len(tables) == 0 {
				return fmt.Errorf("no seed tables in %s", dir)
			}

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			loaded, err := db.NewLoader(pool, schema, a.logger).Load(ctx, tables)
			if err != nil {
				return err
			}
			p := reporting.NewPrinter()
			w := cmd.OutOrStdout()
			for _, l := range loaded {
				p.Fprintf(w, "  %-32s %d\n", schema+"."+l.Table, l.Rows)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of seed CSVs (default OUTPUT_DIR)")
	cmd.Flags().StringVar(&schema, "schema", "", "target schema (default WAREHOUSE_SCHEMA)")
	return cmd
}

// ---------------------------------------------------------------------------
// publish
// ---------------------------------------------------------------------------

func (a *app) publishCmd() *cobra.Command {
	var dir, bucket, prefix string
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Upload seed CSVs and the manifest to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket = or(bucket, a.cfg.S3Bucket)
			if bucket == "" {
				return errors.New("S3_BUCKET or --bucket is required")
			}
			dir = or(dir, a.cfg.OutputDir)
			if !cmd.Flags().Changed("prefix") {
				prefix = a.cfg.S3Prefix
			}

			ctx := cmd.Context()
			client, err := blobstore.NewS3Client(ctx)
			if err != nil {
				return err
			}
			objects, err := blobstore.Publish(ctx, blobstore.NewS3Store(client, bucket), dir, prefix, a.logger)
			if err != nil {
				return err
			}
			p := reporting.NewPrinter()
			w := cmd.OutOrStdout()
			for _, o := range objects {
				p.Fprintf(w, "  s3://%s/%s (%d bytes)\n", bucket, o.Key, o.Size)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&dir, "dir", "", "directory of seed CSVs (default OUTPUT_DIR)")
	f.StringVar(&bucket, "bucket", "", "target bucket (default S3_BUCKET)")
	f.StringVar(&prefix, "prefix", "", "key prefix (default S3_PREFIX)")
	return cmd
}

// ---------------------------------------------------------------------------
// stream-events
// ---------------------------------------------------------------------------

func (a *app) streamEventsCmd() *cobra.Command {
	var (
		file, topic string
		batchSize   int
	)
	cmd := &cobra.Command{
		Use:   "stream-events",
		Short: "Publish app events to Kafka, keyed by member",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if len(a.cfg.KafkaBrokers) == 0 {
				return errors.New("KAFKA_BROKERS is required")
			}
			t, err := seedio.ReadTable(or(file, filepath.Join(a.cfg.OutputDir, seedio.AppEventsTable+".csv")))
			if err != nil {
				return err
			}

			w := eventstream.NewKafkaWriter(a.cfg.KafkaBrokers, or(topic, a.cfg.KafkaTopic))
			defer func() {
				if cerr := w.Close(); cerr != nil && err == nil {
					err = fmt.Errorf("closing kafka writer: %w", cerr)
				}
			}()

			n, err := eventstream.NewPublisher(w, a.logger, eventstream.WithBatchSize(batchSize)).
				PublishAppEvents(cmd.Context(), t)
			if err != nil {
				return err
			}
			reporting.NewPrinter().Fprintf(cmd.OutOrStdout(), "Published %d app events to %s\n", n, w.Topic)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&file, "file", "", "app events CSV (default OUTPUT_DIR/raw_app_events.csv)")
	f.StringVar(&topic, "topic", "", "Kafka topic (default KAFKA_TOPIC)")
	f.IntVar(&batchSize, "batch-size", eventstream.DefaultBatchSize, "messages per write")
	return cmd
}

// ---------------------------------------------------------------------------
// measures
// ---------------------------------------------------------------------------

func (a *app) measuresCmd() *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "measures [id]",
		Short: "List reporting measures, or evaluate one against the warehouse",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 0 {
				for _, m := range reporting.PredefinedMeasures {
					fmt.Fprintf(w, "  %-22s %s\n", m.ID, m.Name)
				}
				return nil
			}
			if reporting.FindMeasure(args[0]) == nil {
				return fmt.Errorf("unknown measure %q", args[0])
			}
			if a.cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			report, err := reporting.NewEvaluator(pool, or(schema, a.cfg.WarehouseSchema)).Evaluate(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "warehouse schema (default WAREHOUSE_SCHEMA)")
	return cmd
}
