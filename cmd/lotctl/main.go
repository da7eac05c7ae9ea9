// Command lotctl is an operator tool for inspecting sale documents and
// running the ingestion cycle outside the bot.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"property_agent/internal/app"
	"property_agent/internal/bot"
	"property_agent/internal/config"
	"property_agent/internal/document"
	"property_agent/internal/extract"
	"property_agent/internal/identity"
	"property_agent/internal/model"
	"property_agent/internal/scheduler"
	"property_agent/internal/storage"
	"property_agent/migrations"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	json bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "lotctl",
		Short:        "Inspect sale-in-execution documents and run the ingestion cycle",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&opts.json, "json", "j", false, "Output as JSON")

	root.AddCommand(
		newExtractCmd(opts),
		newRunOnceCmd(opts),
		newTownsCmd(opts),
		newCategoriesCmd(opts),
		newDBVersionCmd(opts),
	)
	return root
}

type lotOutput struct {
	Hash         string   `json:"hash"`
	SaleDate     string   `json:"sale_date"`
	Number       int      `json:"number"`
	SizeM2       *float64 `json:"size_m2,omitempty"`
	ReservePrice *float64 `json:"reserve_price,omitempty"`
	ReserveKind  string   `json:"reserve_kind"`
	Opportunity  bool     `json:"opportunity"`
	RawText      string   `json:"raw_text"`
}

func newExtractCmd(opts *options) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Extract numbered lots from a sale document (PDF or text)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read document: %w", err)
			}

			var docs document.Extractor = document.Plain{}
			if strings.EqualFold(filepath.Ext(args[0]), ".pdf") {
				docs = document.NewPDF(app.NewLogger(cmd.ErrOrStderr(), "warn", "text"))
			}

			props := extract.Properties(docs.Text(data), date, filepath.Base(args[0]))
			out := make([]lotOutput, 0, len(props))
			for _, p := range props {
				out = append(out, lotOutput{
					Hash:         identity.Property(p),
					SaleDate:     p.SaleDate,
					Number:       p.Number,
					SizeM2:       p.SizeM2,
					ReservePrice: p.ReservePrice,
					ReserveKind:  string(p.ReserveKind),
					Opportunity:  p.IsOpportunity(),
					RawText:      p.RawText,
				})
			}

			w := cmd.OutOrStdout()
			if opts.json {
				return printJSON(w, out)
			}
			for _, p := range props {
				fmt.Fprintln(w, bot.FormatProperty(p, ""))
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%d %s extracted\n", len(props), plural(len(props), "lot", "lots"))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "sale date (YYYY-MM-DD) recorded on each lot")
	return cmd
}

// stdoutSender prints notifications instead of delivering them.
type stdoutSender struct {
	w io.Writer
}

func (s stdoutSender) SendMessage(chatID int64, text string) error {
	_, err := fmt.Fprintf(s.w, "--- chat %d ---\n%s\n\n", chatID, text)
	return err
}

// previewChatID receives every dry-run notification.
const previewChatID = 1

func newRunOnceCmd(opts *options) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run-once",
		Short: "Run a single ingestion cycle",
		Long: `Fetches upcoming sale events, extracts their lots and notifies matching
subscribers. With --dry-run the cycle runs against an empty in-memory
store and notifications are printed instead of sent.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadLocal()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := app.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)

			var (
				store  storage.Storage
				sender scheduler.Sender
			)
			if dryRun {
				mem := storage.NewMemory()
				if err := mem.UpsertUser(ctx, &model.User{ID: previewChatID, ChatID: previewChatID, DisplayName: "preview"}); err != nil {
					return fmt.Errorf("register preview user: %w", err)
				}
				store = mem
				sender = stdoutSender{w: cmd.OutOrStdout()}
			} else {
				if cfg.TelegramBotToken == "" {
					return errors.New("TELEGRAM_BOT_TOKEN is required unless --dry-run is set")
				}
				db, err := storage.NewSQLite(cfg.DatabasePath)
				if err != nil {
					return fmt.Errorf("open database: %w", err)
				}
				store = db
				b, err := bot.New(cfg.TelegramBotToken, db, cfg, log)
				if err != nil {
					_ = db.Close()
					return fmt.Errorf("create bot: %w", err)
				}
				sender = b
			}
			defer func() { _ = store.Close() }()

			orch, err := app.NewOrchestrator(cfg, store, sender, nil, log)
			if err != nil {
				return err
			}
			report, err := orch.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("run cycle: %w", err)
			}

			if opts.json {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintln(cmd.OutOrStdout(), bot.FormatRunReport(report))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print notifications instead of sending them")
	return cmd
}

func newTownsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "towns",
		Short: "List the towns recognised when locating listings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadLocal()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			towns := cfg.KnownTowns
			if len(towns) == 0 {
				towns = extract.DefaultTowns
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), towns)
			}
			for _, t := range towns {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		},
	}
}

func newCategoriesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List listing categories in the order they are matched",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories := extract.Categories()
			if opts.json {
				return printJSON(cmd.OutOrStdout(), categories)
			}
			for _, c := range categories {
				fmt.Fprintln(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}
}

func newDBVersionCmd(opts *options) *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "db-version",
		Short: "Print the schema version of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				cfg, err := config.LoadLocal()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				path = cfg.DatabasePath
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("database %s: %w", path, err)
			}

			db, err := sql.Open("sqlite", path)
			if err != nil {
				return fmt.Errorf("open sqlite: %w", err)
			}
			defer func() { _ = db.Close() }()

			version, err := migrations.Version(cmd.Context(), db)
			if err != nil {
				return err
			}
			if opts.json {
				return printJSON(cmd.OutOrStdout(), map[string]any{"path": path, "version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: version %d\n", path, version)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "db", "", "database path (defaults to DATABASE_PATH)")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
