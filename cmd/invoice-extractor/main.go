package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-extractor/internal/pipeline"
	"github.com/zombor/invoice-extractor/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// shutdownTimeout bounds how long serve waits for in-flight requests
const shutdownTimeout = 30 * time.Second

// rootConfig holds the flags shared by every subcommand
type rootConfig struct {
	debug        bool
	provider     string
	apiKey       string
	model        string
	baseURL      string
	maxDimension int
	timeout      time.Duration
	output       string
	dbPath       string
	storagePath  string
	noJournal    bool
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "error: loading .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout)
	if err := root.ParseAndRun(ctx, os.Args[1:], ff.WithEnvVarPrefix("INVOICE_EXTRACTOR")); err != nil {
		if errors.Is(err, ff.ErrHelp) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
			os.Exit(0)
		}
		if errors.Is(err, ff.ErrNoExec) {
			fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root))
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if hints := errors.GetAllHints(err); len(hints) > 0 {
			fmt.Fprintf(os.Stderr, "hint: %s\n", strings.Join(hints, "\n--\n"))
		}
		os.Exit(1)
	}
}

func newRootCommand(stdout io.Writer) *ff.Command {
	var cfg rootConfig

	rootFlags := ff.NewFlagSet("invoice-extractor")
	rootFlags.BoolVar(&cfg.debug, 0, "debug", "Enable debug logging")
	rootFlags.StringVar(&cfg.provider, 0, "provider", scanning.ProviderOpenAI, "Extraction provider: openai, gemini or ollama")
	rootFlags.StringVar(&cfg.apiKey, 0, "api-key", "", "Model API key (or OPENAI_API_KEY / GEMINI_API_KEY)")
	rootFlags.StringVar(&cfg.model, 0, "model", "", "Model name (or OPENAI_MODEL); empty uses the provider default")
	rootFlags.StringVar(&cfg.baseURL, 0, "base-url", "", "Override the provider API base URL")
	rootFlags.IntVar(&cfg.maxDimension, 0, "max-dimension", 0, "Downscale images larger than this many pixels on either side (0 disables)")
	rootFlags.DurationVar(&cfg.timeout, 0, "timeout", pipeline.DefaultTimeout, "Timeout for the model call")
	rootFlags.StringVar(&cfg.output, 0, "output", "", "Workbook path (or OUTPUT_EXCEL_PATH); default "+pipeline.DefaultOutputPath)
	rootFlags.StringVar(&cfg.dbPath, 0, "db", "invoice-extractor.db", "Journal database file path")
	rootFlags.StringVar(&cfg.storagePath, 0, "storage", "./uploads", "Directory for archived invoice images")
	rootFlags.BoolVar(&cfg.noJournal, 0, "no-journal", "Do not journal runs or archive images")
	rootFlags.BoolLong("version", "Show version information")

	root := &ff.Command{
		Name:      "invoice-extractor",
		Usage:     "invoice-extractor [FLAGS] <SUBCOMMAND> ...",
		ShortHelp: "extract invoice fields from images into an Excel workbook",
		Flags:     rootFlags,
	}

	root.Subcommands = []*ff.Command{
		newExtractCommand(&cfg, rootFlags, stdout),
		newServeCommand(&cfg, rootFlags),
		newHistoryCommand(&cfg, rootFlags, stdout),
	}
	return root
}

func newExtractCommand(cfg *rootConfig, parent *ff.FlagSet, stdout io.Writer) *ff.Command {
	flags := ff.NewFlagSet("extract").SetParent(parent)
	return &ff.Command{
		Name:      "extract",
		Usage:     "invoice-extractor extract [FLAGS] FILE",
		ShortHelp: "extract one invoice and append it to the workbook",
		Flags:     flags,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return errors.New("extract requires exactly one FILE argument")
			}
			setupLogging(cfg.debug)

			data, err := os.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "reading invoice")
			}

			p, closeAll, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer closeAll()

			out, err := p.Run(ctx, pipeline.Input{Filename: args[0], ImageBytes: data})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newServeCommand(cfg *rootConfig, parent *ff.FlagSet) *ff.Command {
	flags := ff.NewFlagSet("serve").SetParent(parent)
	var (
		port     = flags.IntLong("port", 8080, "HTTP server port")
		authUser = flags.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass = flags.StringLong("auth-pass", "", "Basic auth password (optional)")
	)
	return &ff.Command{
		Name:      "serve",
		Usage:     "invoice-extractor serve [FLAGS]",
		ShortHelp: "serve the JSON upload API",
		Flags:     flags,
		Exec: func(ctx context.Context, args []string) error {
			setupLogging(cfg.debug)

			p, closeAll, err := buildPipeline(cfg)
			if err != nil {
				return err
			}
			defer closeAll()

			server := pipeline.NewServer(p, pipeline.BasicAuth{Username: *authUser, Password: *authPass})

			addr := fmt.Sprintf(":%d", *port)
			errc := make(chan error, 1)
			go func() {
				errc <- server.Start(addr)
			}()

			slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
			if *authUser != "" || *authPass != "" {
				slog.Info("Basic auth enabled", "user", *authUser)
			}

			select {
			case err := <-errc:
				return errors.Wrap(err, "server")
			case <-ctx.Done():
			}

			// Drain in-flight uploads before the deferred close of the journal.
			slog.Info("Shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return errors.Wrap(err, "shutting down server")
			}
			return errors.Wrap(<-errc, "server")
		},
	}
}

func newHistoryCommand(cfg *rootConfig, parent *ff.FlagSet, stdout io.Writer) *ff.Command {
	flags := ff.NewFlagSet("history").SetParent(parent)
	asJSON := flags.BoolLong("json", "Print records as JSON")
	return &ff.Command{
		Name:      "history",
		Usage:     "invoice-extractor history [FLAGS]",
		ShortHelp: "list journaled invoices, newest first",
		Flags:     flags,
		Exec: func(ctx context.Context, args []string) error {
			setupLogging(cfg.debug)

			db, err := pipeline.NewBoltDB(cfg.dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			// Reading the journal needs no model, so skip building an extractor.
			p := pipeline.NewPipeline(pipeline.Config{}, nil, nil, db, nil)
			records, err := p.ListRecords()
			if err != nil {
				return err
			}

			if *asJSON {
				enc := json.NewEncoder(stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return printRecords(stdout, records)
		},
	}
}

func printRecords(w io.Writer, records []*pipeline.Record) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tFILE\tINVOICE\tROWS\tWORKBOOK")
	for _, r := range records {
		number := "-"
		if r.Invoice != nil && r.Invoice.InvoiceNumber != nil {
			number = *r.Invoice.InvoiceNumber
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Filename, number, r.RowsWritten, r.OutputPath)
	}
	return tw.Flush()
}

// buildPipeline folds flags and the legacy environment variables into a
// pipeline.Config and opens the journal.
func buildPipeline(cfg *rootConfig) (*pipeline.Pipeline, func(), error) {
	pcfg := pipelineConfig(cfg, os.Getenv)

	var (
		db      pipeline.DB
		storage pipeline.Storage
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if !cfg.noJournal {
		bolt, err := pipeline.NewBoltDB(cfg.dbPath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { bolt.Close() })
		db = bolt

		local, err := pipeline.NewLocalStorage(cfg.storagePath)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		storage = local
	}

	slog.Info("Initializing extractor...", "provider", pcfg.Extraction.Provider, "model", pcfg.Extraction.Model)
	p, err := pipeline.New(pcfg, db, storage)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, func() { p.Close() })

	return p, closeAll, nil
}

// pipelineConfig maps flags to a pipeline.Config. Flags and INVOICE_EXTRACTOR_*
// variables take precedence; the unprefixed variables are read only when the
// corresponding flag is unset.
func pipelineConfig(cfg *rootConfig, getenv func(string) string) pipeline.Config {
	provider := strings.ToLower(strings.TrimSpace(cfg.provider))

	apiKey := cfg.apiKey
	if apiKey == "" {
		switch provider {
		case "", scanning.ProviderOpenAI:
			apiKey = getenv("OPENAI_API_KEY")
		case scanning.ProviderGemini:
			apiKey = getenv("GEMINI_API_KEY")
		}
	}

	model := cfg.model
	if model == "" && (provider == "" || provider == scanning.ProviderOpenAI) {
		model = getenv("OPENAI_MODEL")
	}

	output := cfg.output
	if output == "" {
		output = getenv("OUTPUT_EXCEL_PATH")
	}

	return pipeline.Config{
		OutputPath: output,
		Timeout:    cfg.timeout,
		Extraction: scanning.Config{
			Provider:          provider,
			APIKey:            apiKey,
			Model:             model,
			BaseURL:           cfg.baseURL,
			MaxImageDimension: cfg.maxDimension,
		},
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
