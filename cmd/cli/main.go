package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/vendor-insights/internal/app"
	"github.com/dvloznov/vendor-insights/internal/benchmark"
	"github.com/dvloznov/vendor-insights/internal/config"
	"github.com/dvloznov/vendor-insights/internal/domain"
	"github.com/dvloznov/vendor-insights/internal/fiscal"
	"github.com/dvloznov/vendor-insights/internal/gcsuploader"
	infraBQ "github.com/dvloznov/vendor-insights/internal/infra/bigquery"
	"github.com/dvloznov/vendor-insights/internal/ingest"
	"github.com/dvloznov/vendor-insights/internal/logger"
	"github.com/dvloznov/vendor-insights/internal/pipeline"
	"github.com/dvloznov/vendor-insights/internal/report"
	"github.com/dvloznov/vendor-insights/internal/revshare"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	_ = godotenv.Load()

	// Reports go to stdout, so logs stay on stderr.
	log := logger.New().Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runMetrics(log)
	case "categorize":
		runCategorize(log)
	case "enrich":
		runEnrich(log)
	case "fiscal":
		runFiscal(log)
	case "revshare":
		runRevShare(log)
	case "upload":
		runUpload(log)
	case "runs":
		runList(log)
	case "purge":
		runPurge(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Vendor Insights CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  run         Compute a metrics run against the configured warehouse")
	fmt.Println("  categorize  Label vendors from a transactions CSV and print summaries")
	fmt.Println("  enrich      Enrich a company snapshot CSV and print the report")
	fmt.Println("  fiscal      Show the fiscal year and quarter of a date")
	fmt.Println("  revshare    Compute the revenue share of one invoice")
	fmt.Println("  upload      Validate a CSV extract and upload it to Cloud Storage")
	fmt.Println("  runs        List recent metric runs")
	fmt.Println("  purge       Delete a run and its results")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func loadConfig(log zerolog.Logger) config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	return cfg
}

func parseMonth(log zerolog.Logger, name, value string) civil.Date {
	if value == "" {
		return civil.Date{}
	}
	d, err := fiscal.Parse(value)
	if err != nil {
		log.Fatal().Err(err).Str(name, value).Msg("Error: invalid date")
	}
	return fiscal.MonthStart(d)
}

func runMetrics(log zerolog.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	asOf := fs.String("as-of", "", "Evaluation month, YYYY-MM or YYYY-MM-DD (default: latest month with data)")
	from := fs.String("from", "", "First month read (default: 60 months before as-of)")
	source := fs.String("source", "", "Data source: bigquery, postgres or csv (default from config)")
	history := fs.Bool("history", false, "Label every month instead of as-of only")
	enrich := fs.Bool("enrich", false, "Run the benchmark enricher")
	export := fs.Bool("export", false, "Export reports to Cloud Storage")
	narrate := fs.Bool("narrate", false, "Generate the run narrative")
	fs.Parse(os.Args[2:])

	cfg := loadConfig(log)

	req := pipeline.Request{
		AsOf:    parseMonth(log, "as_of", *asOf),
		From:    parseMonth(log, "from", *from),
		Source:  *source,
		History: *history,
		Enrich:  *enrich,
		Export:  *export,
		Narrate: *narrate,
	}
	if req.Source == "" {
		req.Source = cfg.Source
	}
	if req.AsOf != (civil.Date{}) && req.From != (civil.Date{}) && req.AsOf.Before(req.From) {
		log.Fatal().Msg("Error: --as-of must not be before --from")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer svc.Close()

	deps, err := svc.Resolve(ctx, req.Source)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to resolve data source")
	}

	state, err := pipeline.RunMetrics(ctx, req, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Run failed")
	}

	fmt.Printf("Run %s completed for %s (%s): %d labels, %d vendors.\n",
		state.RunID, state.AsOf, state.Period, len(state.Labels), len(state.Summaries))
	for _, uri := range state.Reports {
		fmt.Println("  " + uri)
	}
	if n := state.Narrative; n != nil {
		fmt.Println()
		fmt.Println(n.Headline)
		for _, h := range n.Highlights {
			fmt.Println("  + " + h)
		}
		for _, r := range n.Risks {
			fmt.Println("  ! " + r)
		}
	}
}

func runCategorize(log zerolog.Logger) {
	fs := flag.NewFlagSet("categorize", flag.ExitOnError)
	transactions := fs.String("transactions", "", "Transactions CSV (local path)")
	invoices := fs.String("invoices", "", "Financed invoices CSV (optional)")
	asOf := fs.String("as-of", "", "Evaluation month (default: latest month with data)")
	pivot := fs.Bool("pivot", false, "Print the fiscal quarter pivot instead of summaries")
	fs.Parse(os.Args[2:])

	if *transactions == "" {
		log.Fatal().Msg("Error: --transactions is required")
	}

	cfg := loadConfig(log)
	rules, err := revshare.LoadTableFile(cfg.RevShare.RulesFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load revenue-share rules")
	}
	policy, err := cfg.Policy.CategoryPolicy()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid category policy")
	}

	ctx := logger.WithContext(context.Background(), log)

	// No warehouse or storage: nothing is persisted or exported.
	src := &pipeline.CSVSource{TransactionsPath: *transactions, InvoicesPath: *invoices}
	state, err := pipeline.RunMetrics(ctx, pipeline.Request{
		AsOf:   parseMonth(log, "as_of", *asOf),
		Source: config.SourceCSV,
	}, pipeline.Deps{Transactions: src, Rules: rules, Policy: policy})
	if err != nil {
		log.Fatal().Err(err).Msg("Categorization failed")
	}

	if *pivot {
		err = report.WritePivot(os.Stdout, report.PivotQuarters(state.VendorSeries))
	} else {
		err = report.WriteSummaries(os.Stdout, state.Summaries)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to write report")
	}
}

func runEnrich(log zerolog.Logger) {
	fs := flag.NewFlagSet("enrich", flag.ExitOnError)
	companies := fs.String("companies", "", "Company snapshot CSV")
	benchmarks := fs.Bool("benchmarks", false, "Print industry benchmarks instead of companies")
	fs.Parse(os.Args[2:])

	if *companies == "" {
		log.Fatal().Msg("Error: --companies is required")
	}

	f, err := os.Open(*companies)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open companies CSV")
	}
	defer f.Close()

	snapshots, err := ingest.ReadCompanies(f)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read companies CSV")
	}

	res, err := benchmark.Enrich(snapshots)
	if err != nil {
		log.Fatal().Err(err).Msg("Enrichment failed")
	}

	if *benchmarks {
		err = report.WriteBenchmarks(os.Stdout, res.Industries)
	} else {
		err = report.WriteEnrichment(os.Stdout, res.Companies)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to write report")
	}
}

func runFiscal(log zerolog.Logger) {
	fs := flag.NewFlagSet("fiscal", flag.ExitOnError)
	date := fs.String("date", "", "Date, YYYY-MM or YYYY-MM-DD (default: today)")
	fs.Parse(os.Args[2:])

	d := civil.DateOf(time.Now())
	if *date != "" {
		parsed, err := fiscal.Parse(*date)
		if err != nil {
			log.Fatal().Err(err).Str("date", *date).Msg("Error: invalid date")
		}
		d = parsed
	}

	p, ok := fiscal.PeriodOf(d)
	if !ok {
		log.Fatal().Str("date", d.String()).Msg("Error: date has no fiscal period")
	}
	fmt.Printf("Date:              %s\n", d)
	fmt.Printf("Fiscal year:       %s\n", p.YearLabel())
	fmt.Printf("Quarter:           %s\n", p)
	fmt.Printf("Quarter start:     %s\n", p.Start())
	fmt.Printf("Months to year end: %d\n", fiscal.MonthsToYearEnd(d))
}

func runRevShare(log zerolog.Logger) {
	fs := flag.NewFlagSet("revshare", flag.ExitOnError)
	rulesFile := fs.String("rules", "", "Revenue-share rules YAML (default from config, else built-in)")
	dump := fs.Bool("dump", false, "Print the rule table as YAML and exit")
	buyer := fs.Int64("buyer", 0, "Buyer ID")
	amount := fs.Float64("amount", 0, "Invoice amount in rupees")
	discount := fs.Float64("discount", 0, "Effective discount in rupees")
	rate := fs.Float64("rate", -1, "Discount rate in percent (default: discount / amount)")
	apr := fs.Float64("apr", -1, "APR in percent (omit when unknown)")
	days := fs.Float64("days", 0, "Days advanced")
	due := fs.String("due", "", "Due date, YYYY-MM-DD")
	clearance := fs.String("clearance", "", "Clearance date, YYYY-MM-DD")
	fs.Parse(os.Args[2:])

	path := *rulesFile
	if path == "" {
		if cfg, err := config.Load(); err == nil {
			path = cfg.RevShare.RulesFile
		}
	}
	table, err := revshare.LoadTableFile(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load revenue-share rules")
	}

	if *dump {
		out, err := revshare.MarshalRules(table.Rules())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to render rules")
		}
		os.Stdout.Write(out)
		return
	}

	if *buyer == 0 {
		log.Fatal().Msg("Error: --buyer is required")
	}

	inv := domain.FinancedInvoice{
		BuyerID:           *buyer,
		Amount:            *amount,
		EffectiveDiscount: *discount,
		DaysAdvanced:      *days,
		DueDate:           optionalDate(log, "due", *due),
		ClearanceDate:     optionalDate(log, "clearance", *clearance),
	}
	switch {
	case *rate >= 0:
		inv.DiscountRate = *rate
	case inv.Amount > 0:
		inv.DiscountRate = inv.EffectiveDiscount / inv.Amount * 100
	}
	if *apr >= 0 {
		inv.APR = domain.Float(*apr)
	}

	rule, ok := table.Rule(*buyer)
	if !ok {
		fmt.Printf("Buyer %d has no rule; revenue share is 0.\n", *buyer)
		return
	}
	fmt.Printf("Rule:          %s (%s)\n", rule.Name, rule.Kind)
	fmt.Printf("Revenue share: %.2f\n", table.Compute(inv))
}

func optionalDate(log zerolog.Logger, name, value string) civil.Date {
	if value == "" {
		return civil.Date{}
	}
	d, err := civil.ParseDate(value)
	if err != nil {
		log.Fatal().Err(err).Str(name, value).Msg("Error: invalid date, expected YYYY-MM-DD")
	}
	return d
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	kind := fs.String("kind", "transactions", "Extract kind: transactions, invoices or companies")
	bucketName := fs.String("bucket", "", "GCS bucket name (default from config)")
	objectName := fs.String("object", "", "GCS object name (defaults to extracts/<filename>)")
	filePath := fs.String("file", "", "Path to local CSV file")
	fs.Parse(os.Args[2:])

	if *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -file PATH [-kind KIND] [-bucket NAME] [-object NAME]")
	}
	if *bucketName == "" {
		*bucketName = loadConfig(log).GCP.Bucket
	}
	if *bucketName == "" {
		log.Fatal().Msg("Error: --bucket is required when gcp.bucket is not configured")
	}
	if *objectName == "" {
		*objectName = "extracts/" + filepath.Base(*filePath)
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read file")
	}

	// Reject extracts a run would fail on before they reach the bucket.
	var rows int
	switch *kind {
	case "transactions":
		recs, err := ingest.ReadTransactions(bytes.NewReader(data))
		rows = len(recs)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid transactions extract")
		}
	case "invoices":
		invs, err := ingest.ReadInvoices(bytes.NewReader(data))
		rows = len(invs)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid invoices extract")
		}
	case "companies":
		snaps, err := ingest.ReadCompanies(bytes.NewReader(data))
		rows = len(snaps)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid companies extract")
		}
	default:
		log.Fatal().Str("kind", *kind).Msg("Error: unknown extract kind")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	storage, err := gcsuploader.NewGCSStorageService(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer storage.Close()

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Int("rows", rows).
		Msg("Uploading extract to GCS")

	uri, err := storage.UploadBytes(ctx, *bucketName, *objectName, data, "text/csv")
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Uploaded %s (%d rows) to %s\n", *filePath, rows, uri)
}

func openRepository(ctx context.Context, log zerolog.Logger) *infraBQ.Repository {
	cfg := loadConfig(log)
	repo, err := infraBQ.NewRepository(ctx, infraBQ.Dataset{ProjectID: cfg.GCP.ProjectID, DatasetID: cfg.GCP.Dataset})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize BigQuery repository")
	}
	return repo
}

func runList(log zerolog.Logger) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of runs to show")
	fs.Parse(os.Args[2:])

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := openRepository(ctx, log)
	defer repo.Close()

	runs, err := repo.ListMetricRuns(ctx, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to list runs")
	}

	fmt.Printf("%-36s  %-10s  %-8s  %-9s  %s\n", "RUN ID", "AS OF", "SOURCE", "STATUS", "STARTED")
	for _, r := range runs {
		asOf := "latest"
		if r.AsOf.Valid {
			asOf = r.AsOf.Date.String()
		}
		line := fmt.Sprintf("%-36s  %-10s  %-8s  %-9s  %s",
			r.RunID, asOf, r.Source, r.Status, r.StartedTS.Format(time.RFC3339))
		if r.ErrorMessage != "" {
			line += "  " + strings.SplitN(r.ErrorMessage, "\n", 2)[0]
		}
		fmt.Println(line)
	}
}

func runPurge(log zerolog.Logger) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	runID := fs.String("run-id", "", "Run to delete")
	fs.Parse(os.Args[2:])

	if *runID == "" {
		log.Fatal().Msg("Error: --run-id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := openRepository(ctx, log)
	defer repo.Close()

	if err := repo.DeleteRun(ctx, *runID); err != nil {
		log.Fatal().Err(err).Msg("Purge failed")
	}
	fmt.Printf("Deleted run %s.\n", *runID)
}
