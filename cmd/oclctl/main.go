package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"example.com/oclfilt/internal/catalog"
	"example.com/oclfilt/internal/common"
	"example.com/oclfilt/internal/config"
	"example.com/oclfilt/internal/manifest"
	"example.com/oclfilt/internal/ocl"
	"example.com/oclfilt/internal/pipeline"
	"example.com/oclfilt/internal/report"
	"example.com/oclfilt/internal/samples"
	"example.com/oclfilt/internal/soundspeed"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "filter":
		err = filterCmd(ctx, args, os.Stdin, os.Stdout)
	case "latlons":
		err = latlonsCmd(ctx, args, os.Stdin, os.Stdout)
	case "ssp":
		err = sspCmd(ctx, args, os.Stdin, os.Stdout)
	case "catalog":
		err = catalogCmd(ctx, args, os.Stdin, os.Stdout)
	case "manifest":
		err = manifestCmd(args, os.Stdout)
	case "verify-manifest":
		err = verifyManifestCmd(args, os.Stdout)
	case "report":
		err = reportCmd(args, os.Stdout)
	case "generate":
		err = generateCmd(args, os.Stdout)
	default:
		usage()
		return
	}
	common.CloseLogFile()
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf(`oclctl %s (built %s) <command> [options]

Commands:
  filter    [--in <file.ocl>] [--out <file>] [--config <profile.yaml>] [--format text|ndjson|msgpack]
            [--query | --stats | --dump] [--vars 1,2] [--levels N] [--region w/e/s/n] [--years a,b] [--months a,b]
            [--grid-square NNNN] [--bottom shallow,deep] [--bathy <file> --bathy-check trust|index|coords]
            [--skip N] [--limit N] [--no-titles] [--include-flagged] [--audit <decisions.jsonl>]
            [--summary <summary.json>] [--metrics] [--progress] [--log-file <file>]
  latlons   [--in <file.ocl>] [--grid-square NNNN] [--out <file>]
  ssp       [--in <file.ocl>] [--comp-sal <ppt>] [--bin <m>] [--label <text>] [--no-titles] [--out <file>]
  catalog   --db <catalog.sqlite> [--in <file.ocl>] [--run-id <uuid>] [--vars 1,2] [--bathy <file>]
  manifest  --inputs <comma-separated> --out <manifest.json> [--run-id <uuid>] [--sign --key <key.pem> [--sig-out <file>]]
  verify-manifest --manifest <manifest.json> [--sig <manifest.json.jwt> --pub <pub.pem>]
  report    --summary <summary.json> --pdf <report.pdf>
  generate  [--out-dir <dir>] [--stations N] [--seed N]
`, version, buildDate)
}

// openInput returns stdin for "" or "-".
func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func openBathymetry(path string) (*ocl.BathymetryReader, func(), error) {
	if strings.TrimSpace(path) == "" {
		return nil, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("bathymetry: %w", err)
	}
	return ocl.NewBathymetryReader(f), func() { f.Close() }, nil
}

// filterFlags binds the profile-shaped flags shared by filter and catalog.
type filterFlags struct {
	fs         *flag.FlagSet
	configPath *string
	vars       *string
	minLevels  *int64
	region     *string
	years      *string
	months     *string
	grid       *string
	bottom     *string
	bathy      *string
	bathyCheck *string
	skip       *int64
	limit      *int64
	maxLevels  *int
}

func bindFilterFlags(fs *flag.FlagSet) *filterFlags {
	return &filterFlags{
		fs:         fs,
		configPath: fs.String("config", "", "YAML filter profile"),
		vars:       fs.String("vars", "", "required variable codes, comma-separated"),
		minLevels:  fs.Int64("levels", 0, "minimum number of profile levels"),
		region:     fs.String("region", "", "bounding box west/east/south/north"),
		years:      fs.String("years", "", "year range min,max"),
		months:     fs.String("months", "", "month range min,max"),
		grid:       fs.String("grid-square", "", "WMO square of the input, enables zero-coordinate checks"),
		bottom:     fs.String("bottom", "", "bottom depth window shallow,deep in metres"),
		bathy:      fs.String("bathy", "", "bathymetry side-channel file"),
		bathyCheck: fs.String("bathy-check", "", "bathymetry check: trust, index or coords"),
		skip:       fs.Int64("skip", 0, "skip records before this 0-based index"),
		limit:      fs.Int64("limit", 0, "stop after this many output stations"),
		maxLevels:  fs.Int("max-levels", 0, "profile levels stored per station"),
	}
}

// profile merges the --config file with every flag set on the command line.
func (f *filterFlags) profile() (config.Profile, error) {
	var p config.Profile
	if *f.configPath != "" {
		var err error
		if p, err = config.LoadProfile(*f.configPath); err != nil {
			return p, err
		}
	}
	var err error
	f.fs.Visit(func(fl *flag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "vars":
			p.Variables, err = config.ParseCodes(*f.vars)
		case "levels":
			p.MinLevels = *f.minLevels
		case "region":
			p.Region, err = config.ParseRegion(*f.region)
		case "years":
			p.Years, err = config.ParseIntRange(*f.years)
		case "months":
			p.Months, err = config.ParseIntRange(*f.months)
		case "grid-square":
			p.GridSquare = *f.grid
		case "bottom":
			p.Bottom, err = config.ParseDepthWindow(*f.bottom)
		case "bathy":
			p.Bathymetry = *f.bathy
		case "bathy-check":
			p.BathymetryCheck = *f.bathyCheck
		case "skip":
			p.SkipTo = *f.skip
		case "limit":
			p.Limit = *f.limit
		case "max-levels":
			p.MaxLevels = *f.maxLevels
		}
		if err != nil {
			err = fmt.Errorf("--%s: %w", fl.Name, err)
		}
	})
	if err != nil {
		return p, err
	}
	return p, p.Validate()
}

func decoderOptions(p config.Profile, wantProfile bool) (ocl.Options, error) {
	check, err := ocl.ParseBathymetryCheck(p.BathymetryCheck)
	if err != nil {
		return ocl.Options{}, err
	}
	return ocl.Options{
		WantProfile:     wantProfile,
		SkipTo:          p.SkipTo,
		Criteria:        p.Criteria(),
		BathymetryCheck: check,
		MaxLevels:       p.MaxLevels,
	}, nil
}

func filterCmd(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("filter", flag.ContinueOnError)
	ff := bindFilterFlags(fs)
	in := fs.String("in", "", "input OCL file (default stdin)")
	out := fs.String("out", "", "output file (default stdout)")
	format := fs.String("format", "text", "output format: text, ndjson or msgpack")
	stats := fs.Bool("stats", false, "print end statistics only")
	dump := fs.Bool("dump", false, "print every decoded field")
	query := fs.Bool("query", false, "print one summary line per station")
	noTitles := fs.Bool("no-titles", false, "omit station headings")
	includeFlagged := fs.Bool("include-flagged", false, "keep flagged levels and print error flags")
	auditPath := fs.String("audit", "", "decision log output (jsonl)")
	summaryPath := fs.String("summary", "", "run summary output (json)")
	metricsFlag := fs.Bool("metrics", false, "print throughput metrics")
	progressFlag := fs.Bool("progress", false, "display progress updates")
	logFile := fs.String("log-file", "", "copy log lines into this rotating file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *logFile != "" {
		cfg := common.LogConfig{Directory: filepath.Dir(*logFile), FileName: filepath.Base(*logFile)}
		if err := common.ConfigureLogFile(cfg, os.Stderr); err != nil {
			return err
		}
	}
	modes := 0
	for _, m := range []bool{*stats, *dump, *query} {
		if m {
			modes++
		}
	}
	if modes > 1 {
		return errors.New("--stats, --dump and --query are exclusive")
	}
	structured := *format != "text"
	var recFormat report.Format
	if structured {
		var err error
		if recFormat, err = report.ParseFormat(*format); err != nil {
			return err
		}
		if *dump {
			return errors.New("--dump needs --format text")
		}
	}

	p, err := ff.profile()
	if err != nil {
		return err
	}
	if *noTitles {
		p.NoTitles = true
	}
	if *includeFlagged {
		p.IncludeFlagged = true
	}
	headerOnly := *stats || *query
	opts, err := decoderOptions(p, !headerOnly)
	if err != nil {
		return err
	}
	bathy, closeBathy, err := openBathymetry(p.Bathymetry)
	if err != nil {
		return err
	}
	defer closeBathy()
	opts.Bathymetry = bathy

	r, closeIn, err := openInput(*in, stdin)
	if err != nil {
		return err
	}
	defer closeIn()
	w, closeOut, err := openOutput(*out, stdout)
	if err != nil {
		return err
	}
	digest := common.NewDigestWriter(w)

	var audit *common.AuditLog
	if *auditPath != "" {
		if audit, err = common.OpenAuditLog(*auditPath); err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
		defer audit.Close()
	}
	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		if f, ok := r.(*os.File); ok {
			metrics.SetTotalBytes(common.FileSize(f))
		}
	}

	text := report.NewTextWriter(digest)
	text.Titles = !p.NoTitles
	text.IncludeFlagged = p.IncludeFlagged
	text.Variables = p.Variables
	var records *report.RecordWriter
	var sink pipeline.SinkFunc
	switch {
	case structured:
		records = report.NewRecordWriter(digest, recFormat)
		sink = func(st *ocl.Station) error { return records.WriteStation(st, !headerOnly) }
	case *stats:
		sink = func(*ocl.Station) error { return nil }
	case *query:
		if text.Titles {
			if err := text.WriteQueryHeader(); err != nil {
				return err
			}
		}
		sink = text.WriteQuery
	case *dump:
		sink = text.WriteDump
	default:
		sink = text.WriteStation
	}

	var stopProgress func()
	if metrics != nil && *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, metrics, 500*time.Millisecond)
	}
	summary, runErr := pipeline.Run(ctx, r, sink, pipeline.Options{
		Decoder: opts,
		Bottom:  p.Bottom,
		Limit:   p.Limit,
		RunID:   manifest.NewRunID(),
		Audit:   audit,
		Metrics: metrics,
	})
	if stopProgress != nil {
		stopProgress()
	}
	summary.FlaggedLevels = text.FlaggedLevels
	if runErr == nil && !structured && headerOnly {
		runErr = text.WriteSummary(summary)
	}
	if records != nil {
		if err := records.Flush(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if err := closeOut(); err != nil && runErr == nil {
		runErr = err
	}
	summary.Output = *out
	summary.OutputSHA256 = digest.Sum()
	if *in != "" && *in != "-" {
		summary.Input = *in
		if sum, _, err := common.Sha256OfFile(*in); err == nil {
			summary.InputSHA256 = sum
		}
	}
	if *summaryPath != "" {
		if err := report.SaveSummaryJSON(summary, *summaryPath); err != nil && runErr == nil {
			runErr = fmt.Errorf("write summary: %w", err)
		}
	}
	if metrics != nil && *metricsFlag {
		fmt.Fprintf(os.Stderr, "Metrics: %s\n", common.FormatSummary(metrics.Snapshot()))
	}
	common.Logf("filter: %d / %d stations, %d / %d bytes",
		summary.OutputStations, summary.TotalStations, summary.OutputBytes, summary.TotalBytes)
	return runErr
}

// latlonsCmd prints the position of every station for an external
// bathymetry sampler. Unusable positions get the placeholder coordinate so
// line numbers stay aligned with station indexes.
func latlonsCmd(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("latlons", flag.ContinueOnError)
	in := fs.String("in", "", "input OCL file (default stdin)")
	out := fs.String("out", "", "output file (default stdout)")
	grid := fs.String("grid-square", "", "WMO square of the input")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *grid != "" {
		if err := config.ValidateGridSquare(*grid); err != nil {
			return err
		}
	}
	r, closeIn, err := openInput(*in, stdin)
	if err != nil {
		return err
	}
	defer closeIn()
	w, closeOut, err := openOutput(*out, stdout)
	if err != nil {
		return err
	}
	dec := ocl.NewDecoder(r, ocl.Options{})
	for {
		if err := ctx.Err(); err != nil {
			closeOut()
			return err
		}
		st, _, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			closeOut()
			return err
		}
		lon, lat := st.Longitude, st.Latitude
		if !ocl.UsableCoordinate(lat, lon, *grid) {
			lon, lat = samples.PlaceholderLongitude, samples.PlaceholderLatitude
		}
		if err := report.WriteLatLon(w, lon, lat, st.Index); err != nil {
			closeOut()
			return err
		}
	}
	return closeOut()
}

// sspCmd decodes temperature profiles and pipes their column form through
// the sound speed processor.
func sspCmd(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("ssp", flag.ContinueOnError)
	ff := bindFilterFlags(fs)
	in := fs.String("in", "", "input OCL file (default stdin)")
	out := fs.String("out", "", "output file (default stdout)")
	compSal := fs.Float64("comp-sal", -1, "comparison salinity in ppt")
	bin := fs.Float64("bin", 0, "depth bin size in metres")
	label := fs.String("label", "", "title label")
	noTitles := fs.Bool("no-titles", false, "omit column titles")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bin < 0 {
		return errors.New("--bin must not be negative")
	}
	p, err := ff.profile()
	if err != nil {
		return err
	}
	if !containsCode(p.Variables, 1) {
		p.Variables = append(p.Variables, 1)
	}
	opts, err := decoderOptions(p, true)
	if err != nil {
		return err
	}
	bathy, closeBathy, err := openBathymetry(p.Bathymetry)
	if err != nil {
		return err
	}
	defer closeBathy()
	opts.Bathymetry = bathy

	r, closeIn, err := openInput(*in, stdin)
	if err != nil {
		return err
	}
	defer closeIn()
	w, closeOut, err := openOutput(*out, stdout)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	go func() {
		text := report.NewTextWriter(pw)
		text.Variables = p.Variables
		_, err := pipeline.Run(ctx, r, pipeline.SinkFunc(text.WriteStation), pipeline.Options{
			Decoder: opts,
			Bottom:  p.Bottom,
			Limit:   p.Limit,
		})
		pw.CloseWithError(err)
	}()
	sopts := soundspeed.Options{BinSize: *bin, Titles: !*noTitles, Label: *label}
	if *compSal >= 0 {
		sopts.CompSalinity = compSal
	}
	err = soundspeed.Process(pr, w, sopts)
	pr.CloseWithError(err)
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	return err
}

func containsCode(codes []int64, code int64) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// catalogCmd loads station headers into a SQLite catalog, one run per call.
func catalogCmd(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	ff := bindFilterFlags(fs)
	in := fs.String("in", "", "input OCL file (default stdin)")
	dbPath := fs.String("db", "", "catalog database")
	runID := fs.String("run-id", "", "run identifier (default random)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("required: --db")
	}
	p, err := ff.profile()
	if err != nil {
		return err
	}
	opts, err := decoderOptions(p, false)
	if err != nil {
		return err
	}
	bathy, closeBathy, err := openBathymetry(p.Bathymetry)
	if err != nil {
		return err
	}
	defer closeBathy()
	opts.Bathymetry = bathy
	id := *runID
	if id == "" {
		id = manifest.NewRunID()
	}
	r, closeIn, err := openInput(*in, stdin)
	if err != nil {
		return err
	}
	defer closeIn()

	cat, err := catalog.Open(*dbPath)
	if err != nil {
		return err
	}
	defer cat.Close()
	batch, err := cat.BeginRun(ctx, id, *in)
	if err != nil {
		return err
	}
	summary, err := pipeline.Run(ctx, r, batch, pipeline.Options{
		Decoder: opts,
		Bottom:  p.Bottom,
		Limit:   p.Limit,
		RunID:   id,
	})
	if err != nil {
		batch.Rollback()
		return err
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	counts, err := cat.SourceCounts(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Run %s: %d of %d stations catalogued in %s\n", id, batch.Count(), summary.TotalStations, *dbPath)
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATIONS")
	sources := make([]string, 0, len(counts))
	for s := range counts {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	for _, s := range sources {
		fmt.Fprintf(tw, "%s\t%d\n", s, counts[s])
	}
	return tw.Flush()
}

func manifestCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("manifest", flag.ContinueOnError)
	inputs := fs.String("inputs", "", "comma-separated files")
	out := fs.String("out", "manifest.json", "manifest output")
	runID := fs.String("run-id", "", "run identifier (default random)")
	sign := fs.Bool("sign", false, "sign the manifest")
	keyPath := fs.String("key", "", "RSA private key (PEM) for --sign")
	sigOut := fs.String("sig-out", "", "signature output (default <out>.jwt)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sign && *keyPath == "" {
		return errors.New("--sign requires --key")
	}
	var paths []string
	for _, p := range strings.Split(*inputs, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return errors.New("required: --inputs")
	}
	m, err := manifest.Build(*runID, paths)
	if err != nil {
		return err
	}
	if err := manifest.Save(m, *out); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s (run %s, %d items)\n", *out, m.RunID, len(m.Items))
	if !*sign {
		return nil
	}
	sigPath := *sigOut
	if sigPath == "" {
		sigPath = *out + ".jwt"
	}
	if err := manifest.SignFile(m, *keyPath, sigPath); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Signature: %s\n", sigPath)
	return nil
}

func verifyManifestCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("verify-manifest", flag.ContinueOnError)
	path := fs.String("manifest", "manifest.json", "manifest to check")
	sigPath := fs.String("sig", "", "signature to check")
	pubPath := fs.String("pub", "", "RSA public key or certificate (PEM) for --sig")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if (*sigPath == "") != (*pubPath == "") {
		return errors.New("--sig and --pub go together")
	}
	m, err := manifest.Load(*path)
	if err != nil {
		return err
	}
	if *sigPath != "" {
		claims, err := manifest.VerifyFile(m, *sigPath, *pubPath)
		if err != nil {
			return err
		}
		signed := "unknown"
		if claims.IssuedAt != nil {
			signed = claims.IssuedAt.Time.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(stdout, "Signature OK: run %s signed %s\n", claims.ID, signed)
	}
	if err := manifest.Verify(m); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Manifest OK: %d items match\n", len(m.Items))
	return nil
}

func reportCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	summaryPath := fs.String("summary", "summary.json", "run summary json")
	pdfPath := fs.String("pdf", "summary.pdf", "PDF output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := report.LoadSummaryJSON(*summaryPath)
	if err != nil {
		return err
	}
	if err := report.SaveSummaryPDF(s, *pdfPath); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", *pdfPath)
	return nil
}

func generateCmd(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	outDir := fs.String("out-dir", ".", "output directory")
	stations := fs.Int("stations", samples.DefaultStations, "number of stations")
	seed := fs.Int64("seed", samples.DefaultSeed, "random seed")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stations <= 0 {
		return errors.New("--stations must be positive")
	}
	if err := samples.WriteFiles(*outDir, *stations, *seed); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s and %s\n",
		filepath.Join(*outDir, samples.OCLFileName),
		filepath.Join(*outDir, samples.BathymetryFileName))
	return nil
}
