// Command culverin is an HTTP load generator. The attack subcommand issues
// requests against a target set at a fixed rate and records every outcome
// as line-delimited JSON; report, encode, and plot operate on recorded
// result streams.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/muhadif/culverin/internal/attack"
	"github.com/muhadif/culverin/internal/config"
	"github.com/muhadif/culverin/internal/report"
	"github.com/muhadif/culverin/internal/targets"
)

const usage = `usage: culverin <command> [flags]

Commands:
  attack   run a load test
  report   generate reports from recorded results (stdin)
  encode   re-encode recorded results (stdin) to json or csv
  plot     generate an HTML plot from recorded results (stdin)
`

// multiFlag collects repeated string flags in order.
type multiFlag []string

func (m *multiFlag) String() string {
	return strings.Join(*m, ", ")
}

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "attack":
		err = runAttack(os.Args[2:])
	case "report":
		err = runReport(os.Args[2:])
	case "encode":
		err = runEncode(os.Args[2:])
	case "plot":
		err = runPlot(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "culverin: %v\n", err)
		os.Exit(1)
	}
}

func runAttack(args []string) error {
	fs := flag.NewFlagSet("attack", flag.ExitOnError)

	var headers, proxyHeaders multiFlag
	body := fs.String("body", "", "Requests body file")
	chunked := fs.Bool("chunked", false, "Send body with chunked transfer encoding")
	connections := fs.Int("connections", 10000, "Max open idle connections per target host")
	dnsTTL := fs.Duration("dns-ttl", 0, "DNS cache TTL (reserved: accepted but not applied; lookups are not cached)")
	duration := fs.Duration("duration", 0, "Duration of the test [0 = forever]")
	format := fs.String("format", "http", "Targets format [http, json, file]")
	h2c := fs.Bool("h2c", false, "Send HTTP/2 requests without TLS encryption")
	fs.Var(&headers, "header", "Request header (repeatable)")
	http2 := fs.Bool("http2", true, "Send HTTP/2 requests when supported by the server")
	insecure := fs.Bool("insecure", false, "Ignore invalid server TLS certificates")
	keepalive := fs.Bool("keepalive", true, "Use persistent connections")
	laddr := fs.String("laddr", "0.0.0.0", "Local IP address")
	lazy := fs.Bool("lazy", false, "Read targets lazily (reserved: accepted but not applied; targets are read eagerly)")
	maxBody := fs.Int64("max-body", -1, "Maximum number of bytes to capture from response bodies [-1 = no limit]")
	maxConnections := fs.Int("max-connections", 0, "Max connections per target host [0 = no limit]")
	maxWorkers := fs.Int("max-workers", 0, "Maximum number of workers")
	name := fs.String("name", "", "Attack name")
	otelAddr := fs.String("opentelemetry-addr", "", "OpenTelemetry metrics endpoint [empty = disabled, stdout = standard output]")
	output := fs.String("output", "stdout", "Output file")
	fs.Var(&proxyHeaders, "proxy-header", "Header appended to every dispatched request (repeatable)")
	rate := fs.String("rate", "50/1s", "Number of requests per time unit [0 = infinity]")
	redirects := fs.Int("redirects", 10, "Number of redirects to follow. -1 will not follow")
	targetsPath := fs.String("targets", "stdin", "Targets file")
	timeout := fs.Duration("timeout", config.DefaultHTTPTimeout, "Requests timeout")
	tolerance := fs.Float64("tolerance", 0, "Accepted shortfall fraction of the promised request count")
	workers := fs.Int("workers", 0, "Initial number of workers [0 = detected CPUs]")
	fs.Parse(args)

	rateValue, err := config.ParseRate(*rate)
	if err != nil {
		return err
	}

	parsedHeaders, err := targets.ParseHeaders(headers)
	if err != nil {
		return err
	}
	parsedProxyHeaders, err := targets.ParseHeaders(proxyHeaders)
	if err != nil {
		return err
	}

	var bodyContent []byte
	if *body != "" {
		bodyContent, err = os.ReadFile(*body)
		if err != nil {
			return fmt.Errorf("read body file: %w", err)
		}
	}

	targetList, err := targets.Load(*targetsPath, *format, filepath.Dir(*targetsPath))
	if err != nil {
		return err
	}

	cfg := &config.AttackConfig{
		Rate:              rateValue,
		Duration:          *duration,
		HTTPTimeout:       *timeout,
		Timeout:           *timeout,
		Workers:           *workers,
		MaxWorkers:        *maxWorkers,
		Connections:       *connections,
		MaxConnections:    *maxConnections,
		KeepAlive:         *keepalive,
		HTTP2:             *http2,
		H2C:               *h2c,
		Insecure:          *insecure,
		Redirects:         *redirects,
		LocalAddr:         *laddr,
		MaxBody:           *maxBody,
		DNSTTL:            *dnsTTL,
		Lazy:              *lazy,
		OpenTelemetryAddr: *otelAddr,
		Name:              *name,
		Tolerance:         *tolerance,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	atk, err := attack.New(ctx, attack.Options{
		Config:       cfg,
		Targets:      targetList,
		Headers:      parsedHeaders,
		ProxyHeaders: parsedProxyHeaders,
		Body:         bodyContent,
		Chunked:      *chunked,
		Output:       *output,
		Progress:     os.Stderr,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	runErr := atk.Run(ctx)

	report.WriteSummary(os.Stdout, atk.Metrics().Snapshot())
	return runErr
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	buckets := fs.String("buckets", "", `Histogram buckets, e.g.: "[0,1ms,10ms]"`)
	output := fs.String("output", "stdout", "Output file")
	reportType := fs.String("type", "text", "Report type to generate [text, json, hist[buckets], hdrplot]")
	fs.Parse(args)

	results, err := report.ReadOutcomes(os.Stdin)
	if err != nil {
		return err
	}

	w, closeFn, err := openOutput(*output)
	if err != nil {
		return err
	}
	defer closeFn()

	if strings.HasPrefix(*reportType, "hist[") && strings.HasSuffix(*reportType, "]") {
		b, err := report.ParseBuckets(strings.TrimPrefix(strings.TrimSuffix(*reportType, "]"), "hist"))
		if err != nil {
			return err
		}
		return report.Histogram(w, results, b)
	}

	switch *reportType {
	case "text":
		return report.Text(w, results)
	case "json":
		return report.JSON(w, results)
	case "hdrplot":
		return report.HDRPlot(w, results)
	case "hist":
		b, err := report.ParseBuckets(*buckets)
		if err != nil {
			return err
		}
		return report.Histogram(w, results, b)
	default:
		return fmt.Errorf("unsupported report type %q", *reportType)
	}
}

func runEncode(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	output := fs.String("output", "stdout", "Output file")
	to := fs.String("to", "json", "Output encoding [csv, json]")
	fs.Parse(args)

	results, err := report.ReadOutcomes(os.Stdin)
	if err != nil {
		return err
	}

	w, closeFn, err := openOutput(*output)
	if err != nil {
		return err
	}
	defer closeFn()

	return report.Encode(w, results, *to)
}

func runPlot(args []string) error {
	fs := flag.NewFlagSet("plot", flag.ExitOnError)
	output := fs.String("output", "stdout", "Output file")
	threshold := fs.Int("threshold", 4000, "Threshold of data points above which series are downsampled")
	title := fs.String("title", "Culverin Plot", "Title and header of the resulting HTML page")
	fs.Parse(args)

	results, err := report.ReadOutcomes(os.Stdin)
	if err != nil {
		return err
	}

	w, closeFn, err := openOutput(*output)
	if err != nil {
		return err
	}
	defer closeFn()

	return report.Plot(w, results, *threshold, *title)
}

func openOutput(path string) (io.Writer, func() error, error) {
	if path == "stdout" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output file: %w", err)
	}
	return f, f.Close, nil
}
