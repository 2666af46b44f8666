package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"example.com/readinmarsat/internal/common"
	"example.com/readinmarsat/internal/extract"
	"example.com/readinmarsat/internal/ingest"
	"example.com/readinmarsat/internal/inmarsat"
	"example.com/readinmarsat/internal/repair"
	"example.com/readinmarsat/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return nil
	}
	switch args[0] {
	case "decode":
		return decodeCmd(args[1:], out)
	case "repair":
		return repairCmd(args[1:], out)
	case "report":
		return reportCmd(args[1:], out)
	case "audit":
		return auditCmd(args[1:], out)
	case "help", "-h", "--help":
		usage(out)
		return nil
	}
	if len(args) == 1 && !strings.HasPrefix(args[0], "-") {
		// readinmarsat <base64 string>
		return decodeCmd([]string{"--b64", args[0]}, out)
	}
	usage(out)
	return fmt.Errorf("unknown command %q", args[0])
}

func usage(out io.Writer) {
	fmt.Fprintf(out, `readinmarsat %s (built %s)

Usage:
  readinmarsat <base64 string>
  readinmarsat <command> [options]

Commands:
  decode  [--b64 <data> | --in <file> | --pcap <file> [--port <n>] | --dial <host:port>] [--padding-strategy terminator|stored-time] [--json]
  repair  --in <file> --out <file> [--audit <audit.jsonl>] [--padding-strategy terminator|stored-time]
  report  --in <file> [--json <report.json>] [--pdf <report.pdf>] [--padding-strategy terminator|stored-time]
  audit   --log <audit.jsonl>
`, version, buildDate)
}

type inputFlags struct {
	b64      string
	in       string
	pcap     string
	port     uint16
	dial     string
	idle     time.Duration
	padding  string
	logLevel string
}

func (f *inputFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.b64, "b64", "b", "", "base64 encoded download")
	fs.StringVarP(&f.in, "in", "i", "", "raw download file")
	fs.StringVar(&f.pcap, "pcap", "", "pcap or pcapng capture of a download session")
	fs.Uint16Var(&f.port, "port", 0, "only use TCP segments to or from this port (with --pcap)")
	fs.StringVar(&f.dial, "dial", "", "read a download from host:port")
	fs.DurationVar(&f.idle, "idle", ingest.DefaultIdleTimeout, "idle timeout for --dial")
	fs.StringVar(&f.padding, "padding-strategy", string(repair.PaddingTerminator), "header padding check: terminator or stored-time")
	fs.StringVar(&f.logLevel, "log-level", "warning", "log level")
}

func (f *inputFlags) load() ([]byte, string, error) {
	if err := common.SetupLogging(common.LogConfig{Level: f.logLevel}); err != nil {
		return nil, "", err
	}
	set := 0
	for _, v := range []string{f.b64, f.in, f.pcap, f.dial} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, "", errors.New("exactly one of --b64, --in, --pcap or --dial is required")
	}
	switch {
	case f.b64 != "":
		b, err := ingest.FromBase64(f.b64)
		return b, "argument", err
	case f.in != "":
		b, err := ingest.ReadFile(f.in)
		return b, f.in, err
	case f.pcap != "":
		b, err := ingest.ReadPCAPFile(f.pcap, ingest.PcapFilter{Port: f.port})
		return b, f.pcap, err
	default:
		b, err := ingest.Dial(context.Background(), f.dial, f.idle)
		return b, f.dial, err
	}
}

func (f *inputFlags) extractor(m *common.Metrics) (*extract.Extractor, repair.PaddingStrategy, error) {
	p, err := repair.NewPipeline(repair.Options{Padding: repair.PaddingStrategy(f.padding)})
	if err != nil {
		return nil, "", err
	}
	strategy, _ := repair.ParsePaddingStrategy(f.padding)
	return extract.New(extract.WithPipeline(p), extract.WithMetrics(m)), strategy, nil
}

func decodeCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	var in inputFlags
	in.register(fs)
	asJSON := fs.Bool("json", false, "print the decode report as JSON")
	stats := fs.Bool("stats", false, "print counters after decoding")
	if err := fs.Parse(args); err != nil {
		return err
	}
	data, source, err := in.load()
	if err != nil {
		return err
	}
	metrics := common.NewMetrics()
	metrics.Start()
	ex, strategy, err := in.extractor(metrics)
	if err != nil {
		return err
	}
	res, err := ex.Decode(data)
	metrics.Stop()
	if err != nil && !errors.Is(err, extract.ErrNoMarkers) {
		return err
	}
	if *asJSON {
		rep := report.Build(source, string(strategy), res)
		return writeIndentedJSON(out, rep)
	}
	if len(res.Repaired) > len(data) {
		fmt.Fprintf(out, "Message fixed: %X -> %X\n", data, res.Repaired)
	}
	printMessages(out, data, res.Messages)
	if *stats {
		fmt.Fprintln(out, metrics.Snapshot().String())
	}
	return nil
}

func writeIndentedJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printMessages writes every header and body field on its own line.
func printMessages(out io.Writer, raw []byte, msgs []*inmarsat.Message) {
	if len(msgs) == 0 {
		fmt.Fprintln(out, "Not an inmarsat message")
		fmt.Fprintln(out, string(raw))
		return
	}
	for _, m := range msgs {
		fmt.Fprintln(out, formatFields(m.Header.String()))
		if m.Body != nil {
			fmt.Fprintln(out, formatFields(m.Body.String()))
		} else {
			fmt.Fprintln(out, "No BODY")
		}
	}
}

func formatFields(s string) string {
	var b strings.Builder
	for _, field := range report.SplitFields(s) {
		b.WriteString(field)
		b.WriteByte('\n')
	}
	return b.String()
}

func repairCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("repair", pflag.ContinueOnError)
	var in inputFlags
	in.register(fs)
	outPath := fs.StringP("out", "o", "", "repaired output file")
	auditPath := fs.String("audit", "", "append insertions to this JSONL audit log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outPath == "" {
		return errors.New("--out is required")
	}
	data, source, err := in.load()
	if err != nil {
		return err
	}
	p, err := repair.NewPipeline(repair.Options{Padding: repair.PaddingStrategy(in.padding)})
	if err != nil {
		return err
	}
	res := p.Run(data)
	if err := common.WriteFileAtomic(*outPath, res.Output, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", *outPath, err)
	}
	if *auditPath != "" && res.Inserted() > 0 {
		if err := common.NewPatchLog(*auditPath).Append(res.PatchEntries(source)...); err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CORRECTOR\tMARKER\tOFFSET\tFILL")
	for _, row := range report.InsertionRows(res.Insertions()) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", row.Corrector, row.Marker, row.Offset, row.Fill)
	}
	tw.Flush()
	fmt.Fprintf(out, "%d bytes inserted, wrote %s (%s)\n", res.Inserted(), *outPath, common.FormatBytes(int64(len(res.Output))))
	return nil
}

func reportCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("report", pflag.ContinueOnError)
	var in inputFlags
	in.register(fs)
	jsonPath := fs.String("json", "", "write the JSON report here")
	pdfPath := fs.String("pdf", "", "write the PDF report here")
	title := fs.String("title", "", "PDF title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jsonPath == "" && *pdfPath == "" {
		return errors.New("at least one of --json or --pdf is required")
	}
	data, source, err := in.load()
	if err != nil {
		return err
	}
	ex, strategy, err := in.extractor(nil)
	if err != nil {
		return err
	}
	res, err := ex.Decode(data)
	if err != nil && !errors.Is(err, extract.ErrNoMarkers) {
		return err
	}
	rep := report.Build(source, string(strategy), res)
	if *jsonPath != "" {
		if err := report.SaveJSON(rep, *jsonPath); err != nil {
			return fmt.Errorf("save json: %w", err)
		}
		fmt.Fprintf(out, "wrote %s\n", *jsonPath)
	}
	if *pdfPath != "" {
		if err := report.SavePDF(rep, *pdfPath, report.PDFOptions{Title: *title}); err != nil {
			return fmt.Errorf("save pdf: %w", err)
		}
		fmt.Fprintf(out, "wrote %s\n", *pdfPath)
	}
	return nil
}

func auditCmd(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("audit", pflag.ContinueOnError)
	logPath := fs.StringP("log", "l", "", "JSONL audit log")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *logPath == "" {
		return errors.New("--log is required")
	}
	entries, err := common.ReadPatchLog(*logPath)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSOURCE\tCORRECTOR\tOFFSET\tFILL\tHEADER")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.Ts.Format(time.RFC3339), e.Source, e.Corrector, e.Offset, strings.ToUpper(e.InsertedHex), strings.ToUpper(e.HeaderHex))
	}
	return tw.Flush()
}
