package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Calibrant-Labs/theatre/core/pkg/canonicalize"
	"github.com/Calibrant-Labs/theatre/core/pkg/certificate"
	"github.com/Calibrant-Labs/theatre/core/pkg/config"
	"github.com/Calibrant-Labs/theatre/core/pkg/store"
	"github.com/Calibrant-Labs/theatre/core/pkg/template"
	"github.com/Calibrant-Labs/theatre/core/pkg/verifier"

	_ "modernc.org/sqlite" // SQLite driver
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "hash":
		return runHashCmd(args[2:], stdout, stderr)
	case "validate-template":
		return runValidateTemplateCmd(args[2:], stdout, stderr)
	case "inspect-cert":
		return runInspectCertCmd(args[2:], stdout, stderr)
	case "db-init":
		return runDBInitCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "theatre - verification and calibration engine")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  theatre <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	printCommand(w, "verify", "Verify an evidence bundle offline (--bundle, --json)")
	printCommand(w, "hash", "Canonicalize a JSON document and print its hash (--file)")
	printCommand(w, "validate-template", "Validate a theatre template document (--file, --json)")
	printCommand(w, "inspect-cert", "Parse and validate a calibration certificate (--file)")
	printCommand(w, "db-init", "Initialize the theatre database (--db)")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-19s %s\n", name, desc)
}

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		bundlePath string
		jsonOutput bool
	)
	cmd.StringVar(&bundlePath, "bundle", "", "Path to evidence bundle directory (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output report as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundlePath == "" {
		fmt.Fprintln(stderr, "Error: --bundle is required")
		cmd.Usage()
		return 2
	}

	report, err := verifier.VerifyBundle(bundlePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(report, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else {
		fmt.Fprintf(stdout, "%s\n", report.Summary)
		for _, c := range report.Checks {
			if c.Pass {
				fmt.Fprintf(stdout, "  PASS %s\n", c.Name)
			} else {
				fmt.Fprintf(stdout, "  FAIL %s: %s\n", c.Name, c.Reason)
			}
		}
	}

	if !report.Verified {
		return 1
	}
	return 0
}

func runHashCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("hash", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var filePath string
	cmd.StringVar(&filePath, "file", "", "Path to JSON document, or - for stdin (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if filePath == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		cmd.Usage()
		return 2
	}

	var raw []byte
	var err error
	if filePath == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(filePath)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error reading input: %v\n", err)
		return 2
	}

	canonical, err := canonicalize.Transform(raw)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, canonicalize.HashBytes(canonical))
	return 0
}

func runValidateTemplateCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate-template", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		filePath   string
		jsonOutput bool
	)
	cmd.StringVar(&filePath, "file", "", "Path to template JSON document (REQUIRED)")
	cmd.BoolVar(&jsonOutput, "json", false, "Output problems as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if filePath == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		cmd.Usage()
		return 2
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading template: %v\n", err)
		return 2
	}

	v, err := template.NewValidator()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	problems := v.ValidateDocument(raw)

	if jsonOutput {
		result := map[string]any{
			"file":     filePath,
			"valid":    len(problems) == 0,
			"problems": problems,
		}
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(stdout, string(data))
	} else if len(problems) == 0 {
		fmt.Fprintf(stdout, "Template valid: %s\n", filePath)
	} else {
		fmt.Fprintf(stdout, "Template invalid: %s\n", filePath)
		for _, p := range problems {
			fmt.Fprintf(stdout, "  - %s\n", p)
		}
	}

	if len(problems) > 0 {
		return 1
	}
	return 0
}

func runInspectCertCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("inspect-cert", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var filePath string
	cmd.StringVar(&filePath, "file", "", "Path to certificate JSON document (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if filePath == "" {
		fmt.Fprintln(stderr, "Error: --file is required")
		cmd.Usage()
		return 2
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading certificate: %v\n", err)
		return 2
	}

	issuer, err := certificate.NewIssuer()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	cert, err := issuer.ParseCertificate(raw)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid certificate: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Certificate: %s\n", cert.CertificateID)
	fmt.Fprintf(stdout, "  Theatre:    %s\n", cert.TheatreID)
	fmt.Fprintf(stdout, "  Construct:  %s\n", cert.ConstructID)
	fmt.Fprintf(stdout, "  Tier:       %s\n", cert.VerificationTier)
	fmt.Fprintf(stdout, "  Composite:  %.4f\n", cert.CompositeScore)
	fmt.Fprintf(stdout, "  Replays:    %d\n", cert.ReplayCount)
	fmt.Fprintf(stdout, "  Issued:     %s\n", cert.IssuedAt.Format("2006-01-02T15:04:05Z07:00"))
	if cert.ExpiresAt != nil {
		fmt.Fprintf(stdout, "  Expires:    %s\n", cert.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	} else {
		fmt.Fprintf(stdout, "  Expires:    never\n")
	}
	return 0
}

func runDBInitCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("db-init", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var dbURL string
	cmd.StringVar(&dbURL, "db", "", "Database URL (defaults to DATABASE_URL)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dbURL == "" {
		dbURL = config.Load().DatabaseURL
	}

	db, err := sql.Open("sqlite", dbURL)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening database: %v\n", err)
		return 2
	}
	defer db.Close()

	if err := store.NewSQLStore(db).Init(context.Background()); err != nil {
		fmt.Fprintf(stderr, "Error initializing schema: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Database initialized: %s\n", dbURL)
	return 0
}
