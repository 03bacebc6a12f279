// Command rollgrid runs a rolling-grid script and prints a JSON report of
// the session it leaves behind.
//
//	rollgrid [-config rollgrid.json] [-o report.json] [-mesh] [-v] script.rg
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/chazu/rollgrid/pkg/config"
	"github.com/chazu/rollgrid/pkg/monitoring"
)

func main() {
	configPath := flag.String("config", "", "JSON config file (defaults apply when empty)")
	output := flag.String("o", "", "write the report to this file instead of stdout")
	withMesh := flag.Bool("mesh", false, "include mesh arrays in the report")
	verbose := flag.Bool("v", false, "log shift and persistence details")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: rollgrid [flags] script.rg")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *configPath, *output, *withMesh, *verbose); err != nil {
		log.Fatalf("rollgrid: %v", err)
	}
}

func run(scriptPath, configPath, output string, withMesh, verbose bool) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return err
		}
	}
	monitoring.Verbose = verbose || cfg.Verbose

	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}

	result := NewApp(cfg).Evaluate(string(source))
	if !withMesh {
		result.Mesh = nil
	}

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := writeResult(w, result); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("script failed: %s", result.Errors[0].Message)
	}
	return nil
}

func writeResult(w io.Writer, result EvalResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
