package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tracesig/internal/output/reportjson"
	"tracesig/internal/pipeline"
	"tracesig/internal/rules"
	"tracesig/pkg/models"
)

func main() {
	trace := flag.String("trace", "", "Path to a captured syscall trace")
	taskID := flag.String("task-id", "", "Task id recorded in the report (defaults to the trace name)")
	sigmaPath := flag.String("sigma-rules", "", "Optional Sigma rule file or directory")
	noBuiltin := flag.Bool("no-builtin", false, "Disable built-in signatures")
	output := flag.String("output", "output/report.jsonl", "Report JSONL output path")
	flag.Parse()

	if strings.TrimSpace(*trace) == "" {
		fmt.Fprintln(os.Stderr, "-trace is required")
		os.Exit(2)
	}

	var engine rules.Engine
	if strings.TrimSpace(*sigmaPath) != "" {
		sigmaEngine, stats, err := rules.NewSigmaEngine(*sigmaPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load sigma rules: %v\n", err)
			os.Exit(1)
		}
		engine = sigmaEngine
		fmt.Printf("sigma rules loaded=%d files=%d\n", stats.Loaded, stats.TotalFiles)
	}

	id := strings.TrimSpace(*taskID)
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(*trace), filepath.Ext(*trace))
	}

	analyzer := pipeline.NewAnalyzer(engine, !*noBuiltin)
	report, err := analyzer.AnalyzeTask(&models.Task{TaskID: id, TracePath: *trace})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to analyze trace: %v\n", err)
		os.Exit(1)
	}

	writer, err := reportjson.NewWriter(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create report writer: %v\n", err)
		os.Exit(1)
	}
	defer writer.Close()
	if err := writer.WriteReports([]*models.Report{report}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("analyzed task=%s processes=%d signatures=%d output=%s\n", report.TaskID, len(report.Processes), len(report.Signatures), *output)
}
