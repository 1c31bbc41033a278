package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/jzx17/cropflow/pkg/pipeline"
	"github.com/jzx17/cropflow/pkg/types"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
)

// printReport writes the batch summary, the outputs and the failures by stage
func printReport(w io.Writer, report pipeline.Report, stats types.PoolStats) {
	bold.Fprintf(w, "Batch %s\n", report.BatchID)

	summary := tablewriter.NewWriter(w)
	summary.Header("Attempted", "Loaded", "Transformed", "Succeeded", "Failed", "Timed out", "Duration")
	_ = summary.Append(
		fmt.Sprint(report.Attempted),
		fmt.Sprint(report.Loaded),
		fmt.Sprint(report.Transformed),
		fmt.Sprint(report.Succeeded),
		fmt.Sprint(len(report.Failures)),
		fmt.Sprint(stats.TimedOut),
		report.Duration.Round(time.Millisecond).String(),
	)
	_ = summary.Render()

	if len(report.Outputs) > 0 {
		outputs := tablewriter.NewWriter(w)
		outputs.Header("Job", "Key", "Size", "Bytes")
		for _, o := range report.Outputs {
			_ = outputs.Append(o.JobID, o.Key, fmt.Sprintf("%dx%d", o.Width, o.Height), fmt.Sprint(o.Size))
		}
		_ = outputs.Render()
	}

	if len(report.Failures) == 0 {
		green.Fprintln(w, "All jobs succeeded")
		return
	}

	byStage := make(map[pipeline.Stage][]string)
	for _, f := range report.Failures {
		byStage[f.Stage] = append(byStage[f.Stage], f.JobID)
	}
	stages := make([]string, 0, len(byStage))
	for s := range byStage {
		stages = append(stages, string(s))
	}
	sort.Strings(stages)

	yellow.Fprintf(w, "%d of %d jobs failed\n", len(report.Failures), report.Attempted)
	for _, s := range stages {
		ids := byStage[pipeline.Stage(s)]
		red.Fprintf(w, "  %s: %d\n", s, len(ids))
		for _, id := range ids {
			fmt.Fprintf(w, "    %s\n", id)
		}
	}
}
