package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-reports-api/internal/domain/model"
	"github.com/target/mmk-reports-api/internal/util"
	"gopkg.in/yaml.v3"
)

type outputFormat string

const (
	outputTable outputFormat = "table"
	outputJSON  outputFormat = "json"
	outputYAML  outputFormat = "yaml"
)

func parseOutputFormat(raw string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case outputTable, outputJSON, outputYAML:
		return f, nil
	case "yml":
		return outputYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (valid: table, json, yaml)", raw)
	}
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}

// renderJobs writes jobs in the requested format. Table output keeps one line per job.
func renderJobs(w io.Writer, format outputFormat, jobs []*model.ReportJob) error {
	if jobs == nil {
		jobs = []*model.ReportJob{}
	}
	switch format {
	case outputJSON:
		return renderJSON(w, jobs)
	case outputYAML:
		return renderYAML(w, jobs)
	}

	t := newTable(w)
	if err := writeln(t, "ID\tNAME\tTYPE\tSTATUS\tCREATED\tRESULT"); err != nil {
		return err
	}
	for _, j := range jobs {
		if err := writef(t, "%d\t%s\t%s\t%s\t%s\t%s\n",
			j.ID, j.Name, j.Type, j.Status, j.CreatedAt.UTC().Format(time.RFC3339), outcome(j),
		); err != nil {
			return err
		}
	}
	return t.Flush()
}

// renderJob writes a single job; the table form is a key/value listing.
func renderJob(w io.Writer, format outputFormat, job *model.ReportJob) error {
	switch format {
	case outputJSON:
		return renderJSON(w, job)
	case outputYAML:
		return renderYAML(w, job)
	}

	t := newTable(w)
	rows := [][2]string{
		{"ID", strconv.FormatInt(job.ID, 10)},
		{"Name", job.Name},
		{"Type", job.Type},
		{"Status", string(job.Status)},
		{"Created", job.CreatedAt.UTC().Format(time.RFC3339)},
		{"Updated", job.UpdatedAt.UTC().Format(time.RFC3339)},
	}
	if job.StartedAt != nil {
		rows = append(rows, [2]string{"Started", job.StartedAt.UTC().Format(time.RFC3339)})
	}
	if job.GeneratedAt != nil {
		rows = append(rows, [2]string{"Generated", job.GeneratedAt.UTC().Format(time.RFC3339)})
		rows = append(rows, [2]string{
			"Duration",
			util.FormatProcessingDuration(util.ProcessingDuration(job.StartedAt, job.GeneratedAt)),
		})
	}
	if job.ResultLocation != nil {
		rows = append(rows, [2]string{"Result", *job.ResultLocation})
	}
	if job.ErrorMessage != nil {
		rows = append(rows, [2]string{"Error", *job.ErrorMessage})
	}
	for _, r := range rows {
		if err := writef(t, "%s:\t%s\n", r[0], r[1]); err != nil {
			return err
		}
	}
	if len(job.Parameters) > 0 {
		params, err := json.Marshal(job.Parameters)
		if err != nil {
			return fmt.Errorf("encode parameters: %w", err)
		}
		if err := writef(t, "Parameters:\t%s\n", params); err != nil {
			return err
		}
	}
	return t.Flush()
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func renderYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func outcome(j *model.ReportJob) string {
	switch {
	case j.ResultLocation != nil:
		return *j.ResultLocation
	case j.ErrorMessage != nil:
		return *j.ErrorMessage
	default:
		return "-"
	}
}
