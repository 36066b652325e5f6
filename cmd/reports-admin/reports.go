package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/target/mmk-reports-api/internal/bootstrap"
	"github.com/target/mmk-reports-api/internal/domain/model"
)

type listFlags struct {
	status string
	kind   string
	where  string
	limit  int
	offset int
	output string
}

func (f listFlags) options() (model.ReportListOptions, error) {
	opts := model.ReportListOptions{
		Where:  strings.TrimSpace(f.where),
		Limit:  f.limit,
		Offset: f.offset,
	}
	if s := strings.TrimSpace(f.status); s != "" {
		status := model.ReportStatus(strings.ToUpper(s))
		if !status.Valid() {
			return opts, fmt.Errorf("invalid status %q", f.status)
		}
		opts.Status = &status
	}
	if t := strings.TrimSpace(f.kind); t != "" {
		opts.Type = &t
	}
	if f.limit < 0 || f.offset < 0 {
		return opts, fmt.Errorf("limit and offset must not be negative")
	}
	return opts, nil
}

func newListCmd() *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List report jobs, newest first",
		Long: `List report jobs, newest first.

Examples:
  reports-admin list --status FAILED --limit 20
  reports-admin list --type sales --where "region == 'EU'" --output yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			format, err := parseOutputFormat(flags.output)
			if err != nil {
				return err
			}
			cc, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), cc, func(svcs bootstrap.ServiceContainer) error {
				jobs, err := svcs.Reports.ListJobs(cmd.Context(), opts)
				if err != nil {
					return err
				}
				return renderJobs(cmd.OutOrStdout(), format, jobs)
			})
		},
	}
	cmd.Flags().StringVar(&flags.status, "status", "", "Filter by status (PENDING, PROCESSING, COMPLETED, FAILED)")
	cmd.Flags().StringVar(&flags.kind, "type", "", "Filter by report type")
	cmd.Flags().StringVar(&flags.where, "where", "", "JMESPath predicate over job parameters")
	cmd.Flags().IntVar(&flags.limit, "limit", 50, "Maximum jobs to return (0 = no limit)")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "Jobs to skip")
	cmd.Flags().StringVarP(&flags.output, "output", "o", string(outputTable), "Output format: table, json, yaml")
	return cmd
}

func parseJobID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid report id %q", raw)
	}
	return id, nil
}

func newGetCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one report job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			cc, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), cc, func(svcs bootstrap.ServiceContainer) error {
				job, err := svcs.Reports.GetJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				return renderJob(cmd.OutOrStdout(), format, job)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(outputTable), "Output format: table, json, yaml")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Print the status of one report job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			cc, err := cmdContext(cmd)
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), cc, func(svcs bootstrap.ServiceContainer) error {
				status, err := svcs.Reports.GetStatus(cmd.Context(), id)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), status)
				return err
			})
		},
	}
}
