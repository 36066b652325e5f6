// Package reportexec provides the units of work that ReportService runs for a job.
package reportexec

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/target/mmk-reports-api/internal/core"
)

// DefaultPathTemplate is the result location produced by SimulatedExecutor. {id} is replaced by the job id.
const DefaultPathTemplate = "/reports/generated/{id}.pdf"

// SimulatedExecutor waits for a fixed delay and reports a synthetic artifact path.
// It stands in for a real generator in development and tests.
type SimulatedExecutor struct {
	Delay        time.Duration
	PathTemplate string
}

var _ core.ReportExecutor = (*SimulatedExecutor)(nil)

// Execute sleeps for Delay or until ctx is done, whichever comes first.
func (e *SimulatedExecutor) Execute(ctx context.Context, req core.ExecutionRequest) (string, error) {
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return "", err
	}

	tmpl := e.PathTemplate
	if tmpl == "" {
		tmpl = DefaultPathTemplate
	}
	return strings.ReplaceAll(tmpl, "{id}", strconv.FormatInt(req.JobID, 10)), nil
}
