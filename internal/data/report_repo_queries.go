package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/target/mmk-reports-api/internal/data/pgxutil"
	"github.com/target/mmk-reports-api/internal/domain/model"
)

// maxListLimit caps a single page; a zero limit means "no paging".
const maxListLimit = 1000

type reportFilterQueryBuilder struct {
	query  string
	args   []any
	argIdx int
}

func (b *reportFilterQueryBuilder) addFilter(condition string, value any) {
	if value == nil {
		return
	}
	b.query += fmt.Sprintf(" AND %s = $%d", condition, b.argIdx)
	b.args = append(b.args, value)
	b.argIdx++
}

func (b *reportFilterQueryBuilder) addPaging(limit, offset int) {
	if limit > 0 {
		b.query += fmt.Sprintf(" LIMIT $%d", b.argIdx)
		b.args = append(b.args, min(limit, maxListLimit))
		b.argIdx++
	}
	if offset > 0 {
		b.query += fmt.Sprintf(" OFFSET $%d", b.argIdx)
		b.args = append(b.args, offset)
		b.argIdx++
	}
}

// buildReportListQuery constructs the list query; newest first with id as a tiebreaker.
func buildReportListQuery(opts model.ReportListOptions) (string, []any) {
	b := &reportFilterQueryBuilder{
		query:  `SELECT ` + reportColumns + ` FROM report_jobs WHERE 1=1`,
		args:   []any{},
		argIdx: 1,
	}

	if opts.Status != nil {
		b.addFilter("status", string(*opts.Status))
	}
	if opts.Type != nil {
		b.addFilter("type", *opts.Type)
	}

	b.query += " ORDER BY created_at DESC, id DESC"
	b.addPaging(opts.Limit, opts.Offset)
	return b.query, b.args
}

// List returns jobs ordered by creation time descending. Where is evaluated by the caller.
func (r *ReportRepo) List(ctx context.Context, opts model.ReportListOptions) ([]*model.ReportJob, error) {
	query, args := buildReportListQuery(opts)

	var result []*model.ReportJob
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, qerr := conn.Query(ctx, query, args...)
		if qerr != nil {
			return qerr
		}
		jobs, cerr := pgx.CollectRows(rows, scanReport)
		if cerr != nil {
			return cerr
		}
		result = jobs
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	if result == nil {
		result = []*model.ReportJob{}
	}
	return result, nil
}
