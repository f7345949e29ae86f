package postgres

import (
	"fmt"
	"strings"

	"github.com/gabisonia/go-gridquery/griddata"
)

type sqlPlan struct {
	query string
	args  []any
}

type aggregatePlan struct {
	sqlPlan
	group griddata.GroupStage
}

type sqlBuilder struct {
	b       strings.Builder
	args    []any
	nextArg int
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{nextArg: 1}
}

func (s *sqlBuilder) where(filter griddata.Filter, cfg griddata.FilterSQLConfig) error {
	whereSQL, args, next, err := griddata.CompileFilterSQL(filter, cfg, s.nextArg)
	if err != nil {
		return err
	}
	if whereSQL != "" {
		s.b.WriteString(" WHERE ")
		s.b.WriteString(whereSQL)
	}
	s.args = append(s.args, args...)
	s.nextArg = next
	return nil
}

func (s *sqlBuilder) page(skip, limit int) {
	if skip > 0 {
		s.b.WriteString(fmt.Sprintf(" OFFSET $%d", s.nextArg))
		s.args = append(s.args, skip)
		s.nextArg++
	}
	if limit > 0 {
		s.b.WriteString(fmt.Sprintf(" LIMIT $%d", s.nextArg))
		s.args = append(s.args, limit)
		s.nextArg++
	}
}

func (s *sqlBuilder) plan() sqlPlan {
	return sqlPlan{query: s.b.String(), args: s.args}
}

// keyExpr addresses a grouping or sort field. JSON null and a missing
// field both collapse to SQL NULL.
func (c *PostgresCollection) keyExpr(field string) (string, error) {
	pathExpr, err := griddata.DocumentPathSQL(quoteIdent(docColumn), field)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("NULLIF(%s, 'null'::jsonb)", pathExpr), nil
}

func orderDirection(desc bool) string {
	if desc {
		return "DESC NULLS LAST"
	}
	return "ASC NULLS FIRST"
}

func (c *PostgresCollection) buildFindSQL(opts griddata.FindOptions) (sqlPlan, error) {
	if opts.Skip < 0 || opts.Take < 0 {
		return sqlPlan{}, fmt.Errorf("%w: skip and take must be >= 0", griddata.ErrInvalidQuery)
	}

	s := newSQLBuilder()
	s.b.WriteString(fmt.Sprintf("SELECT %s::text, %s FROM %s", quoteIdent(idColumn), quoteIdent(docColumn), c.tableName()))
	if err := s.where(opts.Filter, c.filterConfig()); err != nil {
		return sqlPlan{}, err
	}

	if len(opts.Sort) > 0 {
		parts := make([]string, 0, len(opts.Sort))
		for _, spec := range opts.Sort {
			expr, err := c.keyExpr(spec.Selector)
			if err != nil {
				return sqlPlan{}, err
			}
			parts = append(parts, expr+" "+orderDirection(spec.Desc))
		}
		s.b.WriteString(" ORDER BY ")
		s.b.WriteString(strings.Join(parts, ", "))
	}

	s.page(opts.Skip, opts.Take)
	return s.plan(), nil
}

func (c *PostgresCollection) buildAggregateSQL(pipeline griddata.Pipeline) (aggregatePlan, error) {
	plan, err := griddata.PlanPipeline(pipeline)
	if err != nil {
		return aggregatePlan{}, err
	}
	if plan.Group == nil {
		return aggregatePlan{}, fmt.Errorf("%w: aggregate pipeline has no group stage", griddata.ErrUnsupportedPipeline)
	}
	if plan.Count {
		return aggregatePlan{}, fmt.Errorf("%w: aggregate pipeline ends in a count stage", griddata.ErrUnsupportedPipeline)
	}

	key, err := c.keyExpr(plan.Group.Selector)
	if err != nil {
		return aggregatePlan{}, err
	}

	cols := []string{key + ` AS "key"`}
	if plan.Group.Count {
		cols = append(cols, `COUNT(*) AS "count"`)
	}
	if plan.Group.Items {
		cols = append(cols, fmt.Sprintf(`jsonb_agg(jsonb_build_object('id', %s::text, 'doc', %s)) AS "items"`,
			quoteIdent(idColumn), quoteIdent(docColumn)))
	}

	s := newSQLBuilder()
	s.b.WriteString("SELECT ")
	s.b.WriteString(strings.Join(cols, ", "))
	s.b.WriteString(" FROM ")
	s.b.WriteString(c.tableName())
	if err := s.where(plan.Filter(), c.filterConfig()); err != nil {
		return aggregatePlan{}, err
	}
	s.b.WriteString(" GROUP BY 1")
	if plan.SortKeys != nil {
		s.b.WriteString(" ORDER BY 1 ")
		s.b.WriteString(orderDirection(plan.SortKeys.Desc))
	}
	s.page(plan.Skip, plan.Limit)

	return aggregatePlan{sqlPlan: s.plan(), group: *plan.Group}, nil
}

func (c *PostgresCollection) buildCountSQL(pipeline griddata.Pipeline) (sqlPlan, error) {
	plan, err := griddata.PlanPipeline(pipeline)
	if err != nil {
		return sqlPlan{}, err
	}
	if !plan.Count {
		return sqlPlan{}, fmt.Errorf("%w: count pipeline has no count stage", griddata.ErrUnsupportedPipeline)
	}

	s := newSQLBuilder()
	switch {
	case plan.Group != nil:
		key, err := c.keyExpr(plan.Group.Selector)
		if err != nil {
			return sqlPlan{}, err
		}
		s.b.WriteString(fmt.Sprintf(`SELECT COUNT(*) FROM (SELECT %s AS "key" FROM %s`, key, c.tableName()))
		if err := s.where(plan.Filter(), c.filterConfig()); err != nil {
			return sqlPlan{}, err
		}
		s.b.WriteString(" GROUP BY 1")
		s.page(plan.Skip, plan.Limit)
		s.b.WriteString(`) AS "sub"`)
	case plan.Skip > 0 || plan.Limit > 0:
		s.b.WriteString(fmt.Sprintf(`SELECT COUNT(*) FROM (SELECT 1 FROM %s`, c.tableName()))
		if err := s.where(plan.Filter(), c.filterConfig()); err != nil {
			return sqlPlan{}, err
		}
		s.page(plan.Skip, plan.Limit)
		s.b.WriteString(`) AS "sub"`)
	default:
		s.b.WriteString("SELECT COUNT(*) FROM ")
		s.b.WriteString(c.tableName())
		if err := s.where(plan.Filter(), c.filterConfig()); err != nil {
			return sqlPlan{}, err
		}
	}
	return s.plan(), nil
}
