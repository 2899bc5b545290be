package query

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/robinvdvleuten/beancount-mcp/ledger"
	"github.com/robinvdvleuten/beancount-mcp/telemetry"
)

// cancelCheckInterval is how many scanned facts pass between context checks.
const cancelCheckInterval = 1024

// Run compiles and executes query against snapshot.
func Run(ctx context.Context, query string, snapshot *ledger.Ledger) (*Table, error) {
	timer := telemetry.FromContext(ctx).Start("query.run")
	defer timer.End()

	compileTimer := timer.Child("query.compile")
	plan, err := Compile(query)
	compileTimer.End()
	if err != nil {
		return nil, err
	}

	return Execute(ctx, plan, snapshot)
}

// Execute runs plan against snapshot. It only reads the snapshot, so executing the
// same plan against the same snapshot always yields the same table.
func Execute(ctx context.Context, plan *Plan, snapshot *ledger.Ledger) (*Table, error) {
	timer := telemetry.FromContext(ctx).Start("query.execute")
	defer timer.End()

	x := &executor{plan: plan, env: &env{ledger: snapshot}}
	if plan.aggregate {
		x.groups = make(map[string]*group)
	}

	var scanErr error
	scanned := 0
	plan.source.scan(snapshot, func(f *fact) bool {
		scanned++
		if scanned%cancelCheckInterval == 0 {
			if scanErr = ctx.Err(); scanErr != nil {
				return false
			}
		}
		scanErr = x.consume(f)
		return scanErr == nil
	})
	if scanErr != nil {
		return nil, scanErr
	}

	rows, err := x.finish()
	if err != nil {
		return nil, err
	}

	if plan.distinct {
		rows = distinctRows(rows, len(plan.columns))
	}
	if len(plan.sortKeys) > 0 {
		sortRows(rows, plan.sortKeys)
	}
	if plan.limit >= 0 && len(rows) > plan.limit {
		rows = rows[:plan.limit]
	}

	visible := len(plan.columns)
	for i, row := range rows {
		rows[i] = row[:visible:visible]
	}
	return &Table{Columns: plan.columns, Rows: rows}, nil
}

type executor struct {
	plan   *Plan
	env    *env
	rows   [][]Value
	groups map[string]*group
	order  []*group
}

// group is the aggregation state of one GROUP BY key. row is the first row of the
// group; grouped columns are equal on every row of it.
type group struct {
	row  []Value
	accs []accumulator
}

// materialize reads the columns the plan needs from f.
func (x *executor) materialize(f *fact) []Value {
	row := make([]Value, len(x.plan.source.columns))
	for i, needed := range x.plan.needed {
		if needed {
			row[i] = x.plan.source.columns[i].get(f)
		}
	}
	return row
}

func (x *executor) consume(f *fact) error {
	plan := x.plan
	x.env.row = x.materialize(f)
	x.env.aggs = nil

	if plan.where != nil {
		v, err := plan.where.eval(x.env)
		if err != nil {
			return err
		}
		if !truthy(v) {
			return nil
		}
	}

	if !plan.aggregate {
		out, err := x.project()
		if err != nil {
			return err
		}
		x.rows = append(x.rows, out)
		return nil
	}

	var key strings.Builder
	for _, g := range plan.groupBy {
		v, err := g.eval(x.env)
		if err != nil {
			return err
		}
		key.WriteString(v.key())
		key.WriteByte(0)
	}

	grp, ok := x.groups[key.String()]
	if !ok {
		grp = x.newGroup(x.env.row)
		x.groups[key.String()] = grp
		x.order = append(x.order, grp)
	}

	for i, agg := range plan.aggs {
		v := Bool(true) // count(*)
		if agg.arg != nil {
			var err error
			if v, err = agg.arg.eval(x.env); err != nil {
				return err
			}
		}
		if err := grp.accs[i].add(v); err != nil {
			var mixed *mixedCommoditiesError
			if errors.As(err, &mixed) {
				return &CompileError{Query: plan.query, Offset: agg.call.Pos, Message: mixed.Error()}
			}
			return err
		}
	}
	return nil
}

func (x *executor) newGroup(row []Value) *group {
	grp := &group{row: row, accs: make([]accumulator, len(x.plan.aggs))}
	for i, agg := range x.plan.aggs {
		grp.accs[i] = agg.fn.new()
	}
	return grp
}

// project evaluates the output expressions in the current environment.
func (x *executor) project() ([]Value, error) {
	out := make([]Value, len(x.plan.outputs))
	for i, e := range x.plan.outputs {
		v, err := e.eval(x.env)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// finish returns the projected rows; aggregate queries emit one row per group in
// first-seen order. Without GROUP BY an aggregate query always yields one row.
func (x *executor) finish() ([][]Value, error) {
	if !x.plan.aggregate {
		return x.rows, nil
	}

	if len(x.order) == 0 && len(x.plan.groupBy) == 0 {
		x.order = append(x.order, x.newGroup(make([]Value, len(x.plan.source.columns))))
	}

	rows := make([][]Value, 0, len(x.order))
	for _, grp := range x.order {
		x.env.row = grp.row
		x.env.aggs = make([]Value, len(grp.accs))
		for i, acc := range grp.accs {
			x.env.aggs[i] = acc.result()
		}
		out, err := x.project()
		if err != nil {
			return nil, err
		}
		rows = append(rows, out)
	}
	return rows, nil
}

func distinctRows(rows [][]Value, visible int) [][]Value {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for _, row := range rows {
		var key strings.Builder
		for _, v := range row[:visible] {
			key.WriteString(v.key())
			key.WriteByte(0)
		}
		if seen[key.String()] {
			continue
		}
		seen[key.String()] = true
		out = append(out, row)
	}
	return out
}

func sortRows(rows [][]Value, keys []sortKey) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(rows[i][k.index], rows[j][k.index])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
