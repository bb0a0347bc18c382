package compiler

import (
	"slices"

	"github.com/roach88/sqlbridge/internal/failure"
	"github.com/roach88/sqlbridge/internal/filter"
	"github.com/roach88/sqlbridge/internal/ir"
	"github.com/roach88/sqlbridge/internal/queryir"
	"github.com/roach88/sqlbridge/internal/request"
)

func (c *Compiler) compileInsert(ins *queryir.Insert) (request.Request, error) {
	if _, err := filter.TargetScope("INSERT", ins.Table); err != nil {
		return nil, err
	}
	out := &request.Insert{
		Collection: ins.Table.Name,
		Fields:     slices.Clone(ins.Columns),
		Rows:       make([][]ir.Value, len(ins.Rows)),
	}
	for i, row := range ins.Rows {
		values, err := foreignRow("INSERT", row)
		if err != nil {
			return nil, err
		}
		out.Rows[i] = values
	}
	return out, nil
}

// compileUpdate turns a single-row UPDATE into an upsert of the assigned
// columns keyed by the primary key.
func (c *Compiler) compileUpdate(upd *queryir.Update) (request.Request, error) {
	scope, err := filter.TargetScope("UPDATE", upd.Table)
	if err != nil {
		return nil, err
	}
	pk := upd.Table.PrimaryKey
	for _, a := range upd.Set {
		if a.Column == pk {
			return nil, failure.Unsupported("UPDATE of primary key")
		}
	}

	class, err := filter.Classify(upd.Where, scope, nil)
	if err != nil {
		return nil, err
	}
	switch {
	case len(class.IDs) == 0:
		return nil, failure.Unsupported("UPDATE without primary-key predicate")
	case len(class.IDs) > 1 || class.IDArray:
		return nil, failure.InvalidID(queryir.Describe(class.IDExpr))
	case class.Residual != nil:
		return nil, failure.Unsupported("UPDATE with non-key predicate")
	}

	fields := []string{pk}
	exprs := make([]queryir.Expr, len(upd.Set))
	for i, a := range upd.Set {
		fields = append(fields, a.Column)
		exprs[i] = a.Value
	}
	values, err := foreignRow("UPDATE", exprs)
	if err != nil {
		return nil, err
	}
	return &request.Upsert{
		Collection: upd.Table.Name,
		Fields:     fields,
		Rows:       [][]ir.Value{append([]ir.Value{class.IDs[0]}, values...)},
	}, nil
}

func (c *Compiler) compileDelete(del *queryir.Delete) (request.Request, error) {
	scope, err := filter.TargetScope("DELETE", del.Table)
	if err != nil {
		return nil, err
	}
	if del.Where == nil {
		return nil, failure.Unsupported("unrestricted DELETE")
	}

	class, err := filter.Classify(del.Where, scope, nil)
	if err != nil {
		return nil, err
	}
	out := &request.Delete{Collection: del.Table.Name, PrimaryKey: del.Table.PrimaryKey}
	switch {
	case class.False:
		out.Filter = "false"
		return out, nil
	case class.Residual == nil && len(class.IDs) > 0 && !class.IDArray:
		out.IDs = class.IDs
		return out, nil
	case class.Residual == nil && len(class.IDs) == 0:
		// WHERE folded to true.
		return nil, failure.Unsupported("unrestricted DELETE")
	}

	ph := filter.NewPlaceholders()
	r := filter.NewRenderer(scope, c.opts.Filter, ph)
	var ids string
	if len(class.IDs) > 0 {
		ids = r.IDFilter(class.IDs, class.IDArray)
	}
	residual, err := r.Render(class.Residual)
	if err != nil {
		return nil, err
	}
	out.Filter = filter.And(ids, residual)
	out.Template = ph.Values()
	return out, nil
}
