package storage

import (
	"fmt"
	"strings"

	"github.com/hyperjump/toolkeeper/internal/filter"
)

// scalarText renders a json_each row's scalar the way filter.Resolve does.
const scalarText = `CASE v.type WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(v.value AS TEXT) END`

const scalarRow = `v.type NOT IN ('object', 'array', 'null')`

// translate compiles a filter expression into a SQL condition over a table's data column.
func translate(e filter.Expr) (string, []any, error) {
	switch x := e.(type) {
	case nil:
		return "1", nil, nil
	case filter.And:
		return join(x, " AND ", "1")
	case filter.Or:
		return join(x, " OR ", "0")
	case filter.In:
		if len(x.Values) == 0 {
			return "0", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(x.Values)), ", ")
		args := make([]any, 0, len(x.Values))
		for _, v := range x.Values {
			args = append(args, v)
		}
		return fieldCondition(x.Field, fmt.Sprintf("%s IN (%s)", scalarText, placeholders), args)
	case filter.Pattern:
		return fieldCondition(x.Field, scalarText+" REGEXP ?", []any{x.Regexp.String()})
	default:
		return "", nil, fmt.Errorf("unsupported filter expression %T", e)
	}
}

func join[T ~[]filter.Expr](branches T, sep, empty string) (string, []any, error) {
	if len(branches) == 0 {
		return empty, nil, nil
	}
	parts := make([]string, 0, len(branches))
	var args []any
	for _, b := range branches {
		cond, condArgs, err := translate(b)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, "("+cond+")")
		args = append(args, condArgs...)
	}
	return strings.Join(parts, sep), args, nil
}

// fieldCondition wraps cond, written against the json_each alias v, so it holds for
// any scalar the field resolves to.
func fieldCondition(field, cond string, args []any) (string, []any, error) {
	parts, err := filter.SplitField(field)
	if err != nil {
		return "", nil, err
	}
	if len(parts) == 1 {
		return fmt.Sprintf(
			`EXISTS (SELECT 1 FROM json_each(data, '$.%[1]s') v`+
				` WHERE json_type(data, '$.%[1]s') <> 'object' AND %[2]s AND %[3]s)`,
			parts[0], scalarRow, cond,
		), args, nil
	}
	head, tail := parts[0], parts[1]
	sqlCond := fmt.Sprintf(
		`EXISTS (SELECT 1 FROM json_each(data, '$.%[1]s.%[2]s') v`+
			` WHERE json_type(data, '$.%[1]s.%[2]s') <> 'object' AND %[3]s AND %[4]s)`+
			` OR EXISTS (SELECT 1 FROM json_each(data, '$.%[1]s') e,`+
			` json_each(CASE WHEN e.type = 'object' THEN e.value ELSE '{}' END, '$.%[2]s') v`+
			` WHERE json_type(data, '$.%[1]s') = 'array'`+
			` AND json_type(CASE WHEN e.type = 'object' THEN e.value ELSE '{}' END, '$.%[2]s') <> 'object'`+
			` AND %[3]s AND %[4]s)`,
		head, tail, scalarRow, cond,
	)
	doubled := make([]any, 0, 2*len(args))
	doubled = append(doubled, args...)
	doubled = append(doubled, args...)
	return sqlCond, doubled, nil
}
