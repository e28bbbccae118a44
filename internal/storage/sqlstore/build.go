package sqlstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/storage"
)

// Statements are built with '?' placeholders and rebound by sqlx for the
// target driver. Identifiers are checked against tables and double-quoted.

func quote(ident string) string {
	return `"` + ident + `"`
}

func checkCollection(collection string) error {
	if _, ok := tables[collection]; !ok {
		return fmt.Errorf("%w: unknown collection %q", errs.ErrInvalidArgument, collection)
	}
	return nil
}

func checkColumn(collection, col string) error {
	if !hasColumn(collection, col) {
		return fmt.Errorf("%w: unknown column %s.%s", errs.ErrInvalidArgument, collection, col)
	}
	return nil
}

func columnList(collection string) string {
	cols := tables[collection]
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}

// sortedKeys keeps generated SQL stable across map iteration orders.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildWhere renders filter as a WHERE clause. An empty filter renders "".
func buildWhere(collection string, filter storage.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	var (
		terms []string
		args  []any
	)
	for _, col := range sortedKeys(filter) {
		if err := checkColumn(collection, col); err != nil {
			return "", nil, err
		}
		var set []any
		switch v := filter[col].(type) {
		case []string:
			set = make([]any, len(v))
			for i, s := range v {
				set[i] = s
			}
		case []any:
			set = v
		default:
			terms = append(terms, quote(col)+" = ?")
			args = append(args, v)
			continue
		}
		if len(set) == 0 {
			terms = append(terms, "1 = 0")
			continue
		}
		terms = append(terms, quote(col)+" IN (?"+strings.Repeat(", ?", len(set)-1)+")")
		args = append(args, set...)
	}
	return " WHERE " + strings.Join(terms, " AND "), args, nil
}

func buildSelect(collection string, q storage.Query, rowLocks bool) (string, []any, error) {
	if err := checkCollection(collection); err != nil {
		return "", nil, err
	}
	where, args, err := buildWhere(collection, q.Where)
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columnList(collection))
	b.WriteString(" FROM ")
	b.WriteString(quote(collection))
	b.WriteString(where)

	if len(q.OrderBy) > 0 {
		terms := make([]string, len(q.OrderBy))
		for i, o := range q.OrderBy {
			if err := checkColumn(collection, o.Column); err != nil {
				return "", nil, err
			}
			dir := " ASC"
			if o.Desc {
				dir = " DESC"
			}
			terms[i] = quote(o.Column) + dir
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}
	if q.ForUpdate && rowLocks {
		b.WriteString(" FOR UPDATE")
	}
	return b.String(), args, nil
}

func buildInsert(collection string, record storage.Row) (string, []any, error) {
	if err := checkCollection(collection); err != nil {
		return "", nil, err
	}
	if len(record) == 0 {
		return "", nil, fmt.Errorf("%w: empty %s record", errs.ErrInvalidArgument, collection)
	}

	cols := sortedKeys(record)
	quoted := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		if err := checkColumn(collection, col); err != nil {
			return "", nil, err
		}
		quoted[i] = quote(col)
		args[i] = record[col]
	}

	query := "INSERT INTO " + quote(collection) +
		" (" + strings.Join(quoted, ", ") + ")" +
		" VALUES (?" + strings.Repeat(", ?", len(cols)-1) + ")" +
		" RETURNING " + columnList(collection)
	return query, args, nil
}

func buildUpdate(collection string, filter storage.Filter, patch storage.Row) (string, []any, error) {
	if err := checkCollection(collection); err != nil {
		return "", nil, err
	}
	if len(patch) == 0 {
		return "", nil, fmt.Errorf("%w: empty %s patch", errs.ErrInvalidArgument, collection)
	}
	if len(filter) == 0 {
		return "", nil, fmt.Errorf("%w: unfiltered update of %s", errs.ErrInvalidArgument, collection)
	}

	cols := sortedKeys(patch)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(filter))
	for i, col := range cols {
		if err := checkColumn(collection, col); err != nil {
			return "", nil, err
		}
		sets[i] = quote(col) + " = ?"
		args = append(args, patch[col])
	}

	where, whereArgs, err := buildWhere(collection, filter)
	if err != nil {
		return "", nil, err
	}
	args = append(args, whereArgs...)
	return "UPDATE " + quote(collection) + " SET " + strings.Join(sets, ", ") + where, args, nil
}

func buildDelete(collection string, filter storage.Filter) (string, []any, error) {
	if err := checkCollection(collection); err != nil {
		return "", nil, err
	}
	if len(filter) == 0 {
		return "", nil, fmt.Errorf("%w: unfiltered delete of %s", errs.ErrInvalidArgument, collection)
	}
	where, args, err := buildWhere(collection, filter)
	if err != nil {
		return "", nil, err
	}
	return "DELETE FROM " + quote(collection) + where, args, nil
}
