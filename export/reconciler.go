package export

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ColumnKind is the concrete type a reconciled column holds.
type ColumnKind int

const (
	KindNumeric ColumnKind = iota
	KindText
)

func (k ColumnKind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "text"
}

// Column is a homogeneously-typed sequence of values for one field. Exactly
// one of Nums or Text is populated, matching Kind; Nulls marks missing values.
type Column struct {
	Name  string
	Kind  ColumnKind
	Nums  []float64
	Text  []string
	Nulls []bool
}

// Table is one reconciled batch: ordered columns of equal length.
type Table struct {
	Columns []Column
	NumRows int
}

// Column returns the named column, or nil if absent.
func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Reconciler cleans raw batches so every column holds one concrete type.
// Columns named in the force-string set become text unconditionally; all
// other loosely-typed columns are coerced to numeric as a whole, falling back
// to text if any single value resists numeric coercion. Coercion is
// all-or-nothing per column, never per value.
type Reconciler struct {
	forceString map[string]bool
}

// NewReconciler builds a reconciler with the given always-string column set.
func NewReconciler(forceStringCols []string) *Reconciler {
	fs := make(map[string]bool, len(forceStringCols))
	for _, name := range forceStringCols {
		fs[name] = true
	}
	return &Reconciler{forceString: fs}
}

// Clean reconciles one raw batch into a typed table. An empty batch yields an
// empty table; no schema can be established from it.
func (r *Reconciler) Clean(batch []Record) (*Table, error) {
	t := &Table{NumRows: len(batch)}
	if len(batch) == 0 {
		return t, nil
	}

	for _, name := range columnNames(batch) {
		col, err := r.cleanColumn(name, batch)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		t.Columns = append(t.Columns, col)
	}
	return t, nil
}

func (r *Reconciler) cleanColumn(name string, batch []Record) (Column, error) {
	col := Column{Name: name, Nulls: make([]bool, len(batch))}

	if r.forceString[name] {
		col.Kind = KindText
		col.Text = make([]string, len(batch))
		for i, rec := range batch {
			v, ok := rec[name]
			if !ok || v == nil {
				col.Nulls[i] = true
				continue
			}
			s, err := textValue(v)
			if err != nil {
				return col, err
			}
			col.Text[i] = s
		}
		return col, nil
	}

	// Try numeric first. Any value that fails numeric coercion downgrades
	// the entire column to text.
	nums := make([]float64, len(batch))
	numeric := true
	for i, rec := range batch {
		v, ok := rec[name]
		if !ok || v == nil {
			col.Nulls[i] = true
			continue
		}
		n, ok := numericValue(v)
		if !ok {
			numeric = false
			break
		}
		nums[i] = n
	}

	if numeric {
		col.Kind = KindNumeric
		col.Nums = nums
		return col, nil
	}

	col.Kind = KindText
	col.Text = make([]string, len(batch))
	for i, rec := range batch {
		v, ok := rec[name]
		if !ok || v == nil {
			col.Nulls[i] = true
			continue
		}
		col.Nulls[i] = false
		s, err := textValue(v)
		if err != nil {
			return col, err
		}
		col.Text[i] = s
	}
	return col, nil
}

// numericValue reports whether v coerces to a number.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// textValue renders v as a string. Nested documents and arrays are rendered
// as JSON; timestamps as RFC 3339.
func textValue(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case bool:
		return strconv.FormatBool(s), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32), nil
	case int:
		return strconv.Itoa(s), nil
	case int32:
		return strconv.FormatInt(int64(s), 10), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case time.Time:
		return s.UTC().Format(time.RFC3339), nil
	case map[string]any, []any:
		data, err := json.Marshal(s)
		if err != nil {
			return "", fmt.Errorf("render nested value: %w", err)
		}
		return string(data), nil
	default:
		return fmt.Sprintf("%v", s), nil
	}
}
