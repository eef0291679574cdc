package duck

import (
	"fmt"
	"io"

	"github.com/siqueiraa/RecipeFlow/pkg/component"
)

// Table is a dataset split held in memory. Iterating it directly yields one
// sample per batch.
type Table struct {
	Name     string
	input    string
	label    string
	features int
	data     []float32 // row-major, features values per sample
	labels   []float32
	pos      int
}

// NewTable converts query rows into a split. The label is the last column of
// every row.
func NewTable(name, input, label string, rows [][]float64) (*Table, error) {
	t := &Table{Name: name, input: input, label: label}
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("table %s row %d has %d column(s), need features and a label", name, i, len(row))
		}
		if i == 0 {
			t.features = len(row) - 1
		}
		if len(row)-1 != t.features {
			return nil, fmt.Errorf("table %s row %d has %d feature(s), expected %d", name, i, len(row)-1, t.features)
		}
		for _, v := range row[:t.features] {
			t.data = append(t.data, float32(v))
		}
		t.labels = append(t.labels, float32(row[t.features]))
	}
	return t, nil
}

func (t *Table) Len() int { return len(t.labels) }

func (t *Table) Reset() { t.pos = 0 }

func (t *Table) Next() (component.Batch, error) {
	if t.pos >= len(t.labels) {
		return nil, io.EOF
	}
	b, err := t.Batch([]int{t.pos})
	t.pos++
	return b, err
}

func (t *Table) Batch(indices []int) (component.Batch, error) {
	in := make([]float32, 0, len(indices)*t.features)
	lb := make([]float32, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(t.labels) {
			return nil, fmt.Errorf("index %d out of range for table %s with %d sample(s)", i, t.Name, len(t.labels))
		}
		in = append(in, t.data[i*t.features:(i+1)*t.features]...)
		lb = append(lb, t.labels[i])
	}
	return component.Batch{t.input: in, t.label: lb}, nil
}
