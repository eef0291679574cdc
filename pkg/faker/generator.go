// Package faker generates synthetic classification data for trying recipes
// without a real dataset.
package faker

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand" // Using weak random for test data generation only
	"strconv"
)

const (
	defaultSpread = 0.5
	centerRange   = 4.0 // class centers are drawn from [-centerRange, centerRange)
	floatBits     = 64
)

// Generator draws samples from one Gaussian blob per class.
type Generator struct {
	Classes  int
	Features int
	Samples  int
	Spread   float64 // standard deviation around each center
	Seed     int64
}

// Columns returns the CSV header: id, x0..xN, label.
func (g Generator) Columns() []string {
	cols := make([]string, 0, g.Features+2)
	cols = append(cols, "id")
	for i := 0; i < g.Features; i++ {
		cols = append(cols, fmt.Sprintf("x%d", i))
	}
	return append(cols, "label")
}

// FeatureColumns returns the feature column names only.
func (g Generator) FeatureColumns() []string {
	cols := g.Columns()
	return cols[1 : len(cols)-1]
}

func (g Generator) validate() error {
	if g.Classes < 2 {
		return fmt.Errorf("need at least 2 classes, got %d", g.Classes)
	}
	if g.Features < 1 {
		return fmt.Errorf("need at least 1 feature, got %d", g.Features)
	}
	if g.Samples < 1 {
		return fmt.Errorf("need at least 1 sample, got %d", g.Samples)
	}
	return nil
}

// Rows generates samples round-robin over the classes, so every class is
// represented once Samples >= Classes. Each row is id, features, label.
func (g Generator) Rows() ([][]float64, error) {
	if err := g.validate(); err != nil {
		return nil, err
	}
	spread := g.Spread
	if spread <= 0 {
		spread = defaultSpread
	}

	rng := rand.New(rand.NewSource(g.Seed)) //nolint:gosec // Using weak random for test data generation only
	centers := make([][]float64, g.Classes)
	for c := range centers {
		centers[c] = make([]float64, g.Features)
		for f := range centers[c] {
			centers[c][f] = (rng.Float64()*2 - 1) * centerRange
		}
	}

	rows := make([][]float64, g.Samples)
	for i := range rows {
		class := i % g.Classes
		row := make([]float64, 0, g.Features+2)
		row = append(row, float64(i))
		for f := 0; f < g.Features; f++ {
			row = append(row, centers[class][f]+rng.NormFloat64()*spread)
		}
		rows[i] = append(row, float64(class))
	}
	return rows, nil
}

// WriteCSV writes the header and all rows to w.
func (g Generator) WriteCSV(w io.Writer) error {
	rows, err := g.Rows()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(g.Columns()); err != nil {
		return err
	}
	record := make([]string, len(g.Columns()))
	for _, row := range rows {
		last := len(row) - 1
		record[0] = strconv.Itoa(int(row[0]))
		for i := 1; i < last; i++ {
			record[i] = strconv.FormatFloat(row[i], 'f', -1, floatBits)
		}
		record[last] = strconv.Itoa(int(row[last]))
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
