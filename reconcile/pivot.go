// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reconcile

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// CollisionError is returned by Pivot when two rows share a (row key,
// region) cell.
type CollisionError struct {
	Matrix string
	RowKey string
	Region string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("reconcile: %s matrix: duplicate entry for row %s, region %s", e.Matrix, e.RowKey, e.Region)
}

// Matrix is a row key x region table in which most cells may be empty.
// Storage is dense: every (row, region) cell takes a float64, NaN when
// missing, so a cohort of D donors over L loci costs 2*D*L*8 bytes per
// matrix.  Restrict large catalogs with Opts.RegionsPath.
type Matrix struct {
	Name    string
	RowKeys []string
	Regions []string

	data     *mat.Dense // nil iff the matrix has no rows
	rowIndex map[string]int
	colIndex map[string]int
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (int, int) {
	return len(m.RowKeys), len(m.Regions)
}

// At returns the value at (rowKey, region).  ok is false if the cell is
// empty or either coordinate is unknown.
func (m *Matrix) At(rowKey, region string) (v float64, ok bool) {
	r, okR := m.rowIndex[rowKey]
	c, okC := m.colIndex[region]
	if !okR || !okC {
		return 0, false
	}
	v = m.data.At(r, c)
	return v, !math.IsNaN(v)
}

// cell returns the value at (r, c) by index.
func (m *Matrix) cell(r, c int) (float64, bool) {
	v := m.data.At(r, c)
	return v, !math.IsNaN(v)
}

// Len returns the number of non-empty cells.
func (m *Matrix) Len() int {
	n := 0
	nRow, nCol := m.Dims()
	for r := 0; r < nRow; r++ {
		for c := 0; c < nCol; c++ {
			if _, ok := m.cell(r, c); ok {
				n++
			}
		}
	}
	return n
}

// Pivot builds the named matrix from flat rows.  Row keys are sorted
// lexicographically and regions by genomic coordinate, so the result does not
// depend on the order of rows.  Two rows with the same (key, region) yield a
// *CollisionError.
func Pivot(name string, rows []Row) (*Matrix, error) {
	m := &Matrix{
		Name:     name,
		rowIndex: map[string]int{},
		colIndex: map[string]int{},
	}
	for _, row := range rows {
		if _, ok := m.rowIndex[row.Key]; !ok {
			m.rowIndex[row.Key] = 0
			m.RowKeys = append(m.RowKeys, row.Key)
		}
		if _, ok := m.colIndex[row.Region]; !ok {
			m.colIndex[row.Region] = 0
			m.Regions = append(m.Regions, row.Region)
		}
	}
	sort.Strings(m.RowKeys)
	SortRegions(m.Regions)
	for i, k := range m.RowKeys {
		m.rowIndex[k] = i
	}
	for i, r := range m.Regions {
		m.colIndex[r] = i
	}
	if len(rows) == 0 {
		return m, nil
	}

	nRow, nCol := m.Dims()
	backing := make([]float64, nRow*nCol)
	for i := range backing {
		backing[i] = math.NaN()
	}
	m.data = mat.NewDense(nRow, nCol, backing)
	for _, row := range rows {
		r, c := m.rowIndex[row.Key], m.colIndex[row.Region]
		if !math.IsNaN(m.data.At(r, c)) {
			return nil, &CollisionError{Matrix: name, RowKey: row.Key, Region: row.Region}
		}
		m.data.Set(r, c, float64(row.Value))
	}
	return m, nil
}
