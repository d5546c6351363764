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
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"path/filepath"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
)

// RowKeyColumn heads the first column of every matrix CSV.
const RowKeyColumn = "row_key"

// Paths lists the files written by WriteResult.
type Paths struct {
	Case, Control, Diff string
	Tracking            string
	// Calls is empty unless Opts.WriteRows is set.
	Calls string
}

// OutputPaths returns the output file names for opts.
func OutputPaths(opts *Opts) Paths {
	prefix := filepath.Join(opts.OutDir, opts.Name+"_")
	suffix := ""
	if opts.Bgzip {
		suffix = ".gz"
	}
	p := Paths{
		Case:     prefix + CaseMatrix + ".csv" + suffix,
		Control:  prefix + ControlMatrix + ".csv" + suffix,
		Diff:     prefix + DiffMatrix + ".csv" + suffix,
		Tracking: prefix + "tracking.tsv" + suffix,
	}
	if opts.WriteRows {
		p.Calls = prefix + "rows.rio"
	}
	return p
}

// WriteResult persists res under opts.OutDir: the three matrices as CSV, the
// tracking table as TSV and, if opts.WriteRows, the calls as recordio.
func WriteResult(ctx context.Context, res *Result, opts *Opts, runID string) (Paths, error) {
	paths := OutputPaths(opts)
	for _, m := range []struct {
		path string
		m    *Matrix
	}{
		{paths.Case, res.Case},
		{paths.Control, res.Control},
		{paths.Diff, res.Diff},
	} {
		m := m
		if err := createText(ctx, m.path, opts.Bgzip, func(w io.Writer) error {
			return WriteMatrixCSV(m.m, w)
		}); err != nil {
			return paths, err
		}
	}
	if err := createText(ctx, paths.Tracking, opts.Bgzip, func(w io.Writer) error {
		return WriteTracking(res.Tracking, w)
	}); err != nil {
		return paths, err
	}
	if opts.WriteRows {
		if err := WriteCallsFile(ctx, paths.Calls, res.Calls, runID); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

// createText creates path and hands fn a writer for it, bgzf-compressed if
// bgzip is set.
func createText(ctx context.Context, path string, bgzip bool, fn func(w io.Writer) error) (err error) {
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return errors.E(err, "reconcile: create", path)
	}
	defer file.CloseAndReport(ctx, dst, &err)
	if !bgzip {
		return fn(dst.Writer(ctx))
	}
	bgzfWriter := bgzf.NewWriter(dst.Writer(ctx), 1)
	defer func() {
		if e := bgzfWriter.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return fn(bgzfWriter)
}

// matrixCSVBatchRows is the number of matrix rows rendered per data frame
// by WriteMatrixCSV.
var matrixCSVBatchRows = 1024

// WriteMatrixCSV writes m as CSV: a row_key column followed by one column per
// region, with NaN in empty cells.  Rows are rendered matrixCSVBatchRows at a
// time, so only one batch is held as text.
func WriteMatrixCSV(m *Matrix, w io.Writer) error {
	nRow, nCol := m.Dims()
	if nRow == 0 {
		_, err := io.WriteString(w, RowKeyColumn+"\n")
		return err
	}
	for start := 0; start < nRow; start += matrixCSVBatchRows {
		end := start + matrixCSVBatchRows
		if end > nRow {
			end = nRow
		}
		cols := make([]series.Series, 0, nCol+1)
		cols = append(cols, series.New(m.RowKeys[start:end], series.String, RowKeyColumn))
		for c, region := range m.Regions {
			values := make([]string, end-start)
			for i := range values {
				if v, ok := m.cell(start+i, c); ok {
					values[i] = strconv.Itoa(int(v))
				} else {
					values[i] = "NaN"
				}
			}
			cols = append(cols, series.New(values, series.Int, region))
		}
		df := dataframe.New(cols...)
		if df.Err != nil {
			return errors.E(df.Err, "reconcile: matrix", m.Name)
		}
		if err := df.WriteCSV(w, dataframe.WriteHeader(start == 0)); err != nil {
			return errors.E(err, "reconcile: matrix", m.Name)
		}
	}
	return nil
}

// ReadMatrixCSV reads a matrix written by WriteMatrixCSV.  Compressed input
// is detected automatically.
func ReadMatrixCSV(name string, r io.Reader) (*Matrix, error) {
	cr, _ := compress.NewReader(r)
	defer cr.Close() // nolint: errcheck
	data, err := ioutil.ReadAll(cr)
	if err != nil {
		return nil, errors.E(err, "reconcile: matrix", name)
	}
	if string(bytes.TrimSpace(data)) == RowKeyColumn {
		return Pivot(name, nil)
	}
	df := dataframe.ReadCSV(bytes.NewReader(data),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{}))
	if df.Err != nil {
		return nil, errors.E(errors.Invalid, df.Err, "reconcile: matrix", name)
	}
	names := df.Names()
	if len(names) == 0 || names[0] != RowKeyColumn {
		return nil, errors.E(errors.Invalid, "reconcile: matrix", name, "first column is not "+RowKeyColumn)
	}
	keys := df.Col(RowKeyColumn).Records()
	var rows []Row
	for _, region := range names[1:] {
		for i, s := range df.Col(region).Records() {
			if s == "NaN" || s == "" {
				continue
			}
			v, err := strconv.Atoi(s)
			if err != nil {
				return nil, errors.E(errors.Invalid, err, "reconcile: matrix", name)
			}
			rows = append(rows, Row{Key: keys[i], Region: region, Value: v})
		}
	}
	return Pivot(name, rows)
}

// TrackingHeader is the column list of the tracking table.
var TrackingHeader = []string{"donor_id", "locus", "region", "motif", "control_ci", "case_ci"}

// WriteTracking writes rows as a TSV with a TrackingHeader header line.
func WriteTracking(rows []TrackingRow, w io.Writer) (err error) {
	out := tsv.NewWriter(w)
	for _, h := range TrackingHeader {
		out.WriteString(h)
	}
	if err = out.EndLine(); err != nil {
		return
	}
	for _, row := range rows {
		out.WriteString(row.DonorID)
		out.WriteString(row.Locus)
		out.WriteString(row.Region)
		out.WriteString(row.Motif)
		out.WriteString(row.ControlCI)
		out.WriteString(row.CaseCI)
		if err = out.EndLine(); err != nil {
			return
		}
	}
	return out.Flush()
}

// ReadTracking reads a table written by WriteTracking.
func ReadTracking(r io.Reader) ([]TrackingRow, error) {
	cr, _ := compress.NewReader(r)
	defer cr.Close() // nolint: errcheck
	tsvReader := tsv.NewReader(cr)
	tsvReader.HasHeaderRow = true
	tsvReader.UseHeaderNames = true
	var rows []TrackingRow
	for {
		var row TrackingRow
		if err := tsvReader.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}
