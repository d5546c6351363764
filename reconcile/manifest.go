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
	"context"
	"fmt"
	"io"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
)

// Manifest column names.  The donor id may appear under either name.
const (
	ColDonorID         = "icgc_donor_id"
	ColDonorIDAlt      = "donor_id"
	ColCaseObjectID    = "case_object_id"
	ColControlObjectID = "control_object_id"
)

// ReadManifest reads the donor manifest CSV at path.  Columns other than the
// donor id and the two object ids are ignored.
func ReadManifest(ctx context.Context, path string) (donors []Donor, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "reconcile.ReadManifest", path)
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	if donors, err = parseManifest(in.Reader(ctx)); err != nil {
		return nil, errors.E(err, "reconcile.ReadManifest", path)
	}
	return donors, nil
}

func parseManifest(r io.Reader) ([]Donor, error) {
	df := dataframe.ReadCSV(r,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues([]string{}))
	if df.Err != nil {
		return nil, errors.E(errors.Invalid, df.Err)
	}
	has := map[string]bool{}
	for _, name := range df.Names() {
		has[name] = true
	}
	donorCol := ColDonorID
	if !has[donorCol] {
		donorCol = ColDonorIDAlt
	}
	for _, col := range []string{donorCol, ColCaseObjectID, ColControlObjectID} {
		if !has[col] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("manifest has no %s column", col))
		}
	}
	ids := df.Col(donorCol).Records()
	cases := df.Col(ColCaseObjectID).Records()
	controls := df.Col(ColControlObjectID).Records()
	donors := make([]Donor, len(ids))
	for i := range ids {
		d := Donor{ID: ids[i], CaseObjectID: cases[i], ControlObjectID: controls[i]}
		if d.ID == "" || d.CaseObjectID == "" || d.ControlObjectID == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("manifest row %d: empty field in %+v", i+2, d))
		}
		donors[i] = d
	}
	return donors, nil
}
