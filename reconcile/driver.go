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
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
)

// Matrix names, also used in output file names.
const (
	CaseMatrix    = "case"
	ControlMatrix = "control"
	DiffMatrix    = "diff"
)

// Result is the aggregated output of a run.
type Result struct {
	Case, Control, Diff *Matrix
	// Tracking rows, grouped by donor in donor id order.
	Tracking []TrackingRow
	// Calls in donor id order; within a donor in locus, variant order.
	Calls []Call
	Stats DonorStats
	// Failed lists the ids of donors that contributed nothing because of an
	// error, sorted.
	Failed []string
}

// Reconcile processes every donor and pivots the combined rows into the case,
// control and diff matrices.  Donor failures are logged and listed in
// Result.Failed.  Only invalid opts, an unreadable regions file, a pivot
// collision or a cancelled ctx fail the run.
func Reconcile(ctx context.Context, donors []Donor, opts *Opts, logger Logger) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts, err := opts.withRegions(ctx)
	if err != nil {
		return nil, err
	}
	if opts.Regions != nil {
		logger.Printf("reconcile: %d regions (%d bases) loaded, exclude=%v",
			opts.Regions.Len(), opts.Regions.Bases(), opts.ExcludeRegions)
	}
	donorResults, err := processDonors(ctx, donors, opts, logger)
	if err != nil {
		return nil, err
	}
	return aggregate(donorResults, logger)
}

// processDonors runs ProcessDonor over donors in parallel.  The returned
// slice is sorted by donor id.
func processDonors(ctx context.Context, donors []Donor, opts *Opts, logger Logger) ([]DonorResult, error) {
	nDonor := len(donors)
	if nDonor == 0 {
		return nil, nil
	}
	parallelism := opts.parallelism(nDonor)
	// One task per donor, each writing only its own result slot.
	all := make([]DonorResult, nDonor)
	logger.Printf("reconcile: processing %d donors (%d workers)", nDonor, parallelism)
	err := traverse.Limit(parallelism).Each(nDonor, func(donorIdx int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		all[donorIdx] = safeProcessDonor(ctx, donors[donorIdx], opts, logger)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].DonorID < all[j].DonorID })
	return all, nil
}

// safeProcessDonor converts a panic while processing donor into a donor
// error.
func safeProcessDonor(ctx context.Context, donor Donor, opts *Opts, logger Logger) (res DonorResult) {
	defer func() {
		if r := recover(); r != nil {
			res = DonorResult{
				DonorID: donor.ID,
				Err:     errors.E(fmt.Sprintf("donor %s: panic: %v", donor.ID, r)),
			}
			logger.Errorf("reconcile: %v", res.Err)
		}
	}()
	return ProcessDonor(ctx, donor, opts, logger)
}

func aggregate(donorResults []DonorResult, logger Logger) (*Result, error) {
	var (
		all Contribution
		res Result
	)
	for _, dr := range donorResults {
		if dr.Err != nil {
			res.Failed = append(res.Failed, dr.DonorID)
			continue
		}
		all.append(dr.Contribution)
		res.Stats.add(dr.Stats)
	}
	sort.Strings(res.Failed)
	res.Tracking, res.Calls = all.Tracking, all.Calls

	var err error
	if res.Case, err = Pivot(CaseMatrix, all.Case); err != nil {
		return nil, err
	}
	if res.Control, err = Pivot(ControlMatrix, all.Control); err != nil {
		return nil, err
	}
	if res.Diff, err = Pivot(DiffMatrix, all.Diff); err != nil {
		return nil, err
	}
	nCaseRow, nCaseCol := res.Case.Dims()
	logger.Printf("reconcile: %d donors ok, %d failed; case matrix %dx%d, %d diff values, %d tracking rows",
		len(donorResults)-len(res.Failed), len(res.Failed), nCaseRow, nCaseCol, res.Diff.Len(), len(res.Tracking))
	logger.Printf("reconcile: %d variants: %d resolved, %d partial, %d discarded, %d skipped, %d filtered",
		res.Stats.Variants, res.Stats.Resolved, res.Stats.Partial, res.Stats.Discarded, res.Stats.Skipped, res.Stats.Filtered)
	return &res, nil
}
