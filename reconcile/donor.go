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
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/strpair/encoding/ehjson"
)

// Donor is one manifest entry.
type Donor struct {
	ID              string
	CaseObjectID    string
	ControlObjectID string
}

// DonorStats counts what happened to the variants of one or more donors.
type DonorStats struct {
	// Variants is the number of case variants examined.
	Variants int
	// Resolved variants produced rows for every allele.
	Resolved int
	// Partial variants produced one resolved pair plus one tracking row.
	Partial int
	// Discarded variants produced tracking rows only.
	Discarded int
	// Skipped variants produced nothing.
	Skipped int
	// Filtered variants fell outside Opts.Regions.  They are not included in
	// Variants.
	Filtered int
}

func (s *DonorStats) add(o DonorStats) {
	s.Variants += o.Variants
	s.Resolved += o.Resolved
	s.Partial += o.Partial
	s.Discarded += o.Discarded
	s.Skipped += o.Skipped
	s.Filtered += o.Filtered
}

// DonorResult is the self-contained outcome of ProcessDonor.
type DonorResult struct {
	DonorID string
	Contribution
	Stats DonorStats
	// Err is set when the donor could not be processed.  Contribution is
	// empty in that case.
	Err error
}

// rawPath returns the path of the ExpansionHunter result for objectID.
func rawPath(opts *Opts, objectID string) string {
	return filepath.Join(opts.RawDir, objectID+opts.RawSuffix)
}

// ProcessDonor reconciles every locus of one donor.  It never fails as a
// whole: a missing or malformed raw result is logged, recorded in Err, and
// yields an empty contribution.
func ProcessDonor(ctx context.Context, donor Donor, opts *Opts, logger Logger) DonorResult {
	res := DonorResult{DonorID: donor.ID}
	contrib, stats, err := processDonor(ctx, donor, opts, logger)
	if err != nil {
		res.Err = errors.E(err, fmt.Sprintf("donor %s", donor.ID))
		logger.Errorf("reconcile: %v", res.Err)
		return res
	}
	res.Contribution, res.Stats = contrib, stats
	logger.Debugf("reconcile: donor %s: %d variants, %d resolved, %d partial, %d discarded, %d skipped, %d filtered",
		donor.ID, stats.Variants, stats.Resolved, stats.Partial, stats.Discarded, stats.Skipped, stats.Filtered)
	if stats.Variants > 0 && opts.MissingWarnFraction > 0 {
		missing := float64(stats.Skipped+stats.Discarded) / float64(stats.Variants)
		if missing > opts.MissingWarnFraction {
			logger.Printf("reconcile: warning: donor %s: %.1f%% of variants unusable",
				donor.ID, 100*missing)
		}
	}
	return res
}

// loadRetryInterval is the first delay between attempts to load a raw result.
var loadRetryInterval = 100 * time.Millisecond

// loadFunc matches ehjson.Load.
type loadFunc func(ctx context.Context, path string) (*ehjson.Result, error)

// loadWithRetry calls load up to opts.LoadRetries+1 times with exponential
// backoff.  Missing and malformed results are not retried.
func loadWithRetry(ctx context.Context, path string, opts *Opts, logger Logger, load loadFunc) (*ehjson.Result, error) {
	var (
		result  *ehjson.Result
		attempt int
	)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = loadRetryInterval
	op := func() error {
		attempt++
		var err error
		if result, err = load(ctx, path); err == nil {
			return nil
		}
		if errors.Is(errors.NotExist, err) || errors.Is(errors.Invalid, err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		logger.Debugf("reconcile: load %s: attempt %d: %v", path, attempt, err)
		return err
	}
	if opts.LoadRetries <= 0 {
		// WithMaxRetries(b, 0) would not limit retries at all.
		err := op()
		if permanent, ok := err.(*backoff.PermanentError); ok {
			err = permanent.Err
		}
		return result, err
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(opts.LoadRetries)), ctx))
	return result, err
}

func processDonor(ctx context.Context, donor Donor, opts *Opts, logger Logger) (Contribution, DonorStats, error) {
	var (
		contrib Contribution
		stats   DonorStats
	)
	caseResult, err := loadWithRetry(ctx, rawPath(opts, donor.CaseObjectID), opts, logger, ehjson.Load)
	if err != nil {
		return Contribution{}, stats, err
	}
	controlResult, err := loadWithRetry(ctx, rawPath(opts, donor.ControlObjectID), opts, logger, ehjson.Load)
	if err != nil {
		return Contribution{}, stats, err
	}
	for _, locusID := range caseResult.LocusIDs() {
		var controlLocus *ehjson.Locus
		if l, ok := controlResult.Loci[locusID]; ok {
			controlLocus = &l
		}
		s, err := ProcessLocus(donor.ID, caseResult.Loci[locusID], controlLocus, opts, &contrib)
		if err != nil {
			return Contribution{}, DonorStats{}, errors.E(errors.Invalid, err)
		}
		stats.add(s)
	}
	return contrib, stats, nil
}
