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

	"github.com/grailbio/strpair/encoding/ehjson"
	"github.com/grailbio/strpair/interval"
)

// Row is one flat (row key, region, value) triple destined for a matrix.
type Row struct {
	Key    string
	Region string
	Value  int
}

// TrackingRow records a call, or one allele pair of a call, that was dropped
// because its confidence interval was too wide.
type TrackingRow struct {
	DonorID   string `tsv:"donor_id"`
	Locus     string `tsv:"locus"`
	Region    string `tsv:"region"`
	Motif     string `tsv:"motif"`
	ControlCI string `tsv:"control_ci"`
	CaseCI    string `tsv:"case_ci"`
}

// Call is the long-format view of one reconciled (case, control) allele pair.
// It carries the same values as the matrix rows plus the context needed to
// interpret them.
type Call struct {
	DonorID string
	Key     string
	Locus   string
	Region  string
	Motif   string
	Case    int
	Control int
	// HasDiff is false for monoallelic calls, which never produce a diff.
	HasDiff bool
}

// Diff returns Case - Control.
func (c Call) Diff() int { return c.Case - c.Control }

// Contribution holds the rows a single donor adds to each output.
type Contribution struct {
	Case     []Row
	Control  []Row
	Diff     []Row
	Tracking []TrackingRow
	Calls    []Call
}

func (c *Contribution) emit(call Call) {
	c.Case = append(c.Case, Row{Key: call.Key, Region: call.Region, Value: call.Case})
	c.Control = append(c.Control, Row{Key: call.Key, Region: call.Region, Value: call.Control})
	if call.HasDiff {
		c.Diff = append(c.Diff, Row{Key: call.Key, Region: call.Region, Value: call.Diff()})
	}
	c.Calls = append(c.Calls, call)
}

func (c *Contribution) append(o Contribution) {
	c.Case = append(c.Case, o.Case...)
	c.Control = append(c.Control, o.Control...)
	c.Diff = append(c.Diff, o.Diff...)
	c.Tracking = append(c.Tracking, o.Tracking...)
	c.Calls = append(c.Calls, o.Calls...)
}

// RowKey returns the matrix row key for the given donor and allele slot.
func RowKey(donorID string, slot int) string {
	return fmt.Sprintf("%s_%d", donorID, slot)
}

// locusProcessor applies the reconciliation rules to the variants of one
// donor.  It is not safe for concurrent use; each donor gets its own.
type locusProcessor struct {
	donorID  string
	maxWidth int
	order    OrderPolicy
	regions  *interval.BEDUnion
	exclude  bool
	out      *Contribution
	stats    *DonorStats
}

// ProcessLocus reconciles every variant of caseLocus against the matching
// variant of controlLocus and appends the resulting rows to out.  A nil
// controlLocus means the control payload has no such locus, and every variant
// is skipped.
//
// Variants that cannot be compared (allele count other than 1 or 2, counts
// that differ between case and control, missing genotype or interval, token
// counts that do not match the allele count) are skipped silently and only
// counted in the returned stats.  Variants outside opts.Regions are counted
// as Filtered.  An error is returned only for genotype or
// interval tokens that are not numbers; out may then hold a partial result.
func ProcessLocus(donorID string, caseLocus ehjson.Locus, controlLocus *ehjson.Locus, opts *Opts, out *Contribution) (DonorStats, error) {
	var stats DonorStats
	p := locusProcessor{
		donorID:  donorID,
		maxWidth: opts.MaxCIWidth,
		order:    opts.orderPolicy(),
		regions:  opts.Regions,
		exclude:  opts.ExcludeRegions,
		out:      out,
		stats:    &stats,
	}
	err := p.processLocus(caseLocus, controlLocus)
	return stats, err
}

func (p *locusProcessor) processLocus(caseLocus ehjson.Locus, controlLocus *ehjson.Locus) error {
	for _, variantID := range caseLocus.VariantIDs() {
		if !p.inRegions(caseLocus.Variants[variantID]) {
			p.stats.Filtered++
			continue
		}
		p.stats.Variants++
		if controlLocus == nil || controlLocus.AlleleCount != caseLocus.AlleleCount {
			p.stats.Skipped++
			continue
		}
		controlVariant, ok := controlLocus.Variants[variantID]
		if !ok {
			p.stats.Skipped++
			continue
		}
		if err := p.processVariant(caseLocus.ID, caseLocus.AlleleCount, caseLocus.Variants[variantID], controlVariant); err != nil {
			return fmt.Errorf("locus %s variant %s: %v", caseLocus.ID, variantID, err)
		}
	}
	return nil
}

// inRegions reports whether v passes the region filter: its reference region
// overlaps p.regions, or, with p.exclude, does not overlap it at all.  A
// region that does not parse only passes an exclusion filter.
func (p *locusProcessor) inRegions(v ehjson.Variant) bool {
	if p.regions == nil {
		return true
	}
	r, ok := ParseRegion(v.ReferenceRegion)
	if !ok {
		return p.exclude
	}
	return p.regions.Intersects(r.Chrom, interval.PosType(r.Start), interval.PosType(r.End)) != p.exclude
}

// parsedCall is one side of a variant with its tokens decoded.
type parsedCall struct {
	alleles []int
	cis     []CI
	ciText  []string
}

func parseCall(v ehjson.Variant) (parsedCall, error) {
	alleles, err := parseGenotype(v.Genotype)
	if err != nil {
		return parsedCall{}, err
	}
	cis, err := parseCIs(v.GenotypeConfidenceInterval)
	if err != nil {
		return parsedCall{}, err
	}
	text := make([]string, len(cis))
	for i, ci := range cis {
		text[i] = ci.String()
	}
	return parsedCall{alleles: alleles, cis: cis, ciText: text}, nil
}

func (p *locusProcessor) processVariant(locusID string, alleleCount int, caseVariant, controlVariant ehjson.Variant) error {
	if alleleCount != 1 && alleleCount != 2 {
		p.stats.Skipped++
		return nil
	}
	if caseVariant.Genotype == "" || caseVariant.GenotypeConfidenceInterval == "" ||
		controlVariant.Genotype == "" || controlVariant.GenotypeConfidenceInterval == "" {
		p.stats.Skipped++
		return nil
	}
	caseCall, err := parseCall(caseVariant)
	if err != nil {
		return err
	}
	controlCall, err := parseCall(controlVariant)
	if err != nil {
		return err
	}
	for _, c := range []parsedCall{caseCall, controlCall} {
		if len(c.alleles) != alleleCount || len(c.cis) != alleleCount {
			p.stats.Skipped++
			return nil
		}
	}

	region := caseVariant.ReferenceRegion
	if region == "" {
		region = caseVariant.ID
	}
	track := func(controlCI, caseCI string) {
		p.out.Tracking = append(p.out.Tracking, TrackingRow{
			DonorID:   p.donorID,
			Locus:     locusID,
			Region:    region,
			Motif:     caseVariant.RepeatUnit,
			ControlCI: controlCI,
			CaseCI:    caseCI,
		})
	}
	call := func(slot, caseValue, controlValue int, hasDiff bool) {
		p.out.emit(Call{
			DonorID: p.donorID,
			Key:     RowKey(p.donorID, slot),
			Locus:   locusID,
			Region:  region,
			Motif:   caseVariant.RepeatUnit,
			Case:    caseValue,
			Control: controlValue,
			HasDiff: hasDiff,
		})
	}

	if alleleCount == 1 {
		if IsWide(caseCall.cis[0], p.maxWidth) || IsWide(controlCall.cis[0], p.maxWidth) {
			track(controlCall.ciText[0], caseCall.ciText[0])
			p.stats.Discarded++
			return nil
		}
		call(0, caseCall.alleles[0], controlCall.alleles[0], false)
		p.stats.Resolved++
		return nil
	}

	var (
		caseCIs, controlCIs         = [2]CI{caseCall.cis[0], caseCall.cis[1]}, [2]CI{controlCall.cis[0], controlCall.cis[1]}
		caseAlleles, controlAlleles = [2]int{caseCall.alleles[0], caseCall.alleles[1]}, [2]int{controlCall.alleles[0], controlCall.alleles[1]}
	)
	res := ResolvePair(caseCIs, controlCIs, caseAlleles, controlAlleles, p.maxWidth)
	switch {
	case res.Class == WideNone:
		caseAlleles, controlAlleles = p.order(caseAlleles, controlAlleles)
		for slot := 0; slot < 2; slot++ {
			call(slot, caseAlleles[slot], controlAlleles[slot], true)
		}
		p.stats.Resolved++
	case res.OK:
		call(0, res.Case, res.Control, true)
		d := res.Discarded[0]
		track(d.Control.String(), d.Case.String())
		p.stats.Partial++
	default:
		for _, d := range res.Discarded {
			track(d.Control.String(), d.Case.String())
		}
		p.stats.Discarded++
	}
	return nil
}
