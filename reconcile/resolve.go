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

// WideClass enumerates the ways wide (untrusted) confidence intervals can be
// spread over the four alleles of a diploid case/control call pair.
type WideClass int

const (
	// WideNone means all four alleles are confident.
	WideNone WideClass = iota
	// WideCase0 means only case allele 0 is wide.
	WideCase0
	// WideCase1 means only case allele 1 is wide.
	WideCase1
	// WideControl0 means only control allele 0 is wide.
	WideControl0
	// WideControl1 means only control allele 1 is wide.
	WideControl1
	// WideCross means exactly one case allele and exactly one control allele
	// are wide.
	WideCross
	// WideSameSide means both alleles of one side are wide and the other side
	// is confident.
	WideSameSide
	// WideThreePlus means three or four alleles are wide.
	WideThreePlus
)

var wideClassNames = [...]string{
	WideNone:      "none",
	WideCase0:     "case0",
	WideCase1:     "case1",
	WideControl0:  "control0",
	WideControl1:  "control1",
	WideCross:     "cross",
	WideSameSide:  "same-side",
	WideThreePlus: "three-plus",
}

func (c WideClass) String() string {
	if c < 0 || int(c) >= len(wideClassNames) {
		return "unknown"
	}
	return wideClassNames[c]
}

// Resolvable reports whether a call pair of this class yields exactly one
// trusted (case, control) allele pair.  WideNone is not included: those
// calls yield two pairs and never go through the resolver.
func (c WideClass) Resolvable() bool {
	switch c {
	case WideCase0, WideCase1, WideControl0, WideControl1, WideCross:
		return true
	}
	return false
}

func countTrue(b [2]bool) int {
	n := 0
	if b[0] {
		n++
	}
	if b[1] {
		n++
	}
	return n
}

// ClassifyWide maps per-allele wideness flags onto a WideClass.  Every one of
// the sixteen flag combinations lands in exactly one class.
func ClassifyWide(caseWide, controlWide [2]bool) WideClass {
	nCase, nControl := countTrue(caseWide), countTrue(controlWide)
	switch {
	case nCase+nControl == 0:
		return WideNone
	case nCase+nControl >= 3:
		return WideThreePlus
	case nCase == 2 || nControl == 2:
		return WideSameSide
	case nCase == 1 && nControl == 1:
		return WideCross
	case caseWide[0]:
		return WideCase0
	case caseWide[1]:
		return WideCase1
	case controlWide[0]:
		return WideControl0
	default:
		return WideControl1
	}
}

// CIPair holds the case and control intervals of a discarded allele pair.
type CIPair struct {
	Case, Control CI
}

// Resolution is the outcome of ResolvePair.
type Resolution struct {
	Class WideClass
	// OK is set when a single trusted pair survived.
	OK bool
	// Case and Control are the surviving allele lengths; valid only if OK.
	Case, Control int
	// Discarded lists the intervals that were dropped.  It has one entry when
	// OK and two (one per slot) otherwise.
	Discarded []CIPair
}

// ResolvePair picks the trusted (case, control) allele pair out of a diploid
// call pair that has at least one wide interval.  Exactly one case allele and
// one control allele are dropped:
//
//   - wide alleles within {case0, control1}: drop that pair, keep (case1, control0)
//   - wide alleles within {case1, control0}: drop that pair, keep (case0, control1)
//   - one wide allele per side in the same slot: drop that slot on both sides
//     and keep the other slot
//
// Calls with both alleles of one side wide, or three or more wide alleles,
// cannot be resolved; both slots are reported as discarded.
//
// Calling ResolvePair on a WideNone call pair returns a zero Resolution with
// Class == WideNone.
func ResolvePair(caseCI, controlCI [2]CI, caseAlleles, controlAlleles [2]int, maxWidth int) Resolution {
	var caseWide, controlWide [2]bool
	for i := 0; i < 2; i++ {
		caseWide[i] = IsWide(caseCI[i], maxWidth)
		controlWide[i] = IsWide(controlCI[i], maxWidth)
	}
	res := Resolution{Class: ClassifyWide(caseWide, controlWide)}

	var dropCase, dropControl int
	switch res.Class {
	case WideNone:
		return res
	case WideCase0, WideControl1:
		dropCase, dropControl = 0, 1
	case WideCase1, WideControl0:
		dropCase, dropControl = 1, 0
	case WideCross:
		dropCase, dropControl = wideSlot(caseWide), wideSlot(controlWide)
	default:
		res.Discarded = []CIPair{
			{Case: caseCI[0], Control: controlCI[0]},
			{Case: caseCI[1], Control: controlCI[1]},
		}
		return res
	}
	res.OK = true
	res.Case = caseAlleles[1-dropCase]
	res.Control = controlAlleles[1-dropControl]
	res.Discarded = []CIPair{{Case: caseCI[dropCase], Control: controlCI[dropControl]}}
	return res
}

// wideSlot returns the index of the single wide flag in b.
func wideSlot(b [2]bool) int {
	if b[0] {
		return 0
	}
	return 1
}
