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
	"sort"
	"strconv"
	"strings"
)

// Region is a parsed "chr:start-end" reference region.
type Region struct {
	Chrom      string
	Start, End int
}

// ParseRegion parses s as "chrom:start-end".  ok is false if s has any other
// shape.
func ParseRegion(s string) (r Region, ok bool) {
	colon := strings.LastIndexByte(s, ':')
	if colon <= 0 {
		return Region{}, false
	}
	dash := strings.IndexByte(s[colon+1:], '-')
	if dash < 0 {
		return Region{}, false
	}
	var err error
	if r.Start, err = strconv.Atoi(s[colon+1 : colon+1+dash]); err != nil {
		return Region{}, false
	}
	if r.End, err = strconv.Atoi(s[colon+2+dash:]); err != nil {
		return Region{}, false
	}
	r.Chrom = s[:colon]
	return r, true
}

// chromRank orders chromosomes 1..22, X, Y, M, then everything else.  The
// "chr" prefix is optional.
func chromRank(chrom string) int {
	c := strings.TrimPrefix(chrom, "chr")
	switch c {
	case "X":
		return 23
	case "Y":
		return 24
	case "M", "MT":
		return 25
	}
	if n, err := strconv.Atoi(c); err == nil && n >= 1 && n <= 22 {
		return n
	}
	return 26
}

// regionLess orders region strings by genomic coordinate.  Strings that do
// not parse sort after all that do, lexicographically.
func regionLess(a, b string) bool {
	ra, okA := ParseRegion(a)
	rb, okB := ParseRegion(b)
	switch {
	case okA && !okB:
		return true
	case !okA && okB:
		return false
	case !okA && !okB:
		return a < b
	}
	if ka, kb := chromRank(ra.Chrom), chromRank(rb.Chrom); ka != kb {
		return ka < kb
	}
	if ra.Chrom != rb.Chrom {
		return ra.Chrom < rb.Chrom
	}
	if ra.Start != rb.Start {
		return ra.Start < rb.Start
	}
	if ra.End != rb.End {
		return ra.End < rb.End
	}
	return a < b
}

// SortRegions sorts regions in place by genomic coordinate.
func SortRegions(regions []string) {
	sort.Slice(regions, func(i, j int) bool { return regionLess(regions[i], regions[j]) })
}
