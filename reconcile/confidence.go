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
	"strconv"
	"strings"
)

// DefaultMaxCIWidth is the widest genotype confidence interval (high - low,
// in repeat units) that is still trusted.
const DefaultMaxCIWidth = 2

// CI is a closed confidence interval around one called allele length.
type CI struct {
	Low, High int
}

// Width returns High - Low.
func (ci CI) Width() int { return ci.High - ci.Low }

// String renders ci the way ExpansionHunter does, e.g. "11-13".
func (ci CI) String() string {
	return strconv.Itoa(ci.Low) + "-" + strconv.Itoa(ci.High)
}

// IsWide reports whether ci is too wide to trust, i.e. its width strictly
// exceeds maxWidth.
func IsWide(ci CI, maxWidth int) bool {
	return ci.Width() > maxWidth
}

// ParseCI parses a single "low-high" token.
func ParseCI(s string) (CI, error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return CI{}, fmt.Errorf("reconcile.ParseCI: %q is not of the form low-high", s)
	}
	low, err := strconv.Atoi(parts[0])
	if err != nil {
		return CI{}, fmt.Errorf("reconcile.ParseCI: %q: %v", s, err)
	}
	high, err := strconv.Atoi(parts[1])
	if err != nil {
		return CI{}, fmt.Errorf("reconcile.ParseCI: %q: %v", s, err)
	}
	if low > high {
		return CI{}, fmt.Errorf("reconcile.ParseCI: %q has low > high", s)
	}
	return CI{Low: low, High: high}, nil
}

// parseCIs parses a '/'-joined list of intervals, one per allele.
func parseCIs(s string) ([]CI, error) {
	tokens := strings.Split(s, "/")
	cis := make([]CI, len(tokens))
	for i, tok := range tokens {
		ci, err := ParseCI(tok)
		if err != nil {
			return nil, err
		}
		cis[i] = ci
	}
	return cis, nil
}

// parseGenotype parses a '/'-joined list of allele lengths.
func parseGenotype(s string) ([]int, error) {
	tokens := strings.Split(s, "/")
	alleles := make([]int, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("reconcile.parseGenotype: %q: %v", s, err)
		}
		alleles[i] = v
	}
	return alleles, nil
}
