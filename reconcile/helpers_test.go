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
	"io/ioutil"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Jeffail/gabs"
	"github.com/grailbio/strpair/encoding/ehjson"
	"github.com/stretchr/testify/require"
)

type fixtureVariant struct {
	id, region, motif string
	genotype, ci      string
}

type fixtureLocus struct {
	id          string
	alleleCount int
	variants    []fixtureVariant
}

// str returns a single-variant locus whose variant id equals the locus id.
func str(id, region string, alleleCount int, genotype, ci string) fixtureLocus {
	return fixtureLocus{
		id:          id,
		alleleCount: alleleCount,
		variants: []fixtureVariant{{
			id: id, region: region, motif: "CAG", genotype: genotype, ci: ci,
		}},
	}
}

func (l fixtureLocus) locus() ehjson.Locus {
	out := ehjson.Locus{ID: l.id, AlleleCount: l.alleleCount, Variants: map[string]ehjson.Variant{}}
	for _, v := range l.variants {
		out.Variants[v.id] = ehjson.Variant{
			ID:                         v.id,
			Genotype:                   v.genotype,
			GenotypeConfidenceInterval: v.ci,
			RepeatUnit:                 v.motif,
			ReferenceRegion:            v.region,
		}
	}
	return out
}

// writeEH writes an ExpansionHunter-style payload holding loci to path.
func writeEH(t *testing.T, path string, loci ...fixtureLocus) {
	root := gabs.New()
	set := func(value interface{}, path ...string) {
		_, err := root.Set(value, path...)
		require.NoError(t, err)
	}
	set("sample", "SampleParameters", "SampleId")
	set(map[string]interface{}{}, "LocusResults")
	for _, l := range loci {
		set(l.id, "LocusResults", l.id, "LocusId")
		set(l.alleleCount, "LocusResults", l.id, "AlleleCount")
		for _, v := range l.variants {
			base := []string{"LocusResults", l.id, "Variants", v.id}
			set("Repeat", append(base, "VariantType")...)
			set(v.motif, append(base, "RepeatUnit")...)
			set(v.region, append(base, "ReferenceRegion")...)
			if v.genotype != "" {
				set(v.genotype, append(base, "Genotype")...)
			}
			if v.ci != "" {
				set(v.ci, append(base, "GenotypeConfidenceInterval")...)
			}
		}
	}
	require.NoError(t, ioutil.WriteFile(path, root.Bytes(), 0644))
}

// fixtureDonor writes the case and control payloads of donor id under dir
// and returns its manifest entry.
func fixtureDonor(t *testing.T, dir, id string, caseLoci, controlLoci []fixtureLocus) Donor {
	d := Donor{ID: id, CaseObjectID: id + "-tumour", ControlObjectID: id + "-normal"}
	writeEH(t, filepath.Join(dir, d.CaseObjectID+".json"), caseLoci...)
	writeEH(t, filepath.Join(dir, d.ControlObjectID+".json"), controlLoci...)
	return d
}

// recordingLogger keeps every line it is given.
type recordingLogger struct {
	mu                  sync.Mutex
	infos, debugs, errs []string
}

func (l *recordingLogger) Printf(format string, args ...interface{}) {
	l.mu.Lock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *recordingLogger) Debugf(format string, args ...interface{}) {
	l.mu.Lock()
	l.debugs = append(l.debugs, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *recordingLogger) Errorf(format string, args ...interface{}) {
	l.mu.Lock()
	l.errs = append(l.errs, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *recordingLogger) infoContaining(s string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.infos {
		if strings.Contains(line, s) {
			n++
		}
	}
	return n
}

func testOpts(rawDir string) *Opts {
	opts := DefaultOpts
	opts.RawDir = rawDir
	return &opts
}
