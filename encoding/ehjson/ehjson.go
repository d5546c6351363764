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

package ehjson

import (
	"context"
	"io/ioutil"
	"sort"

	"github.com/Jeffail/gabs"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/mitchellh/mapstructure"
)

// Variant is a single repeat call within a locus.  Genotype and
// GenotypeConfidenceInterval are kept in their textual form ("12/14",
// "11-13/14-14"); numeric interpretation is left to the caller.
type Variant struct {
	ID                         string `mapstructure:"VariantId"`
	VariantType                string `mapstructure:"VariantType"`
	Genotype                   string `mapstructure:"Genotype"`
	GenotypeConfidenceInterval string `mapstructure:"GenotypeConfidenceInterval"`
	RepeatUnit                 string `mapstructure:"RepeatUnit"`
	ReferenceRegion            string `mapstructure:"ReferenceRegion"`
}

// Locus is the result for one catalog locus.
type Locus struct {
	ID          string             `mapstructure:"LocusId"`
	AlleleCount int                `mapstructure:"AlleleCount"`
	Variants    map[string]Variant `mapstructure:"Variants"`
}

// VariantIDs returns the variant identifiers of l in sorted order.
func (l Locus) VariantIDs() []string {
	ids := make([]string, 0, len(l.Variants))
	for id := range l.Variants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Result is one sample's decoded payload.
type Result struct {
	// SampleID is SampleParameters.SampleId, if present.
	SampleID string
	Loci     map[string]Locus
}

// LocusIDs returns the locus identifiers of r in sorted order.
func (r *Result) LocusIDs() []string {
	ids := make([]string, 0, len(r.Loci))
	for id := range r.Loci {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func decodeStruct(in interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(in)
}

// Decode parses an ExpansionHunter JSON payload.  Only LocusResults is
// required; every other top-level section is ignored except for the sample
// id.
func Decode(data []byte) (*Result, error) {
	root, err := gabs.ParseJSON(data)
	if err != nil {
		return nil, errors.E(errors.Invalid, err, "ehjson: parse")
	}
	if !root.Exists("LocusResults") {
		return nil, errors.E(errors.Invalid, "ehjson: missing LocusResults")
	}
	loci, err := root.Search("LocusResults").ChildrenMap()
	if err != nil {
		return nil, errors.E(errors.Invalid, err, "ehjson: LocusResults is not an object")
	}
	r := &Result{Loci: make(map[string]Locus, len(loci))}
	if id, ok := root.Search("SampleParameters", "SampleId").Data().(string); ok {
		r.SampleID = id
	}
	for id, c := range loci {
		var l Locus
		if err := decodeStruct(c.Data(), &l); err != nil {
			return nil, errors.E(errors.Invalid, err, "ehjson: locus", id)
		}
		if l.ID == "" {
			l.ID = id
		}
		for vid, v := range l.Variants {
			if v.ID == "" {
				v.ID = vid
				l.Variants[vid] = v
			}
		}
		r.Loci[id] = l
	}
	return r, nil
}

// Load reads and decodes the payload at path.  Compressed payloads (gzip,
// zstd, ...) are detected from their magic bytes.  A path that does not exist
// yields an errors.NotExist error, which callers use to tell a missing sample
// apart from a malformed one.
func Load(ctx context.Context, path string) (r *Result, err error) {
	if _, err = file.Stat(ctx, path); err != nil {
		return nil, errors.E(errors.NotExist, err, "ehjson: stat", path)
	}
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, errors.E(err, "ehjson: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	reader, _ := compress.NewReader(in.Reader(ctx))
	defer func() {
		if e := reader.Close(); e != nil && err == nil {
			err = e
		}
	}()
	data, err := ioutil.ReadAll(reader)
	if err != nil {
		return nil, errors.E(err, "ehjson: read", path)
	}
	if r, err = Decode(data); err != nil {
		return nil, errors.E(err, path)
	}
	return r, nil
}
