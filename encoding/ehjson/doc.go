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

/*
Package ehjson reads the per-sample JSON written by ExpansionHunter.

The relevant part of a payload looks like

  {
    "LocusResults": {
      "ATXN1": {
        "LocusId": "ATXN1",
        "AlleleCount": 2,
        "Variants": {
          "ATXN1": {
            "Genotype": "30/33",
            "GenotypeConfidenceInterval": "30-30/32-35",
            "RepeatUnit": "CTG",
            "ReferenceRegion": "chr6:16327633-16327723"
          }
        }
      }
    },
    "SampleParameters": {"SampleId": "tumour"}
  }

Everything else (read counts, coverage, per-allele support) is ignored.
*/
package ehjson
