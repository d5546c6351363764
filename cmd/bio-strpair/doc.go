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
Given a manifest of donors, each with a case (e.g. tumour) and a control
(e.g. normal) ExpansionHunter result, bio-strpair lines up the repeat-length
calls of the two samples and writes donor x locus matrices of case lengths,
control lengths and case - control differences.  Calls whose confidence
intervals are too wide to trust are listed in a separate tracking table.

Sample usage:
bio-strpair reconcile \
    -manifest donors.csv \
    -raw-dir eh-results \
    -out out \
    -name lihc

To reconcile only the loci of a catalog subset:
bio-strpair reconcile -manifest donors.csv -raw-dir eh-results -regions subset.bed

bio-strpair dump-rows out/lihc_rows.rio
*/
package main
