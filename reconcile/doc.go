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
Package reconcile lines up the short tandem repeat calls of a donor's case
and control samples and turns them into donor x region matrices.

For every variant present in both samples the allele count decides the path:

  - one allele: if either confidence interval is wide the call goes to the
    tracking table, otherwise the two lengths are recorded under <donor>_0.
    Monoallelic calls never get a diff.
  - two alleles, none wide: the slots are aligned by an OrderPolicy and
    both pairs are recorded under <donor>_0 and <donor>_1, with diffs.
  - two alleles, some wide: ResolvePair keeps one trusted (case, control)
    pair under <donor>_0 and tracks the dropped one, or tracks both slots if
    no trusted pair is left.

A confidence interval is wide when high - low exceeds Opts.MaxCIWidth.
Variants whose reference region falls outside Opts.RegionsPath, when set,
are not considered at all.

Donors are processed in parallel and independently; a donor whose results
are missing or malformed contributes nothing and is listed in
Result.Failed.  Rows are pivoted into matrices only after all donors are
done, and a (row key, region) cell filled twice aborts the run with a
*CollisionError.
*/
package reconcile
