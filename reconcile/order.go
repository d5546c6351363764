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

// OrderPolicy decides how the allele slots of a fully confident diploid case
// call line up with those of the matching control call.  It returns the
// (possibly permuted) alleles; after it runs, case[i] is paired with
// control[i].
//
// ExpansionHunter makes no promise that slot i means the same allele in two
// independent calls on the same donor, so this is always a heuristic.
type OrderPolicy func(caseAlleles, controlAlleles [2]int) ([2]int, [2]int)

// SwapOnSlotCollision is the default OrderPolicy.  If the second case allele
// equals the first control allele, the two calls are assumed to have been
// emitted in opposite slot order and the case alleles are swapped.
//
// Only that one collision is checked.  case[0] == control[1] on its own does
// not trigger a swap, and when both collisions hold the result is the same
// as for the first alone.
func SwapOnSlotCollision(caseAlleles, controlAlleles [2]int) ([2]int, [2]int) {
	if caseAlleles[1] == controlAlleles[0] {
		caseAlleles[0], caseAlleles[1] = caseAlleles[1], caseAlleles[0]
	}
	return caseAlleles, controlAlleles
}

// KeepSlotOrder is an OrderPolicy that trusts the reported slot order.
func KeepSlotOrder(caseAlleles, controlAlleles [2]int) ([2]int, [2]int) {
	return caseAlleles, controlAlleles
}
