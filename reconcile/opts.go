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
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/strpair/interval"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the prefix of the environment variables read by ApplyEnv,
// e.g. STRPAIR_MAX_CI_WIDTH.
const EnvPrefix = "strpair"

// Slot order policy names accepted in Opts.SlotOrder.
const (
	SlotOrderCollision = "collision"
	SlotOrderReported  = "reported"
)

// Opts configures a reconciliation run.
type Opts struct {
	// ManifestPath is the donor manifest CSV.
	ManifestPath string `toml:"manifest" envconfig:"MANIFEST"`
	// RawDir holds the ExpansionHunter results, one per object id.
	RawDir string `toml:"raw_dir" envconfig:"RAW_DIR"`
	// RawSuffix is appended to an object id to get its file name under RawDir.
	RawSuffix string `toml:"raw_suffix" envconfig:"RAW_SUFFIX"`
	// OutDir receives the output tables.
	OutDir string `toml:"out_dir" envconfig:"OUT_DIR"`
	// Name prefixes every output file name.
	Name string `toml:"name" envconfig:"NAME"`
	// MaxCIWidth is the widest confidence interval that is still trusted.
	MaxCIWidth int `toml:"max_ci_width" envconfig:"MAX_CI_WIDTH"`
	// Parallelism is the number of donor workers; <= 0 means one per CPU.
	Parallelism int `toml:"parallelism" envconfig:"PARALLELISM"`
	// Bgzip compresses the text outputs with bgzf and adds a .gz suffix.
	Bgzip bool `toml:"bgzip" envconfig:"BGZIP"`
	// WriteRows additionally writes every reconciled call to a recordio file.
	WriteRows bool `toml:"write_rows" envconfig:"WRITE_ROWS"`
	// MissingWarnFraction is the share of skipped or discarded variants above
	// which a donor is reported with a warning.
	MissingWarnFraction float64 `toml:"missing_warn_fraction" envconfig:"MISSING_WARN_FRACTION"`
	// LoadRetries is the number of times a raw result that failed to load for
	// a reason other than being missing or malformed is retried.
	LoadRetries int `toml:"load_retries" envconfig:"LOAD_RETRIES"`
	// RegionsPath, if set, is a BED file restricting the variants considered
	// to those whose reference region overlaps it.
	RegionsPath string `toml:"regions" envconfig:"REGIONS"`
	// ExcludeRegions inverts the region filter: variants overlapping
	// RegionsPath (or Regions) are dropped, all others kept.
	ExcludeRegions bool `toml:"exclude_regions" envconfig:"EXCLUDE_REGIONS"`
	// SlotOrder names the OrderPolicy used when Order is nil.
	SlotOrder string `toml:"slot_order" envconfig:"SLOT_ORDER"`

	// Order overrides SlotOrder.
	Order OrderPolicy `toml:"-" ignored:"true"`
	// Regions overrides RegionsPath.
	Regions *interval.BEDUnion `toml:"-" ignored:"true"`
}

// DefaultOpts holds the default options.
var DefaultOpts = Opts{
	RawSuffix:           ".json",
	Name:                "strpair",
	MaxCIWidth:          DefaultMaxCIWidth,
	Parallelism:         0,
	MissingWarnFraction: 0.3,
	LoadRetries:         2,
	SlotOrder:           SlotOrderCollision,
}

// LoadConfig overlays the TOML file at path onto opts.  Keys that do not name
// an option are rejected.
func LoadConfig(path string, opts *Opts) error {
	md, err := toml.DecodeFile(path, opts)
	if err != nil {
		return errors.E(errors.Invalid, err, "reconcile.LoadConfig", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.E(errors.Invalid, "reconcile.LoadConfig", path,
			fmt.Sprintf("unknown keys: %s", strings.Join(keys, ", ")))
	}
	return nil
}

// ApplyEnv overlays STRPAIR_* environment variables onto opts.  Unset
// variables leave the corresponding option alone.
func ApplyEnv(opts *Opts) error {
	if err := envconfig.Process(EnvPrefix, opts); err != nil {
		return errors.E(errors.Invalid, err, "reconcile.ApplyEnv")
	}
	return nil
}

// Validate checks opts for consistency.
func (o *Opts) Validate() error {
	if o.RawDir == "" {
		return errors.E(errors.Invalid, "reconcile: raw_dir must be set")
	}
	if o.MaxCIWidth < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("reconcile: max_ci_width %d is negative", o.MaxCIWidth))
	}
	if o.MissingWarnFraction < 0 || o.MissingWarnFraction > 1 {
		return errors.E(errors.Invalid, fmt.Sprintf("reconcile: missing_warn_fraction %v not in [0, 1]", o.MissingWarnFraction))
	}
	if o.LoadRetries < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("reconcile: load_retries %d is negative", o.LoadRetries))
	}
	if o.Name == "" {
		return errors.E(errors.Invalid, "reconcile: name must be set")
	}
	if o.Order == nil {
		if _, err := slotOrderPolicy(o.SlotOrder); err != nil {
			return err
		}
	}
	return nil
}

func (o *Opts) parallelism(nDonor int) int {
	p := o.Parallelism
	if p <= 0 {
		p = runtime.NumCPU()
	}
	if p > nDonor {
		p = nDonor
	}
	return p
}

func (o *Opts) orderPolicy() OrderPolicy {
	if o.Order != nil {
		return o.Order
	}
	policy, err := slotOrderPolicy(o.SlotOrder)
	if err != nil {
		return SwapOnSlotCollision
	}
	return policy
}

// withRegions returns opts with Regions loaded from RegionsPath, if needed.
// opts itself is left unchanged.
func (o *Opts) withRegions(ctx context.Context) (*Opts, error) {
	if o.Regions != nil || o.RegionsPath == "" {
		return o, nil
	}
	u, err := interval.NewBEDUnionFromPath(ctx, o.RegionsPath, interval.NewBEDOpts{})
	if err != nil {
		return nil, errors.E(err, "reconcile: regions")
	}
	withRegions := *o
	withRegions.Regions = &u
	return &withRegions, nil
}

func slotOrderPolicy(name string) (OrderPolicy, error) {
	switch name {
	case "", SlotOrderCollision:
		return SwapOnSlotCollision, nil
	case SlotOrderReported:
		return KeepSlotOrder, nil
	}
	return nil, errors.E(errors.Invalid, fmt.Sprintf("reconcile: unknown slot_order %q", name))
}
