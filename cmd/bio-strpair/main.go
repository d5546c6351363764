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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/strpair/reconcile"
	"v.io/x/lib/cmdline"
)

func newCmdReconcile() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "reconcile",
		Short: "Reconcile paired case/control repeat genotypes into matrices",
		Long: `
Reads the donor manifest, loads each donor's case and control ExpansionHunter
results, and writes the case, control and diff matrices plus the tracking
table to -out.

Options are taken, in increasing order of precedence, from the built-in
defaults, the -config TOML file, STRPAIR_* environment variables, and flags
given on the command line.`,
	}
	var (
		configPath string
		f          = reconcile.DefaultOpts
	)
	cmd.Flags.StringVar(&configPath, "config", "", "TOML file with reconcile options")
	cmd.Flags.StringVar(&f.ManifestPath, "manifest", f.ManifestPath, "Donor manifest CSV (icgc_donor_id, case_object_id, control_object_id)")
	cmd.Flags.StringVar(&f.RawDir, "raw-dir", f.RawDir, "Directory holding the ExpansionHunter results")
	cmd.Flags.StringVar(&f.RawSuffix, "raw-suffix", f.RawSuffix, "Suffix appended to an object id to get its result file name")
	cmd.Flags.StringVar(&f.OutDir, "out", f.OutDir, "Output directory")
	cmd.Flags.StringVar(&f.Name, "name", f.Name, "Output file name prefix")
	cmd.Flags.IntVar(&f.MaxCIWidth, "max-ci-width", f.MaxCIWidth, "Widest trusted genotype confidence interval")
	cmd.Flags.IntVar(&f.Parallelism, "parallelism", f.Parallelism, "Number of donors processed at once; 0 = runtime.NumCPU()")
	cmd.Flags.BoolVar(&f.Bgzip, "bgzip", f.Bgzip, "bgzf-compress the text outputs")
	cmd.Flags.BoolVar(&f.WriteRows, "write-rows", f.WriteRows, "Also write every reconciled call to <name>_rows.rio")
	cmd.Flags.Float64Var(&f.MissingWarnFraction, "missing-warn-fraction", f.MissingWarnFraction, "Warn about donors with more than this share of unusable variants")
	cmd.Flags.IntVar(&f.LoadRetries, "load-retries", f.LoadRetries, "Retries for raw results that fail to load for a transient reason")
	cmd.Flags.StringVar(&f.RegionsPath, "regions", f.RegionsPath, "BED file; only variants overlapping it are reconciled")
	cmd.Flags.BoolVar(&f.ExcludeRegions, "exclude-regions", f.ExcludeRegions, "Drop the variants overlapping -regions instead")
	cmd.Flags.StringVar(&f.SlotOrder, "slot-order", f.SlotOrder, `Allele slot alignment policy: "collision" or "reported"`)

	fromFlag := map[string]func(o *reconcile.Opts){
		"manifest":              func(o *reconcile.Opts) { o.ManifestPath = f.ManifestPath },
		"raw-dir":               func(o *reconcile.Opts) { o.RawDir = f.RawDir },
		"raw-suffix":            func(o *reconcile.Opts) { o.RawSuffix = f.RawSuffix },
		"out":                   func(o *reconcile.Opts) { o.OutDir = f.OutDir },
		"name":                  func(o *reconcile.Opts) { o.Name = f.Name },
		"max-ci-width":          func(o *reconcile.Opts) { o.MaxCIWidth = f.MaxCIWidth },
		"parallelism":           func(o *reconcile.Opts) { o.Parallelism = f.Parallelism },
		"bgzip":                 func(o *reconcile.Opts) { o.Bgzip = f.Bgzip },
		"write-rows":            func(o *reconcile.Opts) { o.WriteRows = f.WriteRows },
		"missing-warn-fraction": func(o *reconcile.Opts) { o.MissingWarnFraction = f.MissingWarnFraction },
		"load-retries":          func(o *reconcile.Opts) { o.LoadRetries = f.LoadRetries },
		"regions":               func(o *reconcile.Opts) { o.RegionsPath = f.RegionsPath },
		"exclude-regions":       func(o *reconcile.Opts) { o.ExcludeRegions = f.ExcludeRegions },
		"slot-order":            func(o *reconcile.Opts) { o.SlotOrder = f.SlotOrder },
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("reconcile takes no positional arguments, but got %v", argv)
		}
		opts := reconcile.DefaultOpts
		if configPath != "" {
			if err := reconcile.LoadConfig(configPath, &opts); err != nil {
				return err
			}
		}
		if err := reconcile.ApplyEnv(&opts); err != nil {
			return err
		}
		cmd.Flags.Visit(func(fl *flag.Flag) {
			if apply, ok := fromFlag[fl.Name]; ok {
				apply(&opts)
			}
		})
		return runReconcile(vcontext.Background(), env, &opts)
	})
	return cmd
}

func runReconcile(ctx context.Context, env *cmdline.Env, opts *reconcile.Opts) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.ManifestPath == "" {
		return fmt.Errorf("reconcile: -manifest is required")
	}
	runID := reconcile.NewRunID()
	logger := reconcile.NewRunLogger(runID)
	donors, err := reconcile.ReadManifest(ctx, opts.ManifestPath)
	if err != nil {
		return err
	}
	logger.Printf("reconcile: %d donors from %s", len(donors), opts.ManifestPath)
	if opts.OutDir != "" && !strings.Contains(opts.OutDir, "://") {
		if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
			return err
		}
	}
	res, err := reconcile.Reconcile(ctx, donors, opts, logger)
	if err != nil {
		return err
	}
	paths, err := reconcile.WriteResult(ctx, res, opts, runID)
	if err != nil {
		return err
	}
	for _, p := range []string{paths.Case, paths.Control, paths.Diff, paths.Tracking, paths.Calls} {
		if p != "" {
			fmt.Fprintln(env.Stdout, p)
		}
	}
	if len(res.Failed) > 0 {
		logger.Printf("reconcile: failed donors: %s", strings.Join(res.Failed, ", "))
	}
	return nil
}

func newCmdDumpRows() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "dump-rows",
		Short:    "Print a reconciled rows file as TSV",
		ArgsName: "path",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("dump-rows takes one pathname argument, but got %v", argv)
		}
		calls, runID, err := reconcile.ReadCallsFile(vcontext.Background(), argv[0])
		if err != nil {
			return err
		}
		log.Debug.Printf("dump-rows: %s: %d calls from run %s", argv[0], len(calls), runID)
		return reconcile.WriteCallsTSV(calls, env.Stdout)
	})
	return cmd
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-strpair",
		Short:    "Tools for paired case/control short tandem repeat genotypes",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdReconcile(),
			newCmdDumpRows(),
		},
	}
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}
