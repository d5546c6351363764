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
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Jeffail/gabs"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"v.io/x/lib/cmdline"
)

const httRegion = "chr4:3074876-3074933"

func writeResult(t *testing.T, path, genotype, ci string) {
	root := gabs.New()
	for _, kv := range []struct {
		value interface{}
		path  []string
	}{
		{"HTT", []string{"LocusResults", "HTT", "LocusId"}},
		{2, []string{"LocusResults", "HTT", "AlleleCount"}},
		{"CAG", []string{"LocusResults", "HTT", "Variants", "HTT", "RepeatUnit"}},
		{httRegion, []string{"LocusResults", "HTT", "Variants", "HTT", "ReferenceRegion"}},
		{genotype, []string{"LocusResults", "HTT", "Variants", "HTT", "Genotype"}},
		{ci, []string{"LocusResults", "HTT", "Variants", "HTT", "GenotypeConfidenceInterval"}},
	} {
		_, err := root.Set(kv.value, kv.path...)
		require.NoError(t, err)
	}
	require.NoError(t, ioutil.WriteFile(path, root.Bytes(), 0644))
}

func run(t *testing.T, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	env := &cmdline.Env{Stdout: &stdout, Stderr: &stderr}
	err := cmdline.ParseAndRun(newCmdRoot(), env, args)
	return stdout.String(), err
}

func TestReconcileCommand(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	writeResult(t, filepath.Join(tmpdir, "t1.json"), "10/12", "10-10/12-12")
	writeResult(t, filepath.Join(tmpdir, "n1.json"), "12/13", "12-12/13-13")
	manifest := filepath.Join(tmpdir, "manifest.csv")
	require.NoError(t, ioutil.WriteFile(manifest, []byte("icgc_donor_id,case_object_id,control_object_id\nDO1,t1,n1\n"), 0644))
	config := filepath.Join(tmpdir, "strpair.toml")
	require.NoError(t, ioutil.WriteFile(config, []byte("name = \"from-config\"\nmax_ci_width = 0\n"), 0644))

	outDir := filepath.Join(tmpdir, "out")
	stdout, err := run(t, "reconcile",
		"-config", config,
		"-manifest", manifest,
		"-raw-dir", tmpdir,
		"-out", outDir,
		"-name", "cohort",
		"-write-rows")
	require.NoError(t, err)
	paths := strings.Fields(stdout)
	expect.EQ(t, paths, []string{
		filepath.Join(outDir, "cohort_case.csv"),
		filepath.Join(outDir, "cohort_control.csv"),
		filepath.Join(outDir, "cohort_diff.csv"),
		filepath.Join(outDir, "cohort_tracking.tsv"),
		filepath.Join(outDir, "cohort_rows.rio"),
	})

	diff, err := ioutil.ReadFile(paths[2])
	require.NoError(t, err)
	expect.EQ(t, string(diff), "row_key,"+httRegion+"\nDO1_0,0\nDO1_1,-3\n")

	stdout, err = run(t, "dump-rows", paths[4])
	require.NoError(t, err)
	expect.EQ(t, stdout, ""+
		"donor_id\trow_key\tlocus\tregion\tmotif\tcase\tcontrol\tdiff\n"+
		"DO1\tDO1_0\tHTT\t"+httRegion+"\tCAG\t12\t12\t0\n"+
		"DO1\tDO1_1\tHTT\t"+httRegion+"\tCAG\t10\t13\t-3\n")
}

func TestReconcileCommandErrors(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	_, err := run(t, "reconcile", "-raw-dir", tmpdir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-manifest")

	_, err = run(t, "reconcile", "-manifest", "m.csv")
	assert.Error(t, err)

	_, err = run(t, "reconcile", "-manifest", "m.csv", "-raw-dir", tmpdir, "-slot-order", "sorted")
	assert.Error(t, err)

	_, err = run(t, "dump-rows")
	assert.Error(t, err)
}
