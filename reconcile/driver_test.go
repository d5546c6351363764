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
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	htt  = "chr4:3074876-3074933"
	ar   = "chrX:67545316-67545385"
	atn1 = "chr12:6936716-6936773"
)

// makeCohort writes nDonor donors with a mix of confident, partial,
// monoallelic and discarded calls.
func makeCohort(t *testing.T, dir string, nDonor int) []Donor {
	donors := make([]Donor, nDonor)
	for i := range donors {
		a, b := 10+i%5, 12+i%7
		caseLoci := []fixtureLocus{
			str("HTT", htt, 2, fmt.Sprintf("%d/%d", a, b), fmt.Sprintf("%d-%d/%d-%d", a, a, b, b+1)),
			str("AR", ar, 1, fmt.Sprint(20+i%3), fmt.Sprintf("%d-%d", 20+i%3, 20+i%3)),
			str("ATN1", atn1, 2, "8/30", "8-8/20-40"),
		}
		controlLoci := []fixtureLocus{
			str("HTT", htt, 2, fmt.Sprintf("%d/%d", b, a+3), fmt.Sprintf("%d-%d/%d-%d", b, b, a+3, a+3)),
			str("AR", ar, 1, "21", "21-21"),
			str("ATN1", atn1, 2, "9/10", "9-9/10-10"),
		}
		if i%4 == 3 {
			// Unresolvable: both case alleles wide.
			caseLoci[2] = str("ATN1", atn1, 2, "8/30", "1-20/20-40")
		}
		donors[i] = fixtureDonor(t, dir, fmt.Sprintf("DO%03d", i), caseLoci, controlLoci)
	}
	return donors
}

func matrixCSV(t *testing.T, m *Matrix) string {
	var buf bytes.Buffer
	require.NoError(t, WriteMatrixCSV(m, &buf))
	return buf.String()
}

func TestReconcile(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	donors := makeCohort(t, tmpdir, 8)
	logger := &recordingLogger{}
	res, err := Reconcile(ctx, donors, testOpts(tmpdir), logger)
	require.NoError(t, err)
	assert.Empty(t, res.Failed)

	nRow, nCol := res.Case.Dims()
	expect.EQ(t, nRow, 16)
	expect.EQ(t, nCol, 3)
	// Columns are ordered by genomic coordinate.
	expect.EQ(t, res.Case.Regions, []string{htt, atn1, ar})
	expect.EQ(t, res.Case.RowKeys[:3], []string{"DO000_0", "DO000_1", "DO001_0"})

	// DO000: HTT case (10, 12) vs control (12, 13): swapped to (12, 10).
	v, ok := res.Diff.At("DO000_0", htt)
	assert.True(t, ok)
	expect.EQ(t, v, 0.0)
	v, ok = res.Diff.At("DO000_1", htt)
	assert.True(t, ok)
	expect.EQ(t, v, -3.0)
	// AR is monoallelic: case and control but no diff.
	v, ok = res.Case.At("DO000_0", ar)
	assert.True(t, ok)
	expect.EQ(t, v, 20.0)
	_, ok = res.Diff.At("DO000_0", ar)
	assert.False(t, ok)
	// ATN1 is partial: case1 wide, keep (case0, control1) at slot 0 only.
	v, ok = res.Diff.At("DO000_0", atn1)
	assert.True(t, ok)
	expect.EQ(t, v, -2.0)
	_, ok = res.Case.At("DO000_1", atn1)
	assert.False(t, ok)
	// DO003 has an unresolvable ATN1 call.
	_, ok = res.Case.At("DO003_0", atn1)
	assert.False(t, ok)

	// 6 partial donors with one tracking row each, 2 unresolvable with two.
	expect.EQ(t, len(res.Tracking), 6+2*2)
	expect.EQ(t, res.Stats, DonorStats{Variants: 24, Resolved: 16, Partial: 6, Discarded: 2})
	expect.EQ(t, len(res.Calls), 8*(2+1)+6)
	expect.EQ(t, logger.infoContaining("8 donors ok, 0 failed"), 1)
}

func TestReconcileDeterministic(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	donors := makeCohort(t, tmpdir, 23)
	opts := testOpts(tmpdir)
	opts.Parallelism = 1
	want, err := Reconcile(ctx, donors, opts, &recordingLogger{})
	require.NoError(t, err)

	r := rand.New(rand.NewSource(0))
	for iter := 0; iter < 5; iter++ {
		shuffled := append([]Donor(nil), donors...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		opts.Parallelism = 1 + iter*3
		got, err := Reconcile(ctx, shuffled, opts, &recordingLogger{})
		require.NoError(t, err)
		expect.EQ(t, matrixCSV(t, got.Case), matrixCSV(t, want.Case))
		expect.EQ(t, matrixCSV(t, got.Control), matrixCSV(t, want.Control))
		expect.EQ(t, matrixCSV(t, got.Diff), matrixCSV(t, want.Diff))
		expect.EQ(t, got.Tracking, want.Tracking)
		expect.EQ(t, got.Calls, want.Calls)
		expect.EQ(t, got.Stats, want.Stats)
	}
}

func TestReconcileIsolation(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	donors := makeCohort(t, tmpdir, 4)
	require.NoError(t, os.Remove(filepath.Join(tmpdir, donors[1].CaseObjectID+".json")))
	logger := &recordingLogger{}
	res, err := Reconcile(ctx, donors, testOpts(tmpdir), logger)
	require.NoError(t, err)
	expect.EQ(t, res.Failed, []string{"DO001"})
	assert.Len(t, logger.errs, 1)
	for _, m := range []*Matrix{res.Case, res.Control, res.Diff} {
		for _, k := range m.RowKeys {
			assert.NotContains(t, k, "DO001", m.Name)
		}
		assert.Contains(t, m.RowKeys, "DO002_0", m.Name)
	}
	for _, row := range res.Tracking {
		assert.NotEqual(t, "DO001", row.DonorID)
	}
}

func TestReconcileDuplicateDonor(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	donors := makeCohort(t, tmpdir, 3)
	donors = append(donors, donors[1])
	_, err := Reconcile(ctx, donors, testOpts(tmpdir), &recordingLogger{})
	require.Error(t, err)
	collision, ok := err.(*CollisionError)
	require.True(t, ok, "%T: %v", err, err)
	expect.EQ(t, collision.Matrix, CaseMatrix)
	expect.EQ(t, collision.RowKey, "DO001_0")
}

func TestReconcileEmpty(t *testing.T) {
	res, err := Reconcile(vcontext.Background(), nil, testOpts("/nonexistent"), &recordingLogger{})
	require.NoError(t, err)
	nRow, nCol := res.Diff.Dims()
	expect.EQ(t, nRow, 0)
	expect.EQ(t, nCol, 0)
}

func TestReconcileInvalidOpts(t *testing.T) {
	opts := testOpts("/nonexistent")
	opts.SlotOrder = "sorted"
	_, err := Reconcile(vcontext.Background(), nil, opts, &recordingLogger{})
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)

	opts = testOpts("")
	_, err = Reconcile(vcontext.Background(), nil, opts, &recordingLogger{})
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
}

func TestReconcileCancelled(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)

	donors := makeCohort(t, tmpdir, 2)
	ctx, cancel := context.WithCancel(vcontext.Background())
	cancel()
	_, err := Reconcile(ctx, donors, testOpts(tmpdir), &recordingLogger{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), context.Canceled.Error())
}

func TestSafeProcessDonor(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	logger := &recordingLogger{}
	opts := testOpts(tmpdir)
	opts.Order = func(c, n [2]int) ([2]int, [2]int) { panic("boom") }
	donor := fixtureDonor(t, tmpdir, "DO9",
		[]fixtureLocus{str("HTT", htt, 2, "10/12", "10-10/12-12")},
		[]fixtureLocus{str("HTT", htt, 2, "10/12", "10-10/12-12")})
	res := safeProcessDonor(vcontext.Background(), donor, opts, logger)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "boom")
	expect.EQ(t, res.DonorID, "DO9")
	assert.Len(t, logger.errs, 1)
}

func TestReconcileRegions(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	donors := makeCohort(t, tmpdir, 8)
	bed := filepath.Join(tmpdir, "htt.bed")
	require.NoError(t, ioutil.WriteFile(bed, []byte("chr4\t3074800\t3074900\tHTT\n"), 0644))

	opts := testOpts(tmpdir)
	opts.RegionsPath = bed
	logger := &recordingLogger{}
	res, err := Reconcile(ctx, donors, opts, logger)
	require.NoError(t, err)
	expect.EQ(t, res.Case.Regions, []string{htt})
	expect.EQ(t, res.Stats, DonorStats{Variants: 8, Resolved: 8, Filtered: 16})
	expect.EQ(t, logger.infoContaining("1 regions (100 bases) loaded"), 1)
	assert.Nil(t, opts.Regions)

	// The BED covers only the first part of HTT; the partial overlap is
	// enough to exclude it.
	opts.ExcludeRegions = true
	res, err = Reconcile(ctx, donors, opts, &recordingLogger{})
	require.NoError(t, err)
	expect.EQ(t, res.Case.Regions, []string{atn1, ar})
	expect.EQ(t, res.Stats, DonorStats{Variants: 16, Resolved: 8, Partial: 6, Discarded: 2, Filtered: 8})

	opts = testOpts(tmpdir)
	opts.RegionsPath = filepath.Join(tmpdir, "absent.bed")
	_, err = Reconcile(ctx, donors, opts, &recordingLogger{})
	assert.Error(t, err)
}
