package interval

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

const catalogBED = `track name=str
# repeat catalog subset
chr4	3074876	3074933	HTT
chrX	67545316	67545385	AR
chr4	3074900	3074950	HTT_ext
chr4	3074950	3075000
chr12	6936716	6936773	ATN1
chr12	100	100
`

func TestNewBEDUnion(t *testing.T) {
	u, err := NewBEDUnion(strings.NewReader(catalogBED), NewBEDOpts{})
	require.NoError(t, err)
	expect.EQ(t, u.String(), "chr12:6936716-6936773,chr4:3074876-3075000,chrX:67545316-67545385")
	expect.EQ(t, u.Len(), 3)
	expect.EQ(t, u.Bases(), 57+124+69)

	expect.True(t, u.ContainsByName("chr4", 3074876))
	expect.True(t, u.ContainsByName("chr4", 3074999))
	expect.False(t, u.ContainsByName("chr4", 3075000))
	expect.False(t, u.ContainsByName("chr4", 3074875))
	expect.False(t, u.ContainsByName("chr1", 3074900))

	expect.True(t, u.Intersects("chr4", 3074800, 3074877))
	expect.False(t, u.Intersects("chr4", 3074800, 3074876))
	expect.True(t, u.Intersects("chrX", 67545380, 67545400))
	expect.False(t, u.Intersects("chrX", 67545385, 67545400))
	expect.True(t, u.Intersects("chr12", 6936000, 6937000))
	expect.False(t, u.Intersects("chr12", 90, 110))
	expect.False(t, u.Intersects("chrY", 0, 1000000))
}

func TestInvertedBEDUnion(t *testing.T) {
	u, err := NewBEDUnion(strings.NewReader(catalogBED), NewBEDOpts{Invert: true})
	require.NoError(t, err)
	expect.EQ(t, u.Len(), 3)
	expect.False(t, u.Intersects("chr4", 3074880, 3074890))
	expect.True(t, u.Intersects("chr4", 3074800, 3074880))
	expect.True(t, u.ContainsByName("chr4", 0))
	// Chromosomes absent from the BED are fully included.
	expect.True(t, u.Intersects("chrY", 0, 1000000))
	// Positions between the loaded intervals are included.
	expect.True(t, u.Intersects("chr12", 90, 110))
}

func TestOneBasedInput(t *testing.T) {
	u, err := NewBEDUnion(strings.NewReader("chr1 11 20\n"), NewBEDOpts{OneBasedInput: true})
	require.NoError(t, err)
	expect.EQ(t, u.String(), "chr1:10-20")
	expect.True(t, u.ContainsByName("chr1", 10))
	expect.False(t, u.ContainsByName("chr1", 9))
}

func TestBEDErrors(t *testing.T) {
	for _, bed := range []string{
		"chr1 10\n",
		"chr1 x 20\n",
		"chr1 30 20\n",
		"chr1 -5 20\n",
	} {
		_, err := NewBEDUnion(strings.NewReader(bed), NewBEDOpts{})
		expect.NotNil(t, err, bed)
	}
	_, err := NewBEDUnionFromEntries([]Entry{{"chr1", 5, 2}}, NewBEDOpts{})
	expect.NotNil(t, err)
}

func TestNewBEDUnionFromPath(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, tmpdir)
	ctx := vcontext.Background()

	plain := filepath.Join(tmpdir, "catalog.bed")
	require.NoError(t, ioutil.WriteFile(plain, []byte(catalogBED), 0644))
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(catalogBED))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	compressed := filepath.Join(tmpdir, "catalog.bed.gz")
	require.NoError(t, ioutil.WriteFile(compressed, buf.Bytes(), 0644))

	want, err := NewBEDUnion(strings.NewReader(catalogBED), NewBEDOpts{})
	require.NoError(t, err)
	for _, path := range []string{plain, compressed} {
		u, err := NewBEDUnionFromPath(ctx, path, NewBEDOpts{})
		require.NoError(t, err)
		expect.EQ(t, u.String(), want.String())
	}
	_, err = NewBEDUnionFromPath(ctx, filepath.Join(tmpdir, "absent.bed"), NewBEDOpts{})
	expect.NotNil(t, err)
}
