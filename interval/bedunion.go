package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// NewBEDOpts defines behavior of this package's BED-loading functions.
type NewBEDOpts struct {
	// Invert causes the complement of the interval-union to be returned.
	// Chromosomes absent from the BED are then fully included.
	Invert bool
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// PosType is BEDUnion's coordinate type.
type PosType int32

const posTypeMax = math.MaxInt32

// searchPosType returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).
func searchPosType(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

// BEDUnion is a collection of length-2N sequences, one per chromosome, where
// N is the number of intervals.  The (0-based) start position of interval #k
// is in element [2k], its end position in element [2k+1], and the intervals
// are stored in increasing order.  An inverted union brackets each sequence
// with -1 and posTypeMax, so the same odd/even test answers containment.
//
// A BEDUnion is immutable once built and safe for concurrent queries.
type BEDUnion struct {
	nameMap map[string][]PosType
	invert  bool
	bases   int
}

// Entry represents a single interval, with 0-based coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

func (u *BEDUnion) chrIntervals(chrName string) ([]PosType, bool) {
	intervals, ok := u.nameMap[chrName]
	return intervals, ok
}

// ContainsByName checks whether the (0-based) position pos on chrName is in
// the union.
func (u *BEDUnion) ContainsByName(chrName string, pos PosType) bool {
	intervals, ok := u.chrIntervals(chrName)
	if !ok {
		return u.invert
	}
	return searchPosType(intervals, pos+1)&1 == 1
}

// Intersects checks whether the 0-based half-open interval [start, end) on
// chrName shares at least one position with the union.  An empty interval is
// treated as the single position start.
func (u *BEDUnion) Intersects(chrName string, start, end PosType) bool {
	if end <= start {
		return u.ContainsByName(chrName, start)
	}
	intervals, ok := u.chrIntervals(chrName)
	if !ok {
		return u.invert
	}
	idx := searchPosType(intervals, start+1)
	if idx&1 == 1 {
		return true
	}
	return idx != len(intervals) && end > intervals[idx]
}

// Len returns the number of disjoint intervals in the union, not counting
// the complement intervals of an inverted union.
func (u *BEDUnion) Len() int {
	n := 0
	for _, intervals := range u.nameMap {
		k := len(intervals) / 2
		if u.invert {
			k--
		}
		n += k
	}
	return n
}

// Bases returns the number of positions covered by the loaded intervals,
// before any inversion.
func (u *BEDUnion) Bases() int { return u.bases }

// ParseBEDLine parses the first three columns of a BED line.  ok is false for
// blank, comment, "track" and "browser" lines.
func ParseBEDLine(line []byte, opts NewBEDOpts) (entry Entry, ok bool, err error) {
	var tokens [3][]byte
	nToken := getTokens(tokens[:], line)
	if nToken == 0 || tokens[0][0] == '#' {
		return Entry{}, false, nil
	}
	if first := gunsafe.BytesToString(tokens[0]); first == "track" || first == "browser" {
		return Entry{}, false, nil
	}
	if nToken != 3 {
		return Entry{}, false, fmt.Errorf("interval.ParseBEDLine: fewer tokens than expected")
	}
	parsedStart, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
	if err != nil {
		return Entry{}, false, err
	}
	if opts.OneBasedInput {
		parsedStart--
	}
	if parsedStart < 0 {
		return Entry{}, false, fmt.Errorf("interval.ParseBEDLine: negative start coordinate %s", tokens[1])
	}
	parsedEnd, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
	if err != nil {
		return Entry{}, false, err
	}
	if parsedEnd < parsedStart || parsedEnd >= posTypeMax {
		return Entry{}, false, fmt.Errorf("interval.ParseBEDLine: invalid coordinate pair %s-%s", tokens[1], tokens[2])
	}
	return Entry{ChrName: string(tokens[0]), Start0: PosType(parsedStart), End: PosType(parsedEnd)}, true, nil
}

// NewBEDUnion loads the intervals of a BED stream, merging touching or
// overlapping intervals and eliminating empty ones.  The input need not be
// sorted.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (BEDUnion, error) {
	scanner := bufio.NewScanner(reader)
	var entries []Entry
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		entry, ok, err := ParseBEDLine(scanner.Bytes(), opts)
		if err != nil {
			return BEDUnion{}, errors.E(errors.Invalid, err, fmt.Sprintf("line %d", lineIdx))
		}
		if ok {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return BEDUnion{}, err
	}
	return NewBEDUnionFromEntries(entries, opts)
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader.  Paths ending in .gz are decompressed.
func NewBEDUnionFromPath(ctx context.Context, path string, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer file.CloseAndReport(ctx, infile, &err)
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		var gz *gzip.Reader
		if gz, err = gzip.NewReader(reader); err != nil {
			return
		}
		defer gz.Close() // nolint: errcheck
		reader = gz
	}
	if bedUnion, err = NewBEDUnion(reader, opts); err != nil {
		err = errors.E(err, path)
	}
	return
}

// NewBEDUnionFromEntries initializes a BEDUnion from entries in any order.
// This ignores opts.OneBasedInput, since Start0 is defined to be zero-based.
func NewBEDUnionFromEntries(entries []Entry, opts NewBEDOpts) (BEDUnion, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ChrName != sorted[j].ChrName {
			return sorted[i].ChrName < sorted[j].ChrName
		}
		return sorted[i].Start0 < sorted[j].Start0
	})
	u := BEDUnion{nameMap: make(map[string][]PosType), invert: opts.Invert}
	for i := 0; i < len(sorted); {
		chrName := sorted[i].ChrName
		var intervals []PosType
		if opts.Invert {
			intervals = append(intervals, -1)
		}
		prevStart, prevEnd := PosType(-1), PosType(-1)
		for ; i < len(sorted) && sorted[i].ChrName == chrName; i++ {
			e := sorted[i]
			if e.Start0 < 0 || e.End < e.Start0 || e.End >= posTypeMax {
				return BEDUnion{}, errors.E(errors.Invalid,
					fmt.Sprintf("interval.NewBEDUnionFromEntries: invalid interval %s:[%d, %d)", e.ChrName, e.Start0, e.End))
			}
			if e.End == e.Start0 {
				continue
			}
			if prevEnd == -1 || e.Start0 > prevEnd {
				if prevEnd != -1 {
					intervals = append(intervals, prevStart, prevEnd)
					u.bases += int(prevEnd - prevStart)
				}
				prevStart, prevEnd = e.Start0, e.End
			} else if e.End > prevEnd {
				prevEnd = e.End
			}
		}
		if prevEnd != -1 {
			intervals = append(intervals, prevStart, prevEnd)
			u.bases += int(prevEnd - prevStart)
		}
		if opts.Invert {
			intervals = append(intervals, posTypeMax)
		}
		u.nameMap[chrName] = intervals
	}
	return u, nil
}

// String renders the union as a comma-separated list of chr:start-end
// (0-based, half-open) intervals, chromosomes in lexicographic order.
func (u *BEDUnion) String() string {
	names := make([]string, 0, len(u.nameMap))
	for name := range u.nameMap {
		names = append(names, name)
	}
	sort.Strings(names)
	var parts []string
	for _, name := range names {
		intervals := u.nameMap[name]
		for k := 0; k+1 < len(intervals); k += 2 {
			parts = append(parts, fmt.Sprintf("%s:%d-%d", name, intervals[k], intervals[k+1]))
		}
	}
	return strings.Join(parts, ",")
}
