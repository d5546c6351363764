// Package interval implements interval-union operations over genomic
// coordinates loaded from BED files.  Overlapping and touching intervals are
// merged, not tracked separately.  Positions must fit in a PosType.
package interval
