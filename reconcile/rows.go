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
	"encoding/binary"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
	"github.com/grailbio/base/tsv"
)

// runIDHeader is the recordio header key holding the run id of a calls file.
const runIDHeader = "run_id"

func init() {
	recordiozstd.Init()
}

// Call record layout: five uvarint-length-prefixed strings (donor id, row
// key, locus, region, motif), then case and control as varints, then one
// has-diff byte.

func appendString(buf []byte, s string) []byte {
	buf = appendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func appendVarint(buf []byte, v int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func marshalCall(scratch []byte, p interface{}) ([]byte, error) {
	c := p.(*Call)
	buf := scratch[:0]
	for _, s := range []string{c.DonorID, c.Key, c.Locus, c.Region, c.Motif} {
		buf = appendString(buf, s)
	}
	buf = appendVarint(buf, int64(c.Case))
	buf = appendVarint(buf, int64(c.Control))
	if c.HasDiff {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf, nil
}

type callDecoder struct {
	in  []byte
	err error
}

func (d *callDecoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.in)
	if n <= 0 {
		d.err = fmt.Errorf("reconcile: corrupt call record")
		return 0
	}
	d.in = d.in[n:]
	return v
}

func (d *callDecoder) varint() int {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.in)
	if n <= 0 {
		d.err = fmt.Errorf("reconcile: corrupt call record")
		return 0
	}
	d.in = d.in[n:]
	return int(v)
}

func (d *callDecoder) string() string {
	n := d.uvarint()
	if d.err != nil {
		return ""
	}
	if uint64(len(d.in)) < n {
		d.err = fmt.Errorf("reconcile: truncated call record")
		return ""
	}
	s := string(d.in[:n])
	d.in = d.in[n:]
	return s
}

func unmarshalCall(in []byte) (interface{}, error) {
	d := callDecoder{in: in}
	c := &Call{
		DonorID: d.string(),
		Key:     d.string(),
		Locus:   d.string(),
		Region:  d.string(),
		Motif:   d.string(),
	}
	c.Case = d.varint()
	c.Control = d.varint()
	if d.err == nil && len(d.in) != 1 {
		d.err = fmt.Errorf("reconcile: call record has %d trailing bytes", len(d.in))
	}
	if d.err != nil {
		return nil, d.err
	}
	c.HasDiff = d.in[0] != 0
	return c, nil
}

// WriteCalls writes calls to out as zstd-compressed recordio, tagged with
// runID.
func WriteCalls(calls []Call, runID string, out io.Writer) error {
	w := recordio.NewWriter(out, recordio.WriterOpts{
		Marshal:      marshalCall,
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(runIDHeader, runID)
	for i := range calls {
		w.Append(&calls[i])
	}
	return w.Finish()
}

// ReadCalls reads a file written by WriteCalls.
func ReadCalls(rs io.ReadSeeker) (calls []Call, runID string, err error) {
	scanner := recordio.NewScanner(rs, recordio.ScannerOpts{
		Unmarshal: unmarshalCall,
	})
	for _, kv := range scanner.Header() {
		if kv.Key == runIDHeader {
			runID, _ = kv.Value.(string)
		}
	}
	for scanner.Scan() {
		calls = append(calls, *scanner.Get().(*Call))
	}
	err = scanner.Err()
	return
}

// WriteCallsFile writes calls to path.
func WriteCallsFile(ctx context.Context, path string, calls []Call, runID string) (err error) {
	var dst file.File
	if dst, err = file.Create(ctx, path); err != nil {
		return errors.E(err, "reconcile: create", path)
	}
	defer file.CloseAndReport(ctx, dst, &err)
	return WriteCalls(calls, runID, dst.Writer(ctx))
}

// ReadCallsFile reads calls from path.
func ReadCallsFile(ctx context.Context, path string) (calls []Call, runID string, err error) {
	var in file.File
	if in, err = file.Open(ctx, path); err != nil {
		return nil, "", errors.E(err, "reconcile: open", path)
	}
	defer file.CloseAndReport(ctx, in, &err)
	return ReadCalls(in.Reader(ctx))
}

// CallsHeader is the column list written by WriteCallsTSV.
var CallsHeader = []string{"donor_id", "row_key", "locus", "region", "motif", "case", "control", "diff"}

// WriteCallsTSV renders calls as TSV.  Monoallelic calls have "." in the diff
// column.
func WriteCallsTSV(calls []Call, w io.Writer) (err error) {
	out := tsv.NewWriter(w)
	for _, h := range CallsHeader {
		out.WriteString(h)
	}
	if err = out.EndLine(); err != nil {
		return
	}
	for _, c := range calls {
		out.WriteString(c.DonorID)
		out.WriteString(c.Key)
		out.WriteString(c.Locus)
		out.WriteString(c.Region)
		out.WriteString(c.Motif)
		out.WriteString(strconv.Itoa(c.Case))
		out.WriteString(strconv.Itoa(c.Control))
		if c.HasDiff {
			out.WriteString(strconv.Itoa(c.Diff()))
		} else {
			out.WriteString(".")
		}
		if err = out.EndLine(); err != nil {
			return
		}
	}
	return out.Flush()
}
