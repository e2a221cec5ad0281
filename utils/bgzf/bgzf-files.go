// bamdiff: approximate comparison of SAM/BAM files.
// Copyright (c) 2026 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/bamdiff/blob/master/LICENSE.txt>.

// Package bgzf reads and writes the blocked gzip format used by BAM
// files. Blocks are inflated and deflated in parallel on a pargo
// pipeline, while the Reader and Writer present a sequential stream.
package bgzf

import (
	"bufio"
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/exascience/pargo/pipeline"
)

// Kind classifies the compression of a byte stream.
type Kind int

const (
	// Plain is uncompressed data.
	Plain Kind = iota
	// Gzip is gzip data without BGZF block markers.
	Gzip
	// BGZF is blocked gzip data.
	BGZF
)

// Detect peeks at the start of the given reader without consuming
// anything and reports how its contents are compressed. It returns
// io.EOF for empty input.
func Detect(r *bufio.Reader) (Kind, error) {
	head, err := r.Peek(18)
	if len(head) == 0 {
		if err == nil {
			err = io.EOF
		}
		return Plain, err
	}
	if len(head) < 3 || head[0] != 0x1f || head[1] != 0x8b || head[2] != 8 {
		return Plain, nil
	}
	if len(head) == 18 && head[3]&4 != 0 && head[12] == 'B' && head[13] == 'C' {
		return BGZF, nil
	}
	return Gzip, nil
}

const (
	// maxBlockSize is the largest compressed block the format allows.
	maxBlockSize = 0x10000

	// maxPayload is the amount of uncompressed data the Writer puts in
	// one block, leaving room for incompressible input.
	maxPayload = 0xff00
)

// eofMarker is the empty block that terminates a BGZF file.
var eofMarker = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
	0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
	0x42, 0x43, 0x02, 0x00, 0x1b, 0x00,
	0x03, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// blockHeader is the fixed gzip member header of a block written by
// the Writer; bytes 16 and 17 receive the block size.
var blockHeader = []byte{
	0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00,
	0x00, 0x00, 0x00, 0xff, 0x06, 0x00,
	0x42, 0x43, 0x02, 0x00, 0x00, 0x00,
}

type (
	// block is one gzip member: compressed on the way in, inflated on
	// the way out.
	block struct {
		data  []byte
		crc32 uint32
		size  uint32
	}

	// Reader inflates a BGZF stream.
	Reader struct {
		err     error
		r       io.Reader
		gz      *gzip.Reader
		p       pipeline.Pipeline
		wg      sync.WaitGroup
		blocks  chan *block
		ctx     context.Context
		cancel  context.CancelFunc
		current *block
		index   int
		fetched interface{}
	}

	// blockSource is the pipeline.Source view of a Reader.
	blockSource Reader
)

var blockPool = sync.Pool{New: func() interface{} {
	return &block{data: make([]byte, 0, maxBlockSize)}
}}

// nextBlock reads one compressed member. The gzip.Reader has already
// consumed the member header, so only its extra field is inspected to
// learn the member size.
func (src *blockSource) nextBlock() (b *block, err error) {
	extra := src.gz.Extra
	var slen int
	for i := 0; i+4 <= len(extra); i += 4 + slen {
		slen = int(binary.LittleEndian.Uint16(extra[i+2 : i+4]))
		if extra[i] != 'B' || extra[i+1] != 'C' || slen != 2 || i+6 > len(extra) {
			continue
		}
		bsize := int(binary.LittleEndian.Uint16(extra[i+4 : i+6]))
		dataLen := bsize - len(extra) - 19
		if dataLen < 0 || dataLen > maxBlockSize {
			return nil, fmt.Errorf("invalid BGZF block size %v", bsize+1)
		}
		b = blockPool.Get().(*block)
		b.data = b.data[:dataLen]
		if _, err = io.ReadFull(src.r, b.data); err != nil {
			return nil, err
		}
		var tail [8]byte
		if _, err = io.ReadFull(src.r, tail[:]); err != nil {
			return nil, err
		}
		b.crc32 = binary.LittleEndian.Uint32(tail[0:4])
		b.size = binary.LittleEndian.Uint32(tail[4:8])
		switch err = src.gz.Reset(src.r); {
		case err == io.EOF:
			if len(b.data) != 2 || b.data[0] != 3 || b.data[1] != 0 || b.crc32 != 0 || b.size != 0 {
				err = errors.New("invalid BGZF file: does not end in proper EOF marker")
			}
		case err != nil:
			err = fmt.Errorf("%v while reading BGZF block header", err)
		}
		return b, err
	}
	return nil, errors.New("missing BC extra subfield in BGZF header")
}

// Err implements the corresponding method of pipeline.Source.
func (src *blockSource) Err() error {
	if src.err != io.EOF {
		return src.err
	}
	return nil
}

// Prepare implements the corresponding method of pipeline.Source.
func (src *blockSource) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the corresponding method of pipeline.Source.
func (src *blockSource) Fetch(_ int) int {
	if src.err != nil {
		return 0
	}
	b, err := src.nextBlock()
	if err != nil {
		src.err = err
		src.fetched = nil
		return 0
	}
	src.fetched = b
	return 1
}

// Data implements the corresponding method of pipeline.Source.
func (src *blockSource) Data() interface{} {
	return src.fetched
}

var flateReaderPool sync.Pool

func (bgzf *Reader) inflate(_ int, data interface{}) interface{} {
	compressed := data.(*block)
	in := bytes.NewReader(compressed.data)
	var fr io.ReadCloser
	if pooled := flateReaderPool.Get(); pooled == nil {
		fr = flate.NewReader(in)
	} else {
		fr = pooled.(io.ReadCloser)
		if err := fr.(flate.Resetter).Reset(in, nil); err != nil {
			fr = flate.NewReader(in)
		}
	}
	inflated := blockPool.Get().(*block)
	inflated.data = inflated.data[:int(compressed.size)]
	if _, err := io.ReadFull(fr, inflated.data); err == io.EOF {
		bgzf.p.SetErr(io.ErrUnexpectedEOF)
	} else if err != nil {
		bgzf.p.SetErr(err)
	} else if crc32.ChecksumIEEE(inflated.data) != compressed.crc32 {
		bgzf.p.SetErr(errors.New("invalid CRC-32 value for a data block in a BGZF file"))
	}
	if err := fr.Close(); err != nil {
		bgzf.p.SetErr(err)
	}
	flateReaderPool.Put(fr)
	blockPool.Put(compressed)
	return inflated
}

// NewReader returns a Reader for the given flate.Reader, which must be
// positioned at the start of a BGZF file.
func NewReader(r flate.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%v in bgzf.NewReader", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	bgzf := &Reader{
		r:      r,
		gz:     gz,
		blocks: make(chan *block, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	bgzf.p.Source((*blockSource)(bgzf))
	bgzf.p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(bgzf.inflate)),
		pipeline.StrictOrd(pipeline.ReceiveAndFinalize(func(_ int, data interface{}) interface{} {
			select {
			case <-bgzf.ctx.Done():
			case bgzf.blocks <- data.(*block):
			}
			return nil
		}, func() {
			close(bgzf.blocks)
		})),
	)
	bgzf.wg.Add(1)
	go func() {
		defer bgzf.wg.Done()
		bgzf.p.Run()
	}()
	return bgzf, nil
}

// Close stops the decompression pipeline. It does not close the
// underlying reader.
func (bgzf *Reader) Close() error {
	bgzf.cancel()
	bgzf.wg.Wait()
	if err := bgzf.gz.Close(); err != nil {
		return err
	}
	return bgzf.p.Err()
}

func (bgzf *Reader) fetch() error {
	select {
	case <-bgzf.ctx.Done():
		return bgzf.ctx.Err()
	case b, ok := <-bgzf.blocks:
		if !ok {
			if err := bgzf.p.Err(); err != nil {
				return err
			}
			return bgzf.err
		}
		bgzf.current, bgzf.index = b, 0
		return nil
	}
}

// Read implements io.Reader.
func (bgzf *Reader) Read(p []byte) (n int, err error) {
	for bgzf.current == nil || bgzf.index == len(bgzf.current.data) {
		if bgzf.current != nil {
			blockPool.Put(bgzf.current)
			bgzf.current = nil
		}
		if err = bgzf.fetch(); err != nil {
			return 0, err
		}
	}
	n = copy(p, bgzf.current.data[bgzf.index:])
	bgzf.index += n
	return n, nil
}

type (
	// Writer deflates a stream into BGZF blocks.
	Writer struct {
		w       io.Writer
		level   int
		p       pipeline.Pipeline
		wg      sync.WaitGroup
		pending *block
		blocks  chan *block
		fetched interface{}
	}

	// blockSink is the pipeline.Source view of a Writer.
	blockSink Writer
)

func (*blockSink) Err() error {
	return nil
}

func (*blockSink) Prepare(_ context.Context) int {
	return -1
}

func (sink *blockSink) Fetch(_ int) int {
	if b, ok := <-sink.blocks; ok {
		sink.fetched = b
		return 1
	}
	sink.fetched = nil
	return 0
}

func (sink *blockSink) Data() interface{} {
	return sink.fetched
}

var flateWriterPool sync.Pool

func (bgzf *Writer) deflate(_ int, data interface{}) interface{} {
	payload := data.(*block)
	out := blockPool.Get().(*block)
	buf := bytes.NewBuffer(out.data[:0])
	buf.Write(blockHeader)

	var fw *flate.Writer
	if pooled := flateWriterPool.Get(); pooled != nil {
		fw = pooled.(*flate.Writer)
		fw.Reset(buf)
	} else {
		var err error
		if fw, err = flate.NewWriter(buf, bgzf.level); err != nil {
			bgzf.p.SetErr(err)
			return out
		}
	}
	if _, err := fw.Write(payload.data); err != nil {
		bgzf.p.SetErr(err)
	} else if err := fw.Close(); err != nil {
		bgzf.p.SetErr(err)
	}
	flateWriterPool.Put(fw)

	var tail [8]byte
	binary.LittleEndian.PutUint32(tail[0:4], crc32.ChecksumIEEE(payload.data))
	binary.LittleEndian.PutUint32(tail[4:8], uint32(len(payload.data)))
	buf.Write(tail[:])
	out.data = buf.Bytes()
	binary.LittleEndian.PutUint16(out.data[16:18], uint16(len(out.data)-1))

	payload.data = payload.data[:0]
	blockPool.Put(payload)
	return out
}

// NewWriter returns a Writer that writes BGZF blocks to w, compressed
// with the given compress/flate level.
func NewWriter(w io.Writer, level int) *Writer {
	bgzf := &Writer{
		w:       w,
		level:   level,
		pending: blockPool.Get().(*block),
		blocks:  make(chan *block, 1),
	}
	bgzf.pending.data = bgzf.pending.data[:0]
	bgzf.p.Source((*blockSink)(bgzf))
	bgzf.p.Add(
		pipeline.LimitedPar(0, pipeline.Receive(bgzf.deflate)),
		pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
			out := data.(*block)
			if _, err := w.Write(out.data); err != nil {
				bgzf.p.SetErr(err)
			}
			out.data = out.data[:0]
			blockPool.Put(out)
			return nil
		})),
	)
	bgzf.wg.Add(1)
	go func() {
		defer bgzf.wg.Done()
		bgzf.p.Run()
	}()
	return bgzf
}

// Write implements io.Writer.
func (bgzf *Writer) Write(p []byte) (n int, err error) {
	n = len(p)
	for len(p) > 0 {
		k := maxPayload - len(bgzf.pending.data)
		if k > len(p) {
			k = len(p)
		}
		bgzf.pending.data = append(bgzf.pending.data, p[:k]...)
		p = p[k:]
		if len(bgzf.pending.data) == maxPayload {
			bgzf.blocks <- bgzf.pending
			bgzf.pending = blockPool.Get().(*block)
			bgzf.pending.data = bgzf.pending.data[:0]
		}
	}
	return n, nil
}

// Close flushes pending data, writes the EOF marker, and waits for the
// pipeline to finish. It does not close the underlying writer.
func (bgzf *Writer) Close() error {
	if len(bgzf.pending.data) > 0 {
		bgzf.blocks <- bgzf.pending
	}
	bgzf.pending = nil
	close(bgzf.blocks)
	bgzf.wg.Wait()
	if err := bgzf.p.Err(); err != nil {
		return err
	}
	_, err := bgzf.w.Write(eofMarker)
	return err
}
