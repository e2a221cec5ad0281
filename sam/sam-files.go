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

package sam

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/exascience/bamdiff/internal"
	"github.com/exascience/bamdiff/utils"
)

// A FieldParser parses the value of an optional field of a given type.
type FieldParser func(*StringScanner) interface{}

func (sc *StringScanner) parseChar() interface{} {
	value, _ := sc.readByteUntil('\t')
	return value
}

func (sc *StringScanner) parseInteger() interface{} {
	value, _ := sc.readUntil('\t')
	val, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		sc.setErr("%v", err)
	}
	return val
}

func (sc *StringScanner) parseFloat() interface{} {
	value, _ := sc.readUntil('\t')
	val, err := strconv.ParseFloat(value, 32)
	if err != nil {
		sc.setErr("%v", err)
	}
	return float32(val)
}

func (sc *StringScanner) parseString() interface{} {
	value, _ := sc.readUntil('\t')
	return value
}

func (sc *StringScanner) parseHex() interface{} {
	value, _ := sc.readUntil('\t')
	if len(value)%2 != 0 {
		sc.setErr("odd length hex field %v", value)
	}
	return Hex(value)
}

func (sc *StringScanner) arrayEntries() (ntype byte, entries []string) {
	if sc.err != nil {
		return 0, nil
	}
	if sc.index >= len(sc.data) {
		sc.setErr("missing type in numeric array")
		return 0, nil
	}
	ntype = sc.data[sc.index]
	sc.index++
	if sc.index == len(sc.data) {
		return ntype, nil
	}
	switch sc.data[sc.index] {
	case '\t':
		sc.index++
		return ntype, nil
	case ',':
		sc.index++
	default:
		sc.setErr("unexpected character %q in numeric array", sc.data[sc.index])
		return 0, nil
	}
	for {
		entry, sep := sc.readUntil2(',', '\t')
		entries = append(entries, entry)
		if sep != ',' {
			return ntype, entries
		}
	}
}

func (sc *StringScanner) parseNumericArray() interface{} {
	ntype, entries := sc.arrayEntries()
	if sc.err != nil {
		return nil
	}
	ints := func(bitSize int) []int64 {
		result := make([]int64, len(entries))
		for i, entry := range entries {
			val, err := strconv.ParseInt(entry, 10, bitSize)
			if err != nil {
				sc.setErr("%v", err)
				return nil
			}
			result[i] = val
		}
		return result
	}
	uints := func(bitSize int) []uint64 {
		result := make([]uint64, len(entries))
		for i, entry := range entries {
			val, err := strconv.ParseUint(entry, 10, bitSize)
			if err != nil {
				sc.setErr("%v", err)
				return nil
			}
			result[i] = val
		}
		return result
	}
	switch ntype {
	case 'c':
		vals := ints(8)
		result := make([]int8, len(vals))
		for i, v := range vals {
			result[i] = int8(v)
		}
		return result
	case 'C':
		vals := uints(8)
		result := make(ByteArray, len(vals))
		for i, v := range vals {
			result[i] = uint8(v)
		}
		return result
	case 's':
		vals := ints(16)
		result := make([]int16, len(vals))
		for i, v := range vals {
			result[i] = int16(v)
		}
		return result
	case 'S':
		vals := uints(16)
		result := make([]uint16, len(vals))
		for i, v := range vals {
			result[i] = uint16(v)
		}
		return result
	case 'i':
		vals := ints(32)
		result := make([]int32, len(vals))
		for i, v := range vals {
			result[i] = int32(v)
		}
		return result
	case 'I':
		vals := uints(32)
		result := make([]uint32, len(vals))
		for i, v := range vals {
			result[i] = uint32(v)
		}
		return result
	case 'f':
		result := make([]float32, len(entries))
		for i, entry := range entries {
			val, err := strconv.ParseFloat(entry, 32)
			if err != nil {
				sc.setErr("%v", err)
				return nil
			}
			result[i] = float32(val)
		}
		return result
	default:
		sc.setErr("invalid numeric array type %q", ntype)
		return nil
	}
}

var optionalFieldParseTable = map[byte]FieldParser{
	'A': (*StringScanner).parseChar,
	'i': (*StringScanner).parseInteger,
	'f': (*StringScanner).parseFloat,
	'Z': (*StringScanner).parseString,
	'H': (*StringScanner).parseHex,
	'B': (*StringScanner).parseNumericArray,
}

// ParseOptionalField parses one TAG:TYPE:VALUE field.
func (sc *StringScanner) ParseOptionalField() (tag utils.Symbol, value interface{}) {
	if sc.err != nil {
		return nil, nil
	}
	tagname, ok := sc.readUntil(':')
	if !ok || (len(tagname) != 2) {
		sc.setErr("invalid field tag %q in SAM alignment line", tagname)
		return nil, nil
	}
	tag = utils.Intern(tagname)
	typebyte, ok := sc.readByteUntil(':')
	if !ok {
		sc.setErr("invalid field type %q in SAM alignment line", typebyte)
		return nil, nil
	}
	parser, ok := optionalFieldParseTable[typebyte]
	if !ok {
		sc.setErr("unknown field type %q in SAM alignment line", typebyte)
		return nil, nil
	}
	return tag, parser(sc)
}

func (sc *StringScanner) doString() string {
	if sc.err != nil {
		return ""
	}
	value, ok := sc.readUntil('\t')
	if !ok {
		sc.setErr("missing tabulator in SAM alignment line")
		return ""
	}
	return value
}

func (sc *StringScanner) doInt32() int32 {
	if sc.err != nil {
		return 0
	}
	value, err := strconv.ParseInt(sc.doString(), 10, 32)
	if err != nil {
		sc.setErr("%v", err)
	}
	return int32(value)
}

func (sc *StringScanner) doUint(bitSize int) uint64 {
	if sc.err != nil {
		return 0
	}
	value, err := strconv.ParseUint(sc.doString(), 10, bitSize)
	if err != nil {
		sc.setErr("%v", err)
	}
	return value
}

// ParseAlignment parses the line the scanner was reset to.
func (sc *StringScanner) ParseAlignment() *Alignment {
	aln := NewAlignment()

	aln.QNAME = sc.doString()
	aln.FLAG = uint16(sc.doUint(16))
	aln.RNAME = *utils.Intern(sc.doString())
	aln.POS = sc.doInt32()
	aln.MAPQ = byte(sc.doUint(8))
	aln.CIGAR = sc.doString()
	aln.RNEXT = *utils.Intern(sc.doString())
	aln.PNEXT = sc.doInt32()
	aln.TLEN = sc.doInt32()
	aln.SEQ = sc.doString()
	aln.QUAL, _ = sc.readUntil('\t')

	for sc.Len() > 0 {
		aln.TAGS.Set(sc.ParseOptionalField())
	}

	return aln
}

// ParseAlignmentLine parses one line of the alignment section of a SAM
// file.
func ParseAlignmentLine(line string) (*Alignment, error) {
	var sc StringScanner
	sc.Reset(strings.TrimRight(line, "\r\n"))
	aln := sc.ParseAlignment()
	if err := sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "parsing SAM line %q", line)
	}
	return aln, nil
}

// samReader reads SAM text.
type samReader struct {
	rc     io.Closer
	buf    *bufio.Reader
	sc     StringScanner
	lineNo int
}

func (reader *samReader) readLine() (string, error) {
	for {
		line, err := reader.buf.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		reader.lineNo++
		line = strings.TrimRight(line, "\r\n")
		if line != "" {
			return line, nil
		}
		if err == io.EOF {
			return "", io.EOF
		}
	}
}

// parseHeader consumes the header section.
func (reader *samReader) parseHeader() (*Header, error) {
	hdr := &Header{}
	for {
		data, err := reader.buf.Peek(1)
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}
		if data[0] != '@' {
			break
		}
		line, err := reader.readLine()
		if err != nil {
			return nil, err
		}
		hdr.Lines = append(hdr.Lines, line)
	}
	refs, err := ParseReferences(hdr.Lines)
	if err != nil {
		return nil, err
	}
	hdr.References = refs
	return hdr, nil
}

// Read returns the next alignment, or io.EOF.
func (reader *samReader) Read() (*Alignment, error) {
	line, err := reader.readLine()
	if err != nil {
		return nil, err
	}
	reader.sc.Reset(line)
	aln := reader.sc.ParseAlignment()
	if err := reader.sc.Err(); err != nil {
		return nil, errors.Wrapf(err, "parsing SAM line %v", reader.lineNo)
	}
	return aln, nil
}

func (reader *samReader) Close() error {
	if reader.rc == nil {
		return nil
	}
	return reader.rc.Close()
}

// samWriter writes SAM text.
type samWriter struct {
	wc  io.Closer
	out *bufio.Writer
	buf []byte
}

func (writer *samWriter) writeHeader(hdr *Header) error {
	_, err := writer.out.Write(hdr.Format(nil))
	return err
}

func (writer *samWriter) Write(aln *Alignment) (err error) {
	if writer.buf, err = aln.Format(writer.buf[:0]); err != nil {
		return err
	}
	_, err = writer.out.Write(writer.buf)
	return err
}

func (writer *samWriter) Close() error {
	err := writer.out.Flush()
	internal.ReleaseByteBuffer(writer.buf)
	if writer.wc != nil {
		if cerr := writer.wc.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
