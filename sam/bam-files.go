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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/exascience/bamdiff/utils"
	"github.com/exascience/bamdiff/utils/bgzf"
)

// bamMagic is the magic string for the BAM format. See
// http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.2.
const bamMagic = "BAM\x01"

func readInt32(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

// parseBamHeader parses the header section of a BAM file: the header
// text followed by the binary sequence dictionary. See
// http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.2.
func parseBamHeader(r io.Reader) (*Header, error) {
	magic := make([]byte, 4)
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, errors.Wrap(err, "reading BAM magic")
	}
	if string(magic) != bamMagic {
		return nil, errors.New("invalid BAM file header")
	}
	lText, err := readInt32(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading BAM header length")
	}
	if lText < 0 {
		return nil, fmt.Errorf("invalid BAM header length %v", lText)
	}
	text := make([]byte, lText)
	if _, err := io.ReadFull(r, text); err != nil {
		return nil, errors.Wrap(err, "reading BAM header text")
	}
	if i := bytes.IndexByte(text, 0); i >= 0 {
		text = text[:i]
	}

	hdr := &Header{}
	for _, line := range strings.Split(string(text), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			hdr.Lines = append(hdr.Lines, line)
		}
	}

	nRef, err := readInt32(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading BAM reference count")
	}
	for i := int32(0); i < nRef; i++ {
		lName, err := readInt32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading BAM reference")
		}
		if lName < 1 {
			return nil, fmt.Errorf("invalid BAM reference name length %v", lName)
		}
		name := make([]byte, lName)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, errors.Wrap(err, "reading BAM reference")
		}
		lRef, err := readInt32(r)
		if err != nil {
			return nil, errors.Wrap(err, "reading BAM reference")
		}
		hdr.References = append(hdr.References, Reference{
			Name:   *utils.Intern(string(name[:lName-1])),
			Length: lRef,
		})
	}
	hdr.ensureSQ()
	return hdr, nil
}

// bamFieldParser is the signature for all parsers for optional fields in
// read alignment records in BAM files.
type bamFieldParser func(record []byte, index int) (value interface{}, newIndex int, err error)

var errShortRecord = errors.New("BAM alignment record too short")

func need(record []byte, index, n int) error {
	if n < 0 || index+n > len(record) {
		return errShortRecord
	}
	return nil
}

func parseBamChar(record []byte, index int) (interface{}, int, error) {
	if err := need(record, index, 1); err != nil {
		return nil, index, err
	}
	return record[index], index + 1, nil
}

func parseBamInt(size int, signed bool) bamFieldParser {
	return func(record []byte, index int) (interface{}, int, error) {
		if err := need(record, index, size); err != nil {
			return nil, index, err
		}
		b := record[index : index+size]
		var v int64
		switch {
		case size == 1 && signed:
			v = int64(int8(b[0]))
		case size == 1:
			v = int64(b[0])
		case size == 2 && signed:
			v = int64(int16(binary.LittleEndian.Uint16(b)))
		case size == 2:
			v = int64(binary.LittleEndian.Uint16(b))
		case signed:
			v = int64(int32(binary.LittleEndian.Uint32(b)))
		default:
			v = int64(binary.LittleEndian.Uint32(b))
		}
		return v, index + size, nil
	}
}

func parseBamFloat(record []byte, index int) (interface{}, int, error) {
	if err := need(record, index, 4); err != nil {
		return nil, index, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(record[index : index+4])), index + 4, nil
}

// zString returns the NUL-terminated string starting at index.
func zString(record []byte, index int) (string, int, error) {
	end := bytes.IndexByte(record[index:], 0)
	if end < 0 {
		return "", index, errors.New("missing NUL byte in an optional string field in a BAM alignment record")
	}
	return string(record[index : index+end]), index + end + 1, nil
}

func parseBamString(record []byte, index int) (interface{}, int, error) {
	s, next, err := zString(record, index)
	return s, next, err
}

func parseBamHex(record []byte, index int) (interface{}, int, error) {
	s, next, err := zString(record, index)
	return Hex(s), next, err
}

// parseBamNumericArray parses a B optional field in a BAM alignment
// record. See http://samtools.github.io/hts-specs/SAMv1.pdf - Section
// 4.2.4.
func parseBamNumericArray(record []byte, index int) (interface{}, int, error) {
	if err := need(record, index, 5); err != nil {
		return nil, index, err
	}
	ntype := record[index]
	count := int(int32(binary.LittleEndian.Uint32(record[index+1 : index+5])))
	index += 5
	width := map[byte]int{'c': 1, 'C': 1, 's': 2, 'S': 2, 'i': 4, 'I': 4, 'f': 4}[ntype]
	if count < 0 {
		return nil, index, errShortRecord
	}
	if width == 0 {
		return nil, index, fmt.Errorf("invalid subtype %q in a numeric array in a BAM alignment record", ntype)
	}
	if err := need(record, index, count*width); err != nil {
		return nil, index, err
	}
	data := record[index : index+count*width]
	switch ntype {
	case 'c':
		result := make([]int8, count)
		for i := range result {
			result[i] = int8(data[i])
		}
		return result, index + count, nil
	case 'C':
		return append(ByteArray(nil), data...), index + count, nil
	case 's':
		result := make([]int16, count)
		for i := range result {
			result[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
		}
		return result, index + 2*count, nil
	case 'S':
		result := make([]uint16, count)
		for i := range result {
			result[i] = binary.LittleEndian.Uint16(data[2*i:])
		}
		return result, index + 2*count, nil
	case 'i':
		result := make([]int32, count)
		for i := range result {
			result[i] = int32(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return result, index + 4*count, nil
	case 'I':
		result := make([]uint32, count)
		for i := range result {
			result[i] = binary.LittleEndian.Uint32(data[4*i:])
		}
		return result, index + 4*count, nil
	default:
		result := make([]float32, count)
		for i := range result {
			result[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
		return result, index + 4*count, nil
	}
}

var optionalBAMFieldParseTable = map[byte]bamFieldParser{
	'A': parseBamChar,
	'c': parseBamInt(1, true),
	'C': parseBamInt(1, false),
	's': parseBamInt(2, true),
	'S': parseBamInt(2, false),
	'i': parseBamInt(4, true),
	'I': parseBamInt(4, false),
	'f': parseBamFloat,
	'Z': parseBamString,
	'H': parseBamHex,
	'B': parseBamNumericArray,
}

const (
	cigarOps = "MIDNSHP=X"
	seqNt16  = "=ACMGRSVTWYHKDBN"
	star     = "*"
	eq       = "="
)

var (
	cigarMap  = make(map[byte]uint32)
	seqNt16Of = make(map[byte]byte)
)

func init() {
	for i := 0; i < len(cigarOps); i++ {
		cigarMap[cigarOps[i]] = uint32(i)
	}
	for i := 0; i < len(seqNt16); i++ {
		seqNt16Of[seqNt16[i]] = byte(i)
		seqNt16Of[seqNt16[i]|0x20] = byte(i)
	}
}

const (
	refIDIndex     = 0
	posIndex       = 4
	lReadNameIndex = posIndex + 4
	mapqIndex      = lReadNameIndex + 1
	binIndex       = mapqIndex + 1
	nCigarOpIndex  = binIndex + 2
	flagIndex      = nCigarOpIndex + 2
	lSeqIndex      = flagIndex + 2
	nextRefIDIndex = lSeqIndex + 4
	nextPosIndex   = nextRefIDIndex + 4
	tlenIndex      = nextPosIndex + 4
	readNameIndex  = tlenIndex + 4
)

func referenceName(references []Reference, refID int32) (string, error) {
	if refID < 0 {
		return star, nil
	}
	if int(refID) >= len(references) {
		return "", fmt.Errorf("reference id %v out of range in a BAM alignment record", refID)
	}
	return references[refID].Name, nil
}

// parseBamAlignment parses a read alignment record in a BAM file, without
// its leading block size, and returns a freshly allocated alignment.
// See http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.2.
func parseBamAlignment(record []byte, references []Reference) (*Alignment, error) {
	if len(record) < readNameIndex {
		return nil, errShortRecord
	}
	aln := NewAlignment()
	var err error

	refID := int32(binary.LittleEndian.Uint32(record[refIDIndex:]))
	if aln.RNAME, err = referenceName(references, refID); err != nil {
		return nil, err
	}
	aln.POS = int32(binary.LittleEndian.Uint32(record[posIndex:])) + 1
	lReadName := int(record[lReadNameIndex])
	aln.MAPQ = record[mapqIndex]
	nCigarOp := int(binary.LittleEndian.Uint16(record[nCigarOpIndex:]))
	aln.FLAG = binary.LittleEndian.Uint16(record[flagIndex:])
	lSeq := int(int32(binary.LittleEndian.Uint32(record[lSeqIndex:])))

	nextRefID := int32(binary.LittleEndian.Uint32(record[nextRefIDIndex:]))
	if nextRefID >= 0 && nextRefID == refID {
		aln.RNEXT = eq
	} else if aln.RNEXT, err = referenceName(references, nextRefID); err != nil {
		return nil, err
	}
	aln.PNEXT = int32(binary.LittleEndian.Uint32(record[nextPosIndex:])) + 1
	aln.TLEN = int32(binary.LittleEndian.Uint32(record[tlenIndex:]))

	if lReadName < 1 || lSeq < 0 {
		return nil, errShortRecord
	}
	if err := need(record, readNameIndex, lReadName+4*nCigarOp+(lSeq+1)/2+lSeq); err != nil {
		return nil, err
	}
	aln.QNAME = string(record[readNameIndex : readNameIndex+lReadName-1])
	index := readNameIndex + lReadName

	if nCigarOp == 0 {
		aln.CIGAR = star
	} else {
		cigar := make([]byte, 0, 4*nCigarOp)
		for i := 0; i < nCigarOp; i, index = i+1, index+4 {
			op := binary.LittleEndian.Uint32(record[index:])
			if int(op&0xF) >= len(cigarOps) {
				return nil, fmt.Errorf("invalid CIGAR operation %v in a BAM alignment record", op&0xF)
			}
			cigar = strconv.AppendUint(cigar, uint64(op>>4), 10)
			cigar = append(cigar, cigarOps[op&0xF])
		}
		aln.CIGAR = string(cigar)
	}

	if lSeq == 0 {
		aln.SEQ = star
	} else {
		seq := make([]byte, lSeq)
		for i := range seq {
			b := record[index+i/2]
			if i%2 == 0 {
				b >>= 4
			}
			seq[i] = seqNt16[b&0xF]
		}
		aln.SEQ = string(seq)
	}
	index += (lSeq + 1) / 2

	if lSeq == 0 || record[index] == 0xFF {
		aln.QUAL = star
	} else {
		qual := make([]byte, lSeq)
		for i := range qual {
			qual[i] = record[index+i] + 33
		}
		aln.QUAL = string(qual)
	}
	index += lSeq

	for index < len(record) {
		if err := need(record, index, 3); err != nil {
			return nil, err
		}
		tag := utils.Intern(string(record[index : index+2]))
		typebyte := record[index+2]
		index += 3
		parser, ok := optionalBAMFieldParseTable[typebyte]
		if !ok {
			return nil, fmt.Errorf("invalid optional field type %q in a BAM alignment record", typebyte)
		}
		var value interface{}
		if value, index, err = parser(record, index); err != nil {
			return nil, err
		}
		aln.TAGS = append(aln.TAGS, utils.SmallMapEntry{Key: tag, Value: value})
	}

	return aln, nil
}

// bamReader reads BAM files.
type bamReader struct {
	rc         io.Closer
	bgzf       *bgzf.Reader
	in         *bufio.Reader
	references []Reference
	buf        []byte
}

func newBamReader(rc io.Closer, r *bgzf.Reader, in *bufio.Reader) (*bamReader, *Header, error) {
	reader := &bamReader{rc: rc, bgzf: r, in: in}
	hdr, err := parseBamHeader(reader.in)
	if err != nil {
		_ = reader.Close()
		return nil, nil, err
	}
	reader.references = hdr.References
	return reader, hdr, nil
}

// Read returns the next alignment, or io.EOF.
func (reader *bamReader) Read() (*Alignment, error) {
	size, err := readInt32(reader.in)
	if err == io.EOF {
		return nil, io.EOF
	} else if err != nil {
		return nil, errors.Wrap(err, "reading BAM alignment record size")
	}
	if size < readNameIndex {
		return nil, fmt.Errorf("invalid BAM alignment record size %v", size)
	}
	if cap(reader.buf) < int(size) {
		reader.buf = make([]byte, size)
	}
	reader.buf = reader.buf[:size]
	if _, err := io.ReadFull(reader.in, reader.buf); err != nil {
		return nil, errors.Wrap(err, "reading BAM alignment record")
	}
	return parseBamAlignment(reader.buf, reader.references)
}

func (reader *bamReader) Close() error {
	err := reader.bgzf.Close()
	if reader.rc != nil {
		if cerr := reader.rc.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// formatBamHeader appends the header section of a BAM file to out.
func formatBamHeader(hdr *Header, out []byte) []byte {
	text := hdr.Format(nil)
	out = append(out, bamMagic...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(text)))
	out = append(out, text...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(hdr.References)))
	for _, ref := range hdr.References {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(ref.Name)+1))
		out = append(append(out, ref.Name...), 0)
		out = binary.LittleEndian.AppendUint32(out, uint32(ref.Length))
	}
	return out
}

var cigarConsumesReferenceBases = map[byte]int32{'M': 1, 'D': 1, 'N': 1, '=': 1, 'X': 1}

// reg2bin computes the BAI bin of a 0-based half-open interval.
func reg2bin(beg, end int32) uint16 {
	end--
	switch {
	case beg>>14 == end>>14:
		return uint16(((1<<15)-1)/7 + (beg >> 14))
	case beg>>17 == end>>17:
		return uint16(((1<<12)-1)/7 + (beg >> 17))
	case beg>>20 == end>>20:
		return uint16(((1<<9)-1)/7 + (beg >> 20))
	case beg>>23 == end>>23:
		return uint16(((1<<6)-1)/7 + (beg >> 23))
	case beg>>26 == end>>26:
		return uint16(((1<<3)-1)/7 + (beg >> 26))
	}
	return 0
}

// formatBamTag appends the binary representation of an optional field
// to out. Integers are stored in the smallest type that holds them.
func formatBamTag(out []byte, tag utils.Symbol, value interface{}) ([]byte, error) {
	out = append(out, *tag...)
	switch val := value.(type) {
	case byte:
		out = append(out, 'A', val)
	case int64:
		switch {
		case val >= 0 && val <= math.MaxUint8:
			out = append(out, 'C', byte(val))
		case val >= math.MinInt8 && val < 0:
			out = append(out, 'c', byte(int8(val)))
		case val >= 0 && val <= math.MaxUint16:
			out = binary.LittleEndian.AppendUint16(append(out, 'S'), uint16(val))
		case val >= math.MinInt16 && val < 0:
			out = binary.LittleEndian.AppendUint16(append(out, 's'), uint16(int16(val)))
		case val >= 0 && val <= math.MaxUint32:
			out = binary.LittleEndian.AppendUint32(append(out, 'I'), uint32(val))
		case val >= math.MinInt32 && val < 0:
			out = binary.LittleEndian.AppendUint32(append(out, 'i'), uint32(int32(val)))
		default:
			return nil, fmt.Errorf("integer value %v out of range in BAM alignment tag %v", val, *tag)
		}
	case float32:
		out = binary.LittleEndian.AppendUint32(append(out, 'f'), math.Float32bits(val))
	case string:
		out = append(append(append(out, 'Z'), val...), 0)
	case Hex:
		out = append(append(append(out, 'H'), val...), 0)
	case []int8:
		out = binary.LittleEndian.AppendUint32(append(out, 'B', 'c'), uint32(len(val)))
		for _, v := range val {
			out = append(out, byte(v))
		}
	case ByteArray:
		out = binary.LittleEndian.AppendUint32(append(out, 'B', 'C'), uint32(len(val)))
		out = append(out, val...)
	case []int16:
		out = binary.LittleEndian.AppendUint32(append(out, 'B', 's'), uint32(len(val)))
		for _, v := range val {
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}
	case []uint16:
		out = binary.LittleEndian.AppendUint32(append(out, 'B', 'S'), uint32(len(val)))
		for _, v := range val {
			out = binary.LittleEndian.AppendUint16(out, v)
		}
	case []int32:
		out = binary.LittleEndian.AppendUint32(append(out, 'B', 'i'), uint32(len(val)))
		for _, v := range val {
			out = binary.LittleEndian.AppendUint32(out, uint32(v))
		}
	case []uint32:
		out = binary.LittleEndian.AppendUint32(append(out, 'B', 'I'), uint32(len(val)))
		for _, v := range val {
			out = binary.LittleEndian.AppendUint32(out, v)
		}
	case []float32:
		out = binary.LittleEndian.AppendUint32(append(out, 'B', 'f'), uint32(len(val)))
		for _, v := range val {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	default:
		return nil, fmt.Errorf("unknown BAM alignment TAG type %T for %v", value, *tag)
	}
	return out, nil
}

// formatBamAlignment appends the binary representation of an alignment
// record, including its block size, to out. See
// http://samtools.github.io/hts-specs/SAMv1.pdf - Section 4.2.
func formatBamAlignment(aln *Alignment, out []byte, dictTable map[string]int32) ([]byte, error) {
	cigar, err := ScanCigarString(aln.CIGAR)
	if err != nil {
		return nil, err
	}
	seq := aln.SEQ
	if seq == star {
		seq = ""
	}
	if aln.QUAL != star && len(aln.QUAL) != len(seq) {
		return nil, fmt.Errorf("SEQ and QUAL lengths differ in alignment %v", aln.QNAME)
	}
	if len(aln.QNAME) > 254 {
		return nil, fmt.Errorf("read name too long in alignment %v", aln.QNAME)
	}

	refID, ok := dictTable[aln.RNAME]
	if !ok {
		refID = -1
	}
	nextRefID := refID
	if aln.RNEXT != eq {
		if nextRefID, ok = dictTable[aln.RNEXT]; !ok {
			nextRefID = -1
		}
	}

	beg := aln.POS - 1
	end := beg + 1
	if !aln.IsUnmapped() {
		var length int32
		for _, op := range cigar {
			length += cigarConsumesReferenceBases[op.Operation] * op.Length
		}
		if length > 0 {
			end = beg + length
		}
	}

	blockSizeIndex := len(out)
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = binary.LittleEndian.AppendUint32(out, uint32(refID))
	out = binary.LittleEndian.AppendUint32(out, uint32(beg))
	out = append(out, uint8(len(aln.QNAME)+1), aln.MAPQ)
	out = binary.LittleEndian.AppendUint16(out, reg2bin(beg, end))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(cigar)))
	out = binary.LittleEndian.AppendUint16(out, aln.FLAG)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(seq)))
	out = binary.LittleEndian.AppendUint32(out, uint32(nextRefID))
	out = binary.LittleEndian.AppendUint32(out, uint32(aln.PNEXT-1))
	out = binary.LittleEndian.AppendUint32(out, uint32(aln.TLEN))
	out = append(append(out, aln.QNAME...), 0)
	for _, op := range cigar {
		out = binary.LittleEndian.AppendUint32(out, uint32(op.Length)<<4|cigarMap[op.Operation])
	}
	for i := 0; i < len(seq); i += 2 {
		b := seqNt16Of[seq[i]] << 4
		if i+1 < len(seq) {
			b |= seqNt16Of[seq[i+1]]
		}
		out = append(out, b)
	}
	if aln.QUAL == star {
		for range seq {
			out = append(out, 0xFF)
		}
	} else {
		for i := 0; i < len(aln.QUAL); i++ {
			out = append(out, aln.QUAL[i]-33)
		}
	}
	for _, entry := range aln.TAGS {
		if out, err = formatBamTag(out, entry.Key, entry.Value); err != nil {
			return nil, err
		}
	}
	binary.LittleEndian.PutUint32(out[blockSizeIndex:], uint32(len(out)-blockSizeIndex-4))
	return out, nil
}

// bamWriter writes BAM files.
type bamWriter struct {
	wc        io.Closer
	bgzf      *bgzf.Writer
	dictTable map[string]int32
	buf       []byte
}

func (writer *bamWriter) writeHeader(hdr *Header) error {
	if hdr.References == nil {
		refs, err := ParseReferences(hdr.Lines)
		if err != nil {
			return err
		}
		hdr = &Header{Lines: hdr.Lines, References: refs}
	}
	writer.dictTable = make(map[string]int32, len(hdr.References))
	for index, ref := range hdr.References {
		writer.dictTable[ref.Name] = int32(index)
	}
	_, err := writer.bgzf.Write(formatBamHeader(hdr, nil))
	return err
}

func (writer *bamWriter) Write(aln *Alignment) (err error) {
	if writer.buf, err = formatBamAlignment(aln, writer.buf[:0], writer.dictTable); err != nil {
		return err
	}
	_, err = writer.bgzf.Write(writer.buf)
	return err
}

func (writer *bamWriter) Close() error {
	err := writer.bgzf.Close()
	if writer.wc != nil {
		if cerr := writer.wc.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
