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
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/exascience/bamdiff/utils"
)

// A Reference is an entry of the sequence dictionary.
type Reference struct {
	Name   string
	Length int32
}

// Header is the header section of a SAM or BAM file. Lines holds the
// raw header lines without line terminators, in file order.
type Header struct {
	Lines      []string
	References []Reference
}

// IsHeaderLine reports whether a line of SAM text belongs to the
// header section.
func IsHeaderLine(line string) bool {
	return len(line) > 0 && line[0] == '@'
}

// ParseReferences extracts the sequence dictionary from the @SQ lines
// of a header.
func ParseReferences(lines []string) ([]Reference, error) {
	var refs []Reference
	for _, line := range lines {
		if !strings.HasPrefix(line, "@SQ\t") {
			continue
		}
		var ref Reference
		var hasName, hasLength bool
		for _, field := range strings.Split(line[4:], "\t") {
			switch {
			case strings.HasPrefix(field, "SN:"):
				ref.Name, hasName = field[3:], true
			case strings.HasPrefix(field, "LN:"):
				ln, err := strconv.ParseInt(field[3:], 10, 32)
				if err != nil {
					return nil, fmt.Errorf("invalid LN entry in SAM header line %q: %v", line, err)
				}
				ref.Length, hasLength = int32(ln), true
			}
		}
		if !hasName || !hasLength {
			return nil, fmt.Errorf("SN or LN entry missing in SAM header line %q", line)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// ensureSQ appends @SQ lines for the references when the header text
// carries none, as is the case for BAM files whose text section was
// left empty.
func (hdr *Header) ensureSQ() {
	if len(hdr.References) == 0 {
		return
	}
	for _, line := range hdr.Lines {
		if strings.HasPrefix(line, "@SQ\t") {
			return
		}
	}
	for _, ref := range hdr.References {
		hdr.Lines = append(hdr.Lines, "@SQ\tSN:"+ref.Name+"\tLN:"+strconv.FormatInt(int64(ref.Length), 10))
	}
}

// Format appends the header lines to out, each terminated by a newline.
func (hdr *Header) Format(out []byte) []byte {
	for _, line := range hdr.Lines {
		out = append(append(out, line...), '\n')
	}
	return out
}

// An Alignment is one record of the alignment section. SEQ and QUAL
// are "*" when absent, and CIGAR is "*" for records without CIGAR
// operations.
type Alignment struct {
	QNAME string
	FLAG  uint16
	RNAME string
	POS   int32
	MAPQ  byte
	CIGAR string
	RNEXT string
	PNEXT int32
	TLEN  int32
	SEQ   string
	QUAL  string
	TAGS  utils.SmallMap
}

// NewAlignment allocates an empty alignment.
func NewAlignment() *Alignment {
	return &Alignment{TAGS: make(utils.SmallMap, 0, 8)}
}

// Flag bits of an alignment.
const (
	Multiple      = 0x1
	Proper        = 0x2
	Unmapped      = 0x4
	NextUnmapped  = 0x8
	Reversed      = 0x10
	NextReversed  = 0x20
	First         = 0x40
	Last          = 0x80
	Secondary     = 0x100
	QCFailed      = 0x200
	Duplicate     = 0x400
	Supplementary = 0x800
)

func (aln *Alignment) IsUnmapped() bool { return (aln.FLAG & Unmapped) != 0 }

// ByteArray is the value of a B:C optional field.
type ByteArray []byte

// Hex is the value of an H optional field, kept in its textual form.
type Hex string

// CigarOperations lists the accepted CIGAR operation characters.
const CigarOperations = "MmIiDdNnSsHhPpXx="

var cigarOperationsTable = make(map[byte]byte, len(CigarOperations))

func init() {
	for _, c := range CigarOperations {
		cigarOperationsTable[byte(c)] = byte(unicode.ToUpper(c))
	}
}

func isDigit(char byte) bool { return ('0' <= char) && (char <= '9') }

// A CigarOperation is one length/operation pair of a CIGAR string.
type CigarOperation struct {
	Length    int32
	Operation byte
}

func newCigarOperation(cigar string, i int) (op CigarOperation, j int, err error) {
	for j = i; j < len(cigar); j++ {
		if char := cigar[j]; !isDigit(char) {
			length, nerr := strconv.ParseInt(cigar[i:j], 10, 32)
			if nerr != nil {
				return op, j, nerr
			}
			operation := cigarOperationsTable[char]
			if operation == 0 {
				return op, j, fmt.Errorf("invalid CIGAR operation %q", char)
			}
			return CigarOperation{int32(length), operation}, j + 1, nil
		}
	}
	return op, j, fmt.Errorf("CIGAR operation missing after length %v", cigar[i:])
}

var (
	cigarSliceCache      = map[string][]CigarOperation{"*": {}}
	cigarSliceCacheMutex = sync.RWMutex{}
)

func slowScanCigarString(cigar string) ([]CigarOperation, error) {
	var slice []CigarOperation
	for i := 0; i < len(cigar); {
		op, j, err := newCigarOperation(cigar, i)
		if err != nil {
			return nil, fmt.Errorf("%v, while scanning CIGAR string %v", err, cigar)
		}
		slice = append(slice, op)
		i = j
	}
	cigarSliceCacheMutex.Lock()
	if value, found := cigarSliceCache[cigar]; found {
		slice = value
	} else {
		cigarSliceCache[cigar] = slice
	}
	cigarSliceCacheMutex.Unlock()
	return slice, nil
}

// ScanCigarString parses a CIGAR string. Results are cached, since
// alignment files tend to repeat a small number of CIGAR strings.
func ScanCigarString(cigar string) ([]CigarOperation, error) {
	cigarSliceCacheMutex.RLock()
	value, found := cigarSliceCache[cigar]
	cigarSliceCacheMutex.RUnlock()
	if found {
		return value, nil
	}
	return slowScanCigarString(cigar)
}

// FormatTag appends the SAM text form of an optional field, including
// the leading tab, to out.
func FormatTag(out []byte, tag utils.Symbol, value interface{}) ([]byte, error) {
	out = append(out, '\t')
	out = append(out, *tag...)

	switch val := value.(type) {
	case byte:
		out = append(append(out, ":A:"...), val)
	case int64:
		out = strconv.AppendInt(append(out, ":i:"...), val, 10)
	case int32:
		out = strconv.AppendInt(append(out, ":i:"...), int64(val), 10)
	case float32:
		out = strconv.AppendFloat(append(out, ":f:"...), float64(val), 'g', 6, 32)
	case string:
		out = append(append(out, ":Z:"...), val...)
	case Hex:
		out = append(append(out, ":H:"...), val...)
	case []int8:
		out = append(out, ":B:c"...)
		for _, v := range val {
			out = strconv.AppendInt(append(out, ','), int64(v), 10)
		}
	case ByteArray:
		out = append(out, ":B:C"...)
		for _, v := range val {
			out = strconv.AppendUint(append(out, ','), uint64(v), 10)
		}
	case []int16:
		out = append(out, ":B:s"...)
		for _, v := range val {
			out = strconv.AppendInt(append(out, ','), int64(v), 10)
		}
	case []uint16:
		out = append(out, ":B:S"...)
		for _, v := range val {
			out = strconv.AppendUint(append(out, ','), uint64(v), 10)
		}
	case []int32:
		out = append(out, ":B:i"...)
		for _, v := range val {
			out = strconv.AppendInt(append(out, ','), int64(v), 10)
		}
	case []uint32:
		out = append(out, ":B:I"...)
		for _, v := range val {
			out = strconv.AppendUint(append(out, ','), uint64(v), 10)
		}
	case []float32:
		out = append(out, ":B:f"...)
		for _, v := range val {
			out = strconv.AppendFloat(append(out, ','), float64(v), 'g', 6, 32)
		}
	default:
		return nil, fmt.Errorf("unknown SAM alignment TAG type %T for %v", value, *tag)
	}

	return out, nil
}

// Format appends the canonical SAM text line of the alignment,
// terminated by a newline, to out.
func (aln *Alignment) Format(out []byte) ([]byte, error) {
	out = append(append(out, aln.QNAME...), '\t')
	out = append(strconv.AppendUint(out, uint64(aln.FLAG), 10), '\t')
	out = append(append(out, aln.RNAME...), '\t')
	out = append(strconv.AppendInt(out, int64(aln.POS), 10), '\t')
	out = append(strconv.AppendUint(out, uint64(aln.MAPQ), 10), '\t')
	out = append(append(out, aln.CIGAR...), '\t')
	out = append(append(out, aln.RNEXT...), '\t')
	out = append(strconv.AppendInt(out, int64(aln.PNEXT), 10), '\t')
	out = append(strconv.AppendInt(out, int64(aln.TLEN), 10), '\t')
	out = append(append(out, aln.SEQ...), '\t')
	out = append(out, aln.QUAL...)

	var err error
	for _, entry := range aln.TAGS {
		if out, err = FormatTag(out, entry.Key, entry.Value); err != nil {
			return nil, err
		}
	}

	return append(out, '\n'), nil
}
