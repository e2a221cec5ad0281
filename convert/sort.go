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

package convert

import (
	"bytes"
	"context"
	"os"
	"sort"
	"strconv"
	"strings"

	psort "github.com/exascience/pargo/sort"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/exascience/bamdiff/internal"
	"github.com/exascience/bamdiff/internal/tool"
)

// A LineSorter puts alignment lines into the given order. Lines that
// compare equal on all keys are ordered bytewise, so the result does
// not depend on the input order.
type LineSorter interface {
	Sort(ctx context.Context, lines []string, sorting Sorting) ([]string, error)
}

// sortKey holds the fields of an alignment line that take part in
// sorting.
type sortKey struct {
	line  string
	text  string  // QNAME or RNAME
	first float64 // POS for coordinate sorting, FLAG for name sorting
	flag  float64
}

// field returns the 1-based tab-separated field n of line, or the
// empty string if the line has fewer fields.
func field(line string, n int) string {
	for ; n > 1; n-- {
		i := strings.IndexByte(line, '\t')
		if i < 0 {
			return ""
		}
		line = line[i+1:]
	}
	if i := strings.IndexByte(line, '\t'); i >= 0 {
		return line[:i]
	}
	return line
}

// numericValue interprets the leading number of s the way sort -n
// does: leading blanks are skipped, and text without a leading number
// is zero.
func numericValue(s string) float64 {
	s = strings.TrimLeft(s, " \t")
	end := 0
	if end < len(s) && s[end] == '-' {
		end++
	}
	digits := 0
	for end < len(s) && isDigit(s[end]) {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		end++
		for end < len(s) && isDigit(s[end]) {
			end++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return 0
	}
	return v
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func newSortKey(line string, sorting Sorting) sortKey {
	key := sortKey{line: line, flag: numericValue(field(line, 2))}
	switch sorting {
	case Coordinate:
		key.text = field(line, 3)
		key.first = numericValue(field(line, 4))
	case Name:
		key.text = field(line, 1)
		key.first = key.flag
	}
	return key
}

func (k *sortKey) less(l *sortKey) bool {
	if k.text != l.text {
		return k.text < l.text
	}
	if k.first != l.first {
		return k.first < l.first
	}
	if k.flag != l.flag {
		return k.flag < l.flag
	}
	return k.line < l.line
}

type stableKeySorter []sortKey

func (s stableKeySorter) SequentialSort(i, j int) {
	keys := s[i:j]
	sort.SliceStable(keys, func(a, b int) bool {
		return keys[a].less(&keys[b])
	})
}

func (s stableKeySorter) NewTemp() psort.StableSorter {
	return stableKeySorter(make([]sortKey, len(s)))
}

func (s stableKeySorter) Len() int {
	return len(s)
}

func (s stableKeySorter) Less(i, j int) bool {
	return s[i].less(&s[j])
}

func (s stableKeySorter) Assign(source psort.StableSorter) func(i, j, len int) {
	dst, src := s, source.(stableKeySorter)
	return func(i, j, len int) {
		copy(dst[i:i+len], src[j:j+len])
	}
}

// NativeSorter sorts lines in memory with a parallel stable sort.
type NativeSorter struct{}

// Sort implements LineSorter. The input slice is left unchanged.
func (NativeSorter) Sort(ctx context.Context, lines []string, sorting Sorting) ([]string, error) {
	if sorting == None {
		return lines, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keys := make([]sortKey, len(lines))
	for i, line := range lines {
		keys[i] = newSortKey(line, sorting)
	}
	psort.StableSort(stableKeySorter(keys))
	result := make([]string, len(keys))
	for i := range keys {
		result[i] = keys[i].line
	}
	return result, nil
}

// ExternalSorter sorts lines with the sort tool in the C locale.
type ExternalSorter struct {
	Path   string // defaults to "sort"
	Dir    string // directory for the staging file, defaults to os.TempDir()
	Logger logrus.FieldLogger
}

// SortArgs returns the sort tool key arguments for the given order.
func SortArgs(sorting Sorting) []string {
	switch sorting {
	case Coordinate:
		return []string{"-t", "\t", "-k3,3", "-k4,4n", "-k2,2n"}
	case Name:
		return []string{"-t", "\t", "-k1,1", "-k2,2n"}
	default:
		return nil
	}
}

// Sort implements LineSorter.
func (s *ExternalSorter) Sort(ctx context.Context, lines []string, sorting Sorting) (result []string, err error) {
	if sorting == None || len(lines) == 0 {
		return lines, nil
	}
	staging, err := os.CreateTemp(s.Dir, "sort-input-")
	if err != nil {
		return nil, errors.Wrap(err, "creating sort staging file")
	}
	name := staging.Name()
	_ = staging.Close()
	defer func() { _ = os.Remove(name) }()
	if err = internal.WriteLines(name, lines); err != nil {
		return nil, err
	}

	path := s.Path
	if path == "" {
		path = "sort"
	}
	var out bytes.Buffer
	cmd := tool.Cmd{
		Name:   path,
		Args:   append(SortArgs(sorting), name),
		Env:    []string{"LC_ALL=C"},
		Stdout: &out,
		Logger: s.Logger,
	}
	if err = cmd.Run(ctx); err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(out.String(), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}
