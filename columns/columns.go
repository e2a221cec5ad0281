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

// Package columns selects tab-separated fields from text lines, in the
// manner of cut -f.
package columns

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/exascience/pargo/parallel"
	"github.com/pkg/errors"
	"github.com/willf/bitset"

	"github.com/exascience/bamdiff/internal"
	"github.com/exascience/bamdiff/internal/tool"
)

// Column specifications used by the alignment comparator.
const (
	// Invariant selects QNAME, FLAG, MAPQ, SEQ and QUAL.
	Invariant = "1,2,5,10,11"
	// Mandatory selects the eleven mandatory SAM columns.
	Mandatory = "1-11"
)

// A ConfigurationError reports a malformed column specification.
type ConfigurationError struct {
	Spec   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid column specification %q: %v", e.Spec, e.Reason)
}

// A Spec is a parsed column specification. Columns are numbered from 1.
type Spec struct {
	text     string
	selected *bitset.BitSet
	openFrom uint // all columns from here on are selected, 0 if none
}

// String returns the specification Spec was parsed from.
func (s Spec) String() string {
	return s.text
}

// Selects reports whether the given 1-based column is selected.
func (s Spec) Selects(column int) bool {
	if column < 1 {
		return false
	}
	c := uint(column)
	return (s.openFrom > 0 && c >= s.openFrom) || (s.selected != nil && s.selected.Test(c))
}

func parseIndex(spec, s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 31)
	if err != nil {
		return 0, &ConfigurationError{Spec: spec, Reason: fmt.Sprintf("%q is not a column number", s)}
	}
	if n == 0 {
		return 0, &ConfigurationError{Spec: spec, Reason: "columns are numbered from 1"}
	}
	return uint(n), nil
}

// Parse parses a comma-separated list of column numbers and ranges.
// Accepted items are N, N-M, N- (N and all later columns) and -M
// (columns 1 to M).
func Parse(spec string) (Spec, error) {
	result := Spec{text: spec, selected: bitset.New(16)}
	if spec == "" {
		return Spec{}, &ConfigurationError{Spec: spec, Reason: "no columns"}
	}
	for _, item := range strings.Split(spec, ",") {
		if item == "" {
			return Spec{}, &ConfigurationError{Spec: spec, Reason: "empty item"}
		}
		dash := strings.IndexByte(item, '-')
		if dash < 0 {
			n, err := parseIndex(spec, item)
			if err != nil {
				return Spec{}, err
			}
			result.selected.Set(n)
			continue
		}
		from, to := item[:dash], item[dash+1:]
		switch {
		case from == "" && to == "":
			return Spec{}, &ConfigurationError{Spec: spec, Reason: "range without bounds"}
		case to == "":
			low, err := parseIndex(spec, from)
			if err != nil {
				return Spec{}, err
			}
			if result.openFrom == 0 || low < result.openFrom {
				result.openFrom = low
			}
		default:
			low := uint(1)
			if from != "" {
				var err error
				if low, err = parseIndex(spec, from); err != nil {
					return Spec{}, err
				}
			}
			high, err := parseIndex(spec, to)
			if err != nil {
				return Spec{}, err
			}
			if high < low {
				return Spec{}, &ConfigurationError{Spec: spec, Reason: fmt.Sprintf("decreasing range %v", item)}
			}
			for i := low; i <= high; i++ {
				result.selected.Set(i)
			}
		}
	}
	return result, nil
}

// Project returns the selected tab-separated fields of line, in input
// order, joined by tabs. A line without tabs is returned unchanged.
func (s Spec) Project(line string) string {
	if strings.IndexByte(line, '\t') < 0 {
		return line
	}
	var b strings.Builder
	b.Grow(len(line))
	first := true
	for column := 1; ; column++ {
		end := strings.IndexByte(line, '\t')
		field := line
		if end >= 0 {
			field = line[:end]
		}
		if s.Selects(column) {
			if !first {
				b.WriteByte('\t')
			}
			b.WriteString(field)
			first = false
		}
		if end < 0 {
			return b.String()
		}
		line = line[end+1:]
	}
}

// A ProjectFunc writes the projection of input to output.
type ProjectFunc func(ctx context.Context, input, output string, spec Spec) error

// ProjectFile writes the projection of every line of input to output.
// Line order is preserved and every output line ends in a newline.
func ProjectFile(ctx context.Context, input, output string, spec Spec) error {
	lines, err := internal.ReadLines(input)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	parallel.Range(0, len(lines), 0, func(low, high int) {
		for i := low; i < high; i++ {
			lines[i] = spec.Project(lines[i])
		}
	})
	return internal.WriteLines(output, lines)
}

// CutFile is like ProjectFile, but runs the cut tool.
func CutFile(ctx context.Context, input, output string, spec Spec) (err error) {
	f, err := os.Create(output)
	if err != nil {
		return errors.Wrapf(err, "creating %v", output)
	}
	defer internal.Close(f, &err)
	out := bufio.NewWriter(f)
	if err = tool.Run(ctx, out, "cut", "-f", spec.String(), input); err != nil {
		return err
	}
	return out.Flush()
}
