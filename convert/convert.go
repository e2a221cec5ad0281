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

// Package convert turns alignment files into canonical SAM text that can
// be compared line by line.
//
// Conversion has three steps: a Viewer produces SAM text, Normalize
// masks fields that differ between otherwise identical runs, and a
// LineSorter puts the alignment lines into a deterministic order. Header
// lines keep their original order and always come first.
package convert

import (
	"bytes"
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/exascience/bamdiff/internal"
)

// Sorting selects the order of alignment lines in converted text.
type Sorting int

const (
	// None keeps the order produced by the viewer.
	None Sorting = iota
	// Coordinate orders by reference name, then position, then flag.
	Coordinate
	// Name orders by read name, then flag.
	Name
)

func (s Sorting) String() string {
	switch s {
	case None:
		return "none"
	case Coordinate:
		return "coordinate"
	case Name:
		return "name"
	default:
		return "unknown"
	}
}

// ParseSorting returns the Sorting with the given name.
func ParseSorting(name string) (Sorting, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return None, nil
	case "coordinate":
		return Coordinate, nil
	case "name", "queryname":
		return Name, nil
	default:
		return None, errors.Errorf("unknown sorting %q", name)
	}
}

// Options configures a conversion. The zero value converts without
// header lines, without filtering and without sorting, using the
// native viewer.
type Options struct {
	Headers bool
	MinMapQ int
	Sorting Sorting
	Viewer  Viewer     // nil means NativeViewer
	Sorter  LineSorter // nil means NativeSorter
	TempDir string     // scratch space for external sorting
	Logger  logrus.FieldLogger
}

// Convert writes the canonical text form of the alignment file input to
// output.
func Convert(ctx context.Context, input, output string, opts Options) error {
	viewer := opts.Viewer
	if viewer == nil {
		viewer = NativeViewer{}
	}
	sorter := opts.Sorter
	if sorter == nil {
		sorter = NativeSorter{}
	} else if ext, ok := sorter.(*ExternalSorter); ok && ext.Dir == "" && opts.TempDir != "" {
		scoped := *ext
		scoped.Dir = opts.TempDir
		sorter = &scoped
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"input":   input,
		"output":  output,
		"headers": opts.Headers,
		"minMapQ": opts.MinMapQ,
		"sorting": opts.Sorting,
	}).Debug("converting alignment file")

	var text bytes.Buffer
	if err := viewer.View(ctx, input, opts.Headers, opts.MinMapQ, &text); err != nil {
		return errors.Wrapf(err, "viewing %v", input)
	}

	lines := Lines(text.String())
	for i, line := range lines {
		lines[i] = Normalize(line)
	}

	if opts.Sorting != None {
		start := headerEnd(lines)
		sorted, err := sorter.Sort(ctx, lines[start:], opts.Sorting)
		if err != nil {
			return errors.Wrapf(err, "sorting %v", input)
		}
		lines = append(lines[:start:start], sorted...)
	}

	return internal.WriteLines(output, lines)
}

// Lines splits text into lines after removing trailing whitespace from
// the whole text. Empty text has no lines.
func Lines(text string) []string {
	text = strings.TrimRight(text, " \t\r\n\v\f")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// headerEnd returns the index of the first line that is not a header
// line.
func headerEnd(lines []string) int {
	for i, line := range lines {
		if !strings.HasPrefix(line, "@") {
			return i
		}
	}
	return len(lines)
}
