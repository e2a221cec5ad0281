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

// Package textdiff counts differing lines between two text files and
// checks the count against a tolerance.
package textdiff

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/pmezard/go-difflib/difflib"
	"znkr.io/diff"

	"github.com/exascience/bamdiff/columns"
	"github.com/exascience/bamdiff/internal"
)

// A DiffFunc returns the number of lines that differ between two files.
type DiffFunc func(ctx context.Context, file1, file2 string) (int, error)

// maxDetailLines bounds the unified diff excerpt kept in an
// ExceedsError.
const maxDetailLines = 60

// An ExceedsError reports two files that differ in more lines than
// allowed.
type ExceedsError struct {
	Count   int
	Allowed int
	File1   string
	File2   string
	Detail  string // excerpt of a unified diff of the two files
}

func (e *ExceedsError) Error() string {
	return fmt.Sprintf("%v and %v differ in %v lines, %v allowed", e.File1, e.File2, e.Count, e.Allowed)
}

// Count returns the number of differing lines between two sequences of
// lines. Lines missing from one side are paired with lines missing from
// the other, so a substituted line counts once: the result is the length
// of the longer sequence minus the length of their longest common
// subsequence. Runs of identical lines cannot change the result, since
// it does not depend on which optimal alignment is found.
func Count(a, b []string) int {
	common := 0
	for _, edit := range diff.Edits(a, b, diff.Minimal()) {
		if edit.Op == diff.Match {
			common++
		}
	}
	return max(len(a), len(b)) - common
}

// Default compares whole lines.
func Default(ctx context.Context, file1, file2 string) (int, error) {
	a, err := internal.ReadLines(file1)
	if err != nil {
		return 0, err
	}
	b, err := internal.ReadLines(file2)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return Count(a, b), nil
}

// Columns returns a DiffFunc that only compares the selected columns.
// The projected files are written by project, or columns.ProjectFile if
// project is nil, to a new directory inside dir, or inside the default
// temporary directory if dir is empty, and left in place.
func Columns(spec columns.Spec, dir string, project columns.ProjectFunc) DiffFunc {
	if project == nil {
		project = columns.ProjectFile
	}
	return func(ctx context.Context, file1, file2 string) (int, error) {
		scratch, err := os.MkdirTemp(dir, "columns-")
		if err != nil {
			return 0, errors.Wrap(err, "creating projection directory")
		}
		cmp1 := filepath.Join(scratch, "cmp_file1")
		cmp2 := filepath.Join(scratch, "cmp_file2")
		if err := project(ctx, file1, cmp1, spec); err != nil {
			return 0, errors.Wrapf(err, "projecting %v to columns %v", file1, spec)
		}
		if err := project(ctx, file2, cmp2, spec); err != nil {
			return 0, errors.Wrapf(err, "projecting %v to columns %v", file2, spec)
		}
		return Default(ctx, cmp1, cmp2)
	}
}

// trimFile copies the lines of input to output without trailing
// whitespace, ending every line in a newline.
func trimFile(input, output string) error {
	lines, err := internal.ReadLines(input)
	if err != nil {
		return err
	}
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r\v\f")
	}
	return internal.WriteLines(output, lines)
}

// Detail returns an excerpt of the unified diff of two files.
func Detail(file1, file2 string) (string, error) {
	a, err := internal.ReadLines(file1)
	if err != nil {
		return "", err
	}
	b, err := internal.ReadLines(file2)
	if err != nil {
		return "", err
	}
	for i := range a {
		a[i] += "\n"
	}
	for i := range b {
		b[i] += "\n"
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: file1,
		ToFile:   file2,
		Context:  1,
		Eol:      "\n",
	})
	if err != nil {
		return "", err
	}
	lines := strings.SplitAfter(text, "\n")
	if len(lines) > maxDetailLines {
		lines = append(lines[:maxDetailLines], fmt.Sprintf("... %v more diff lines\n", len(lines)-maxDetailLines))
	}
	return strings.Join(lines, ""), nil
}

// AssertEqual fails with an *ExceedsError if diff reports more than
// allowed differing lines between file1 and file2. A nil diff means
// Default. When allowed is positive, both files are first copied into
// scratch with trailing whitespace removed from every line, so that
// whitespace differences do not use up the tolerance.
func AssertEqual(ctx context.Context, file1, file2 string, allowed int, diff DiffFunc, scratch string) error {
	if diff == nil {
		diff = Default
	}
	cmp1, cmp2 := file1, file2
	if allowed > 0 {
		dir, err := os.MkdirTemp(scratch, "trimmed-")
		if err != nil {
			return errors.Wrap(err, "creating comparison directory")
		}
		if scratch == "" {
			defer func() { _ = os.RemoveAll(dir) }()
		}
		cmp1, cmp2 = filepath.Join(dir, "file1"), filepath.Join(dir, "file2")
		if err := trimFile(file1, cmp1); err != nil {
			return err
		}
		if err := trimFile(file2, cmp2); err != nil {
			return err
		}
	}
	count, err := diff(ctx, cmp1, cmp2)
	if err != nil {
		return errors.Wrapf(err, "comparing %v and %v", file1, file2)
	}
	if count <= allowed {
		return nil
	}
	detail, err := Detail(cmp1, cmp2)
	if err != nil {
		detail = fmt.Sprintf("no diff available: %v", err)
	}
	return &ExceedsError{
		Count:   count,
		Allowed: allowed,
		File1:   file1,
		File2:   file2,
		Detail:  detail,
	}
}
