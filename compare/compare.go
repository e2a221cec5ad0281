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

// Package compare decides whether two output files of a pipeline are
// equal up to the differences that are expected between runs.
package compare

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Options configures a comparison. The zero value requires the files
// to be equal in all compared lines.
type Options struct {
	// AllowedDiffLines is the number of lines each comparison pass
	// tolerates to differ.
	AllowedDiffLines int
	// MinMapQ leaves out alignments with a lower mapping quality from
	// the full-columns pass.
	MinMapQ int
	// CompareTagColumns includes the optional fields of alignments in
	// the full-columns pass.
	CompareTagColumns bool
}

// Validate checks that no option is negative.
func (o Options) Validate() error {
	if o.AllowedDiffLines < 0 {
		return errors.Errorf("allowed diff lines must not be negative, got %v", o.AllowedDiffLines)
	}
	if o.MinMapQ < 0 {
		return errors.Errorf("minimum mapping quality must not be negative, got %v", o.MinMapQ)
	}
	return nil
}

// Resolve combines the options requested by the two sides of a
// comparison. Numeric options take the maximum, and tag columns are
// compared if either side asks for it.
func Resolve(a, b Options) Options {
	return Options{
		AllowedDiffLines:  maxInt(a.AllowedDiffLines, b.AllowedDiffLines),
		MinMapQ:           maxInt(a.MinMapQ, b.MinMapQ),
		CompareTagColumns: a.CompareTagColumns || b.CompareTagColumns,
	}
}

func maxInt(x, y int) int {
	if x > y {
		return x
	}
	return y
}

// A Failure reports two files that are not equal. Cause tells why, and
// is usually a *textdiff.ExceedsError.
type Failure struct {
	File1 string
	File2 string
	Pass  string
	Cause error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("files are not equal: %v != %v (%v pass): %v", f.File1, f.File2, f.Pass, f.Cause)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

// A FileComparator compares two files of one type. It returns nil if
// the files are equal, a *Failure if they are not, and any other error
// if the comparison could not be carried out.
type FileComparator interface {
	AssertEqual(ctx context.Context, file1, file2 string, opts Options) error
}

var (
	registryMutex sync.RWMutex
	registry      = make(map[string]FileComparator)
)

// Register makes a comparator available under the given file type
// name, replacing any earlier comparator of that name.
func Register(name string, c FileComparator) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry[name] = c
}

// Lookup returns the comparator registered for the given file type.
func Lookup(name string) (FileComparator, error) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	if c, ok := registry[name]; ok {
		return c, nil
	}
	return nil, errors.Errorf("no comparator for file type %q", name)
}

// Names returns the registered file types, sorted.
func Names() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	Register("bam", BAM)
	Register("text", Text)
}
