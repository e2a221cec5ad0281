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

package compare

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/exascience/bamdiff/columns"
	"github.com/exascience/bamdiff/convert"
	"github.com/exascience/bamdiff/internal/tempdir"
	"github.com/exascience/bamdiff/textdiff"
)

// Names of the two passes of an alignment comparison.
const (
	InvariantPass = "all reads, invariant columns"
	FilteredPass  = "filtered reads, all columns"
)

// BamComparator compares alignment files in two passes. The first pass
// converts all reads, sorted by name, and compares only the columns
// that do not change between runs. The second pass converts the reads
// that pass the mapping quality filter, with headers and sorted by
// coordinate, and compares all mandatory columns, or whole lines if tag
// columns are requested. Each pass tolerates Options.AllowedDiffLines
// differing lines on its own.
type BamComparator struct {
	Viewer   convert.Viewer     // nil means convert.NativeViewer
	Sorter   convert.LineSorter // nil means convert.NativeSorter
	Project  columns.ProjectFunc
	TempRoot string // parent of the scratch directory, os.TempDir() if empty
	Cleanup  tempdir.Policy
	Logger   logrus.FieldLogger
}

// BAM is the comparator registered for the bam file type.
var BAM = &BamComparator{}

// AssertEqual compares two alignment files with the BAM comparator.
func AssertEqual(ctx context.Context, file1, file2 string, opts Options) error {
	return BAM.AssertEqual(ctx, file1, file2, opts)
}

func (c *BamComparator) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

// AssertEqual implements FileComparator.
func (c *BamComparator) AssertEqual(ctx context.Context, file1, file2 string, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	invariant, err := columns.Parse(columns.Invariant)
	if err != nil {
		return err
	}
	mandatory, err := columns.Parse(columns.Mandatory)
	if err != nil {
		return err
	}
	logger := c.logger().WithFields(logrus.Fields{
		"file1": file1,
		"file2": file2,
	})

	return tempdir.Do(c.TempRoot, "bamdiff-", c.Cleanup, logger, func(scope *tempdir.Scope) error {
		projections, err := scope.Sub("projections")
		if err != nil {
			return err
		}
		if err := c.pass(ctx, logger, scope, file1, file2, passConfig{
			name:     InvariantPass,
			artifact: "all_reads_subset_columns",
			convert:  convert.Options{Headers: false, Sorting: convert.Name},
			diff:     textdiff.Columns(invariant, projections, c.Project),
		}, opts.AllowedDiffLines); err != nil {
			return err
		}

		diff := textdiff.Default
		if !opts.CompareTagColumns {
			diff = textdiff.Columns(mandatory, projections, c.Project)
		}
		return c.pass(ctx, logger, scope, file1, file2, passConfig{
			name:     FilteredPass,
			artifact: "subset_reads_all_columns",
			convert:  convert.Options{Headers: true, MinMapQ: opts.MinMapQ, Sorting: convert.Coordinate},
			diff:     diff,
		}, opts.AllowedDiffLines)
	})
}

type passConfig struct {
	name     string
	artifact string
	convert  convert.Options
	diff     textdiff.DiffFunc
}

func (c *BamComparator) pass(ctx context.Context, logger logrus.FieldLogger, scope *tempdir.Scope, file1, file2 string, cfg passConfig, allowed int) error {
	logger = logger.WithField("pass", cfg.name)
	cmp1 := scope.Path(cfg.artifact + "_file1")
	cmp2 := scope.Path(cfg.artifact + "_file2")

	opts := cfg.convert
	opts.Viewer = c.Viewer
	opts.Sorter = c.Sorter
	opts.TempDir = scope.Dir
	opts.Logger = logger
	if err := convert.Convert(ctx, file1, cmp1, opts); err != nil {
		return errors.Wrapf(err, "%v pass: converting %v (comparing with %v)", cfg.name, file1, file2)
	}
	if err := convert.Convert(ctx, file2, cmp2, opts); err != nil {
		return errors.Wrapf(err, "%v pass: converting %v (comparing with %v)", cfg.name, file2, file1)
	}

	err := textdiff.AssertEqual(ctx, cmp1, cmp2, allowed, cfg.diff, scope.Dir)
	var exceeds *textdiff.ExceedsError
	switch {
	case err == nil:
		logger.Info("pass succeeded")
		return nil
	case errors.As(err, &exceeds):
		logger.WithFields(logrus.Fields{
			"differing": exceeds.Count,
			"allowed":   exceeds.Allowed,
		}).Info("pass failed")
		return &Failure{File1: file1, File2: file2, Pass: cfg.name, Cause: err}
	default:
		return errors.Wrapf(err, "%v pass: comparing %v and %v", cfg.name, file1, file2)
	}
}
