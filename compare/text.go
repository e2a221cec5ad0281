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
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/exascience/bamdiff/internal"
	"github.com/exascience/bamdiff/internal/tempdir"
	"github.com/exascience/bamdiff/textdiff"
	"github.com/exascience/bamdiff/utils"
)

// TextPass is the name of the single pass of a text comparison.
const TextPass = "whole lines"

// TextComparator compares text files line by line. Gzip and BGZF
// compressed files are decompressed first. MinMapQ and
// CompareTagColumns are ignored.
type TextComparator struct {
	TempRoot string
	Cleanup  tempdir.Policy
	Logger   logrus.FieldLogger
}

// Text is the comparator registered for the text file type.
var Text = &TextComparator{}

func decompress(input, output string) (err error) {
	in, err := utils.OpenText(input)
	if err != nil {
		return err
	}
	defer internal.Close(in, &err)
	out, err := os.Create(output)
	if err != nil {
		return errors.Wrapf(err, "creating %v", output)
	}
	defer internal.Close(out, &err)
	_, err = io.Copy(out, in)
	return errors.Wrapf(err, "decompressing %v", input)
}

// AssertEqual implements FileComparator.
func (c *TextComparator) AssertEqual(ctx context.Context, file1, file2 string, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithFields(logrus.Fields{
		"file1": file1,
		"file2": file2,
		"pass":  TextPass,
	})
	return tempdir.Do(c.TempRoot, "textdiff-", c.Cleanup, logger, func(scope *tempdir.Scope) error {
		cmp1, cmp2 := scope.Path("file1"), scope.Path("file2")
		if err := decompress(file1, cmp1); err != nil {
			return err
		}
		if err := decompress(file2, cmp2); err != nil {
			return err
		}
		err := textdiff.AssertEqual(ctx, cmp1, cmp2, opts.AllowedDiffLines, textdiff.Default, scope.Dir)
		var exceeds *textdiff.ExceedsError
		switch {
		case err == nil:
			logger.Info("pass succeeded")
			return nil
		case errors.As(err, &exceeds):
			return &Failure{File1: file1, File2: file2, Pass: TextPass, Cause: err}
		default:
			return errors.Wrapf(err, "comparing %v and %v", file1, file2)
		}
	})
}
