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

package internal

import (
	"bufio"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Close closes c and records a close error in *err, keeping an
// earlier error if there is one. Intended for use with defer.
func Close(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil {
		*err = multierror.Append(*err, cerr).ErrorOrNil()
	}
}

// CloseAll closes all given closers, in order, and combines their
// errors.
func CloseAll(closers ...io.Closer) error {
	var result *multierror.Error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// WriteLines creates the named file and writes each line to it,
// followed by a newline.
func WriteLines(name string, lines []string) (err error) {
	f, err := os.Create(name)
	if err != nil {
		return errors.Wrapf(err, "creating %v", name)
	}
	defer Close(f, &err)
	out := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err = out.WriteString(line); err != nil {
			return errors.Wrapf(err, "writing %v", name)
		}
		if err = out.WriteByte('\n'); err != nil {
			return errors.Wrapf(err, "writing %v", name)
		}
	}
	return errors.Wrapf(out.Flush(), "writing %v", name)
}

// ReadLines reads the named file and returns its lines without line
// terminators. A missing final newline is tolerated.
func ReadLines(name string) (lines []string, err error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %v", name)
	}
	defer Close(f, &err)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<30)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %v", name)
	}
	return lines, nil
}
