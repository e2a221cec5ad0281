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

package utils

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"

	"github.com/exascience/bamdiff/utils/bgzf"
	"github.com/pkg/errors"
)

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var err error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if cerr := r.closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// OpenText opens the named file for reading and transparently
// decompresses it if it is a BGZF or plain gzip file. It looks at the
// initial bytes of the file to decide.
func OpenText(name string) (io.ReadCloser, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %v", name)
	}
	buf := bufio.NewReader(file)
	switch kind, err := bgzf.Detect(buf); {
	case err == io.EOF:
		return &readCloser{buf, []io.Closer{file}}, nil
	case err != nil:
		_ = file.Close()
		return nil, errors.Wrapf(err, "reading %v", name)
	case kind == bgzf.BGZF:
		r, err := bgzf.NewReader(buf)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrapf(err, "opening %v", name)
		}
		return &readCloser{r, []io.Closer{file, r}}, nil
	case kind == bgzf.Gzip:
		r, err := gzip.NewReader(buf)
		if err != nil {
			_ = file.Close()
			return nil, errors.Wrapf(err, "opening %v", name)
		}
		return &readCloser{r, []io.Closer{file, r}}, nil
	default:
		return &readCloser{buf, []io.Closer{file}}, nil
	}
}
