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
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/exascience/bamdiff/internal"
	"github.com/exascience/bamdiff/utils/bgzf"
)

type (
	// alignmentReader is a common interface for reading both SAM and BAM files.
	alignmentReader interface {
		Read() (*Alignment, error)
		io.Closer
	}

	// InputFile represents a SAM or BAM file for input.
	InputFile struct {
		Header *Header
		reader alignmentReader
	}
)

// Read returns the next alignment of the file, or io.EOF after the
// last one.
func (f *InputFile) Read() (*Alignment, error) {
	return f.reader.Read()
}

// Close closes the SAM/BAM input file.
func (f *InputFile) Close() error {
	return f.reader.Close()
}

type (
	// alignmentWriter is a common interface for writing both SAM and BAM files.
	alignmentWriter interface {
		writeHeader(*Header) error
		Write(*Alignment) error
		io.Closer
	}

	// OutputFile represents a SAM or BAM file for output.
	OutputFile struct {
		writer alignmentWriter
	}
)

// Write appends an alignment to the file.
func (f *OutputFile) Write(aln *Alignment) error {
	return f.writer.Write(aln)
}

// Close flushes and closes the SAM/BAM output file.
func (f *OutputFile) Close() error {
	return f.writer.Close()
}

// SAM file extensions.
const (
	SamExt  = ".sam"
	BamExt  = ".bam"
	cramExt = ".cram"
)

// Open opens a SAM or BAM file for input and parses its header.
//
// The format is determined from the contents of the file rather than
// from its name: BGZF data starting with the BAM magic string is read
// as BAM, anything else as SAM text, optionally gzip-compressed.
//
// If the name is "/dev/stdin", then the input is read from os.Stdin.
func Open(name string) (*InputFile, error) {
	if filepath.Ext(name) == cramExt {
		return nil, errors.Errorf("CRAM format not supported when opening %v", name)
	}
	var file *os.File
	if name == "/dev/stdin" {
		file = os.Stdin
	} else {
		var err error
		if file, err = os.Open(name); err != nil {
			return nil, errors.Wrapf(err, "opening %v", name)
		}
	}
	input, err := open(file)
	if err != nil {
		if file != os.Stdin {
			_ = file.Close()
		}
		return nil, errors.Wrapf(err, "opening %v", name)
	}
	return input, nil
}

func open(file *os.File) (*InputFile, error) {
	var rc io.Closer = file
	if file == os.Stdin {
		rc = nil
	}
	buf := bufio.NewReaderSize(file, 1<<16)
	kind, err := bgzf.Detect(buf)
	if err != nil && err != io.EOF {
		return nil, err
	}
	switch kind {
	case bgzf.BGZF:
		r, err := bgzf.NewReader(buf)
		if err != nil {
			return nil, err
		}
		in := bufio.NewReaderSize(r, 1<<16)
		if head, _ := in.Peek(len(bamMagic)); string(head) != bamMagic {
			reader := &samReader{rc: closers{r, rc}, buf: in}
			hdr, err := reader.parseHeader()
			if err != nil {
				_ = reader.Close()
				return nil, err
			}
			return &InputFile{Header: hdr, reader: reader}, nil
		}
		reader, hdr, err := newBamReader(rc, r, in)
		if err != nil {
			return nil, err
		}
		return &InputFile{Header: hdr, reader: reader}, nil
	case bgzf.Gzip:
		gz, err := gzip.NewReader(buf)
		if err != nil {
			return nil, err
		}
		reader := &samReader{rc: closers{gz, rc}, buf: bufio.NewReader(gz)}
		hdr, err := reader.parseHeader()
		if err != nil {
			_ = reader.Close()
			return nil, err
		}
		return &InputFile{Header: hdr, reader: reader}, nil
	default:
		reader := &samReader{rc: rc, buf: buf}
		hdr, err := reader.parseHeader()
		if err != nil {
			_ = reader.Close()
			return nil, err
		}
		return &InputFile{Header: hdr, reader: reader}, nil
	}
}

type closers []io.Closer

func (cs closers) Close() error {
	return internal.CloseAll(cs...)
}

// Create creates a SAM or BAM file for output and writes the given
// header to it.
//
// If the filename extension is not .bam, then .sam is always
// assumed.
//
// If the name is "/dev/stdout", then the output is written to
// os.Stdout.
func Create(name string, hdr *Header) (*OutputFile, error) {
	var writer alignmentWriter
	switch filepath.Ext(name) {
	case BamExt:
		file, err := os.Create(name)
		if err != nil {
			return nil, errors.Wrapf(err, "creating %v", name)
		}
		writer = &bamWriter{wc: file, bgzf: bgzf.NewWriter(file, gzip.DefaultCompression), buf: internal.ReserveByteBuffer()}
	case cramExt:
		return nil, errors.Errorf("CRAM format not supported when creating %v", name)
	default:
		if name == "/dev/stdout" {
			writer = &samWriter{out: bufio.NewWriter(os.Stdout), buf: internal.ReserveByteBuffer()}
		} else {
			file, err := os.Create(name)
			if err != nil {
				return nil, errors.Wrapf(err, "creating %v", name)
			}
			writer = &samWriter{wc: file, out: bufio.NewWriter(file), buf: internal.ReserveByteBuffer()}
		}
	}
	if err := writer.writeHeader(hdr); err != nil {
		_ = writer.Close()
		return nil, errors.Wrapf(err, "writing header of %v", name)
	}
	return &OutputFile{writer: writer}, nil
}
