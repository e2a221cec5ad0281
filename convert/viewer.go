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
	"bufio"
	"context"
	"io"
	"os"
	"sort"
	"strconv"
	"sync"

	biogobam "github.com/biogo/hts/bam"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/exascience/bamdiff/internal"
	"github.com/exascience/bamdiff/internal/tool"
	"github.com/exascience/bamdiff/sam"
)

// A Viewer writes the SAM text form of an alignment file to w. Header
// lines are only written when headers is true, and alignments with a
// mapping quality below minMapQ are left out.
type Viewer interface {
	View(ctx context.Context, input string, headers bool, minMapQ int, w io.Writer) error
}

// NativeViewer decodes BAM and SAM files with the sam package of this
// module.
type NativeViewer struct{}

// View implements Viewer.
func (NativeViewer) View(ctx context.Context, input string, headers bool, minMapQ int, w io.Writer) (err error) {
	in, err := sam.Open(input)
	if err != nil {
		return err
	}
	defer internal.Close(in, &err)

	out := bufio.NewWriter(w)
	buf := internal.ReserveByteBuffer()
	defer func() { internal.ReleaseByteBuffer(buf) }()

	if headers {
		buf = in.Header.Format(buf[:0])
		if _, err = out.Write(buf); err != nil {
			return err
		}
	}
	for count := 0; ; count++ {
		if count&0xFFF == 0 {
			if err = ctx.Err(); err != nil {
				return err
			}
		}
		aln, rerr := in.Read()
		if rerr == io.EOF {
			break
		} else if rerr != nil {
			return errors.Wrapf(rerr, "reading %v", input)
		}
		if int(aln.MAPQ) < minMapQ {
			continue
		}
		if buf, err = aln.Format(buf[:0]); err != nil {
			return err
		}
		if _, err = out.Write(buf); err != nil {
			return err
		}
	}
	return out.Flush()
}

// SamtoolsViewer runs samtools view as an external tool.
type SamtoolsViewer struct {
	Path   string   // defaults to "samtools"
	Args   []string // extra arguments for samtools view, such as --no-PG
	Logger logrus.FieldLogger
}

// View implements Viewer.
func (v SamtoolsViewer) View(ctx context.Context, input string, headers bool, minMapQ int, w io.Writer) error {
	name := v.Path
	if name == "" {
		name = "samtools"
	}
	args := []string{"view"}
	if headers {
		args = append(args, "-h")
	}
	if minMapQ > 0 {
		args = append(args, "-q", strconv.Itoa(minMapQ))
	}
	args = append(args, v.Args...)
	args = append(args, input)
	return (&tool.Cmd{Name: name, Args: args, Stdout: w, Logger: v.Logger}).Run(ctx)
}

// BiogoViewer decodes BAM files with github.com/biogo/hts.
type BiogoViewer struct {
	// Concurrency is the number of decompression goroutines, 0 means
	// GOMAXPROCS.
	Concurrency int
}

// View implements Viewer.
func (v BiogoViewer) View(ctx context.Context, input string, headers bool, minMapQ int, w io.Writer) (err error) {
	file, err := os.Open(input)
	if err != nil {
		return errors.Wrapf(err, "opening %v", input)
	}
	defer internal.Close(file, &err)
	reader, err := biogobam.NewReader(bufio.NewReader(file), v.Concurrency)
	if err != nil {
		return errors.Wrapf(err, "opening %v", input)
	}
	defer internal.Close(reader, &err)

	out := bufio.NewWriter(w)
	if headers {
		text, err := reader.Header().MarshalText()
		if err != nil {
			return errors.Wrapf(err, "formatting header of %v", input)
		}
		if _, err := out.Write(text); err != nil {
			return err
		}
	}
	for count := 0; ; count++ {
		if count&0xFFF == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		rec, rerr := reader.Read()
		if rerr == io.EOF {
			break
		} else if rerr != nil {
			return errors.Wrapf(rerr, "reading %v", input)
		}
		if int(rec.MapQ) < minMapQ {
			continue
		}
		text, merr := rec.MarshalText()
		if merr != nil {
			return errors.Wrapf(merr, "formatting record %v of %v", rec.Name, input)
		}
		if _, err := out.Write(text); err != nil {
			return err
		}
		if err := out.WriteByte('\n'); err != nil {
			return err
		}
	}
	return out.Flush()
}

var (
	viewersMutex sync.RWMutex
	viewers      = map[string]Viewer{
		"native":   NativeViewer{},
		"samtools": SamtoolsViewer{},
		"biogo":    BiogoViewer{},
	}
)

// RegisterViewer makes a viewer available under the given name,
// replacing any earlier viewer of that name.
func RegisterViewer(name string, v Viewer) {
	viewersMutex.Lock()
	defer viewersMutex.Unlock()
	viewers[name] = v
}

// LookupViewer returns the viewer registered under the given name.
func LookupViewer(name string) (Viewer, error) {
	viewersMutex.RLock()
	defer viewersMutex.RUnlock()
	if v, ok := viewers[name]; ok {
		return v, nil
	}
	return nil, errors.Errorf("unknown viewer %q", name)
}

// ViewerNames returns the names of all registered viewers, sorted.
func ViewerNames() []string {
	viewersMutex.RLock()
	defer viewersMutex.RUnlock()
	names := make([]string, 0, len(viewers))
	for name := range viewers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
