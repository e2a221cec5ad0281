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

// Package tool runs external command line tools synchronously, with
// explicit argument lists and no shell in between.
package tool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// maxStderr bounds how much of a tool's standard error is kept for
// error reports.
const maxStderr = 4096

// InvocationError reports an external tool that could not be started
// or that exited abnormally.
type InvocationError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *InvocationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v %v", e.Command, strings.Join(e.Args, " "))
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " exited with status %v", e.ExitCode)
	} else {
		fmt.Fprintf(&b, " failed: %v", e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		fmt.Fprintf(&b, ": %v", s)
	}
	return b.String()
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// A Cmd describes one tool invocation.
type Cmd struct {
	Name   string
	Args   []string
	Env    []string // added to the current environment
	Stdin  io.Reader
	Stdout io.Writer
	Logger logrus.FieldLogger
}

// tailBuffer keeps the last maxStderr bytes written to it.
type tailBuffer struct {
	bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n > maxStderr {
		p = p[n-maxStderr:]
	}
	if over := t.Len() + len(p) - maxStderr; over > 0 {
		t.Next(over)
	}
	t.Buffer.Write(p)
	return n, nil
}

// Run starts the command, waits for it to finish, and returns an
// *InvocationError if it could not be run or exited with a non-zero
// status.
func (c *Cmd) Run(ctx context.Context) error {
	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger.WithFields(logrus.Fields{
		"tool": c.Name,
		"args": c.Args,
	}).Debug("running external tool")

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	} else {
		cmd.Stdout = io.Discard
	}
	var stderr tailBuffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		ierr := &InvocationError{
			Command:  c.Name,
			Args:     append([]string(nil), c.Args...),
			ExitCode: -1,
			Stderr:   stderr.String(),
			Err:      err,
		}
		if exitErr, ok := err.(*exec.ExitError); ok && ctx.Err() == nil {
			ierr.ExitCode = exitErr.ExitCode()
		}
		return ierr
	}
	return nil
}

// Run is a shorthand for running a tool with its standard output
// sent to stdout.
func Run(ctx context.Context, stdout io.Writer, name string, args ...string) error {
	return (&Cmd{Name: name, Args: args, Stdout: stdout}).Run(ctx)
}

// Available reports whether the named tool can be found on PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
