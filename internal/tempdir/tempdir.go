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

// Package tempdir provides per-invocation scratch directories whose
// removal depends on how the work inside them turned out.
package tempdir

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Policy determines what happens to a Scope's directory when the scope
// ends.
type Policy int

const (
	// CleanupOnSuccess removes the directory when the work succeeded
	// and keeps it for inspection when it failed.
	CleanupOnSuccess Policy = iota

	// Retain never removes the directory.
	Retain

	// CleanupAlways removes the directory unconditionally.
	CleanupAlways
)

func (p Policy) String() string {
	switch p {
	case CleanupOnSuccess:
		return "cleanup-on-success"
	case Retain:
		return "retain"
	case CleanupAlways:
		return "cleanup-always"
	default:
		return "unknown"
	}
}

// A Scope is a scratch directory that exists until Close is called.
type Scope struct {
	Dir    string
	policy Policy
	logger logrus.FieldLogger
}

// New creates a fresh directory below root, or below os.TempDir() if
// root is empty. The directory name is prefix followed by a random
// UUID.
func New(root, prefix string, policy Policy, logger logrus.FieldLogger) (*Scope, error) {
	if root == "" {
		root = os.TempDir()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, errors.Wrapf(err, "creating temporary root %v", root)
	}
	dir := filepath.Join(root, prefix+uuid.New().String())
	if err := os.Mkdir(dir, 0700); err != nil {
		return nil, errors.Wrapf(err, "creating temporary directory %v", dir)
	}
	return &Scope{Dir: dir, policy: policy, logger: logger}, nil
}

// Path returns the path of a file named name inside the scope.
func (s *Scope) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Sub creates a nested scratch directory that shares the lifetime of
// the scope.
func (s *Scope) Sub(name string) (string, error) {
	dir := s.Path(name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", errors.Wrapf(err, "creating temporary directory %v", dir)
	}
	return dir, nil
}

// Close ends the scope. failed tells whether the work done inside the
// scope failed, which matters for the CleanupOnSuccess policy.
func (s *Scope) Close(failed bool) error {
	remove := s.policy == CleanupAlways || (s.policy == CleanupOnSuccess && !failed)
	if !remove {
		s.logger.WithFields(logrus.Fields{
			"dir":    s.Dir,
			"policy": s.policy,
		}).Info("keeping temporary files")
		return nil
	}
	return errors.Wrapf(os.RemoveAll(s.Dir), "removing temporary directory %v", s.Dir)
}

// Do runs f inside a new scope and closes the scope according to the
// outcome of f. The error of f takes precedence over a close error.
func Do(root, prefix string, policy Policy, logger logrus.FieldLogger, f func(*Scope) error) (err error) {
	scope, err := New(root, prefix, policy, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := scope.Close(err != nil); err == nil {
			err = cerr
		}
	}()
	return f(scope)
}
