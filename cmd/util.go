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

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"github.com/exascience/bamdiff/compare"
	"github.com/exascience/bamdiff/utils"
)

// ProgramMessage is the first line written to a log file.
var ProgramMessage = fmt.Sprint(
	utils.ProgramName, " version ", utils.ProgramVersion,
	" compiled with ", runtime.Version(),
	" - see ", utils.ProgramURL, " for more information.",
)

// Exit codes of the bamdiff binary.
const (
	ExitEqual    = 0
	ExitNotEqual = 1
	ExitError    = 2
)

// ExitCode maps the error returned by a command to the exit code of the
// binary.
func ExitCode(err error) int {
	var failure *compare.Failure
	switch {
	case err == nil:
		return ExitEqual
	case errors.As(err, &failure):
		return ExitNotEqual
	default:
		return ExitError
	}
}

func envVars(name string) []string {
	return []string{"BAMDIFF_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))}
}

func createLogFilename() string {
	t := time.Now()
	zone, _ := t.Zone()
	return fmt.Sprintf("logs/bamdiff/bamdiff-%d-%02d-%02d-%02d-%02d-%02d-%09d-%v.log", t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
}

// setLogOutput sends log output and standard error to a new log file
// below path, while still showing log output on the original standard
// error.
func setLogOutput(path string) error {
	fullPath := filepath.Join(path, createLogFilename())
	if err := os.MkdirAll(filepath.Dir(fullPath), 0700); err != nil {
		return errors.Wrap(err, "creating log directory")
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return errors.Wrap(err, "creating log file")
	}
	fmt.Fprintln(f, ProgramMessage)

	orgStderr, err := unix.Dup(2)
	if err != nil {
		return errors.Wrap(err, "duplicating standard error")
	}
	ferr := os.NewFile(uintptr(orgStderr), "/dev/stderr")
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		return errors.Wrap(err, "redirecting standard error")
	}

	logrus.SetOutput(io.MultiWriter(f, ferr))
	logrus.WithFields(logrus.Fields{
		"path":    fullPath,
		"command": os.Args,
	}).Info("created log file")
	return nil
}

var loggingFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "log-path",
		Usage:   "also write log output to a timestamped file below `DIR`",
		EnvVars: envVars("log-path"),
	},
	&cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		Usage:   "one of panic, fatal, error, warn, info, debug, trace",
		EnvVars: envVars("log-level"),
	},
	&cli.StringFlag{
		Name:    "log-format",
		Value:   "text",
		Usage:   "text or json",
		EnvVars: envVars("log-format"),
	},
}

func configureLogging(c *cli.Context) error {
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return errors.Wrap(err, "invalid --log-level")
	}
	logrus.SetLevel(level)
	switch format := c.String("log-format"); format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return errors.Errorf("unknown log format %q", format)
	}
	if path := c.String("log-path"); path != "" {
		return setLogOutput(path)
	}
	return nil
}

// twoArgs returns the two positional arguments of a command.
func twoArgs(c *cli.Context, first, second string) (string, string, error) {
	if c.NArg() != 2 {
		return "", "", errors.Errorf("%v expects %v and %v, got %v arguments", c.Command.Name, first, second, c.NArg())
	}
	return c.Args().Get(0), c.Args().Get(1), nil
}

// checkExist reports a missing or unreadable input file.
func checkExist(filename string) error {
	if _, err := os.Stat(filename); err != nil {
		switch {
		case os.IsNotExist(err):
			return errors.Errorf("file %v does not exist", filename)
		case os.IsPermission(err):
			return errors.Errorf("no permission to read file %v", filename)
		default:
			return errors.Wrapf(err, "accessing file %v", filename)
		}
	}
	return nil
}

// App returns the bamdiff command line application.
func App() *cli.App {
	return &cli.App{
		Name:    utils.ProgramName,
		Usage:   "compare alignment files while tolerating run-to-run differences",
		Version: utils.ProgramVersion,
		Flags:   loggingFlags,
		Before:  configureLogging,
		Commands: []*cli.Command{
			compareCommand(),
			viewCommand(),
			cutCommand(),
		},
		HideHelpCommand: true,
	}
}
