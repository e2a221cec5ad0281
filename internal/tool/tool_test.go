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

package tool

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	if !Available("sh") {
		t.Skip("sh not available")
	}
}

func TestRunCapturesStdout(t *testing.T) {
	requireShell(t)
	var out bytes.Buffer
	err := Run(context.Background(), &out, "sh", "-c", "printf 'a\\tb\\n'")
	require.NoError(t, err)
	assert.Equal(t, "a\tb\n", out.String())
}

func TestRunExitStatus(t *testing.T) {
	requireShell(t)
	err := Run(context.Background(), nil, "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	var ierr *InvocationError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, 3, ierr.ExitCode)
	assert.Equal(t, "sh", ierr.Command)
	assert.Contains(t, ierr.Stderr, "broken")
	assert.Contains(t, ierr.Error(), "exited with status 3")
}

func TestRunMissingTool(t *testing.T) {
	err := Run(context.Background(), nil, "bamdiff-no-such-tool-xyz")
	var ierr *InvocationError
	require.True(t, errors.As(err, &ierr))
	assert.Equal(t, -1, ierr.ExitCode)
	assert.NotNil(t, ierr.Unwrap())
}

func TestRunArgumentsAreNotInterpolated(t *testing.T) {
	requireShell(t)
	var out bytes.Buffer
	err := Run(context.Background(), &out, "sh", "-c", `printf '%s' "$1"`, "sh", "$(echo no) ; `id`")
	require.NoError(t, err)
	assert.Equal(t, "$(echo no) ; `id`", out.String())
}

func TestTailBufferKeepsEnd(t *testing.T) {
	var buf tailBuffer
	buf.Write([]byte(strings.Repeat("x", maxStderr)))
	buf.Write([]byte("end"))
	assert.Equal(t, maxStderr, buf.Len())
	assert.True(t, strings.HasSuffix(buf.String(), "end"))
}
