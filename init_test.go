package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runInit(args []string, stdout, stderr io.Writer) error {
	return run(append([]string{"init"}, args...), stdout, stderr)
}

func TestApplySection(t *testing.T) {
	t.Parallel()

	section := sentinelStart + "\nnew content\n" + sentinelEnd

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "empty",
			content: "",
			want:    "\n" + section + "\n",
		},
		{
			name:    "append",
			content: "# My Project\n\nSome existing content.\n",
			want:    "# My Project\n\nSome existing content.\n\n" + section + "\n",
		},
		{
			name:    "append without trailing newline",
			content: "# My Project",
			want:    "# My Project\n\n" + section + "\n",
		},
		{
			name:    "replace",
			content: "# Project\n\n" + sentinelStart + "\nold content\n" + sentinelEnd + "\n\n## Other Section\n",
			want:    "# Project\n\n" + section + "\n\n## Other Section\n",
		},
		{
			name:    "end before start appends",
			content: sentinelEnd + "\n" + sentinelStart + "\n",
			want:    sentinelEnd + "\n" + sentinelStart + "\n\n" + section + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, applySection(tt.content, section))
		})
	}
}

func TestInitCreatesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "CLAUDE.md")

	var stdout, stderr bytes.Buffer
	require.NoError(t, runInit([]string{path}, &stdout, &stderr))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), generateSection())
	assert.Contains(t, stderr.String(), "wrote repoctx section to "+path)
	assert.Empty(t, stdout.String())
}

func TestInitDryRun(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "CLAUDE.md")

	var stdout, stderr bytes.Buffer
	require.NoError(t, runInit([]string{"--dry-run", path}, &stdout, &stderr))

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist, "--dry-run should not create the file")
	assert.Contains(t, stdout.String(), sentinelStart)
	assert.Contains(t, stdout.String(), sentinelEnd)
}

func TestInitDryRunNoPath(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	require.NoError(t, runInit([]string{"--dry-run"}, &stdout, &stderr))
	assert.Equal(t, generateSection()+"\n", stdout.String())
}

func TestInitDryRunShowsFullFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "CLAUDE.md")
	existing := "# My Project\n\nSome existing content.\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	var stdout, stderr bytes.Buffer
	require.NoError(t, runInit([]string{"--dry-run", path}, &stdout, &stderr))
	assert.True(t, strings.HasPrefix(stdout.String(), existing))
	assert.Contains(t, stdout.String(), sentinelStart)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, existing, string(data), "--dry-run must not modify the file")
}

func TestInitIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "CLAUDE.md")

	var buf bytes.Buffer
	require.NoError(t, runInit([]string{path}, &buf, &buf))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, runInit([]string{path}, &buf, &buf))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestInitTooManyArgs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.Error(t, runInit([]string{"a.md", "b.md"}, &buf, &buf))
}

func TestInitSectionContent(t *testing.T) {
	t.Parallel()
	section := generateSection()

	assert.True(t, strings.HasPrefix(section, sentinelStart+"\n"))
	assert.True(t, strings.HasSuffix(section, "\n"+sentinelEnd))
	for _, want := range []string{
		"repoctx --version",
		"--help",
		"-l go",
		"--format json",
		"--force",
		".context/",
		"`symbols`",
		"`calls`",
		"`dependencies`",
	} {
		assert.Contains(t, section, want)
	}
}
