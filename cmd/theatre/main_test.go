package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"theatre"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunHelp(t *testing.T) {
	code, out, _ := runCmd("help")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "USAGE:")
	assert.Contains(t, out, "verify")
}

func TestRunNoArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"theatre"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stdout.String(), "USAGE:")
}

func TestRunUnknownCommand(t *testing.T) {
	code, _, errOut := runCmd("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Unknown command: frobnicate")
}

func TestHashCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"b": 2, "a": 1}`), 0o644))

	code, out, _ := runCmd("hash", "--file", path)
	assert.Equal(t, 0, code)
	assert.Regexp(t, `^[a-f0-9]{64}\n$`, out)

	// Key order does not change the canonical hash.
	path2 := filepath.Join(dir, "doc2.json")
	require.NoError(t, os.WriteFile(path2, []byte(`{"a": 1, "b": 2}`), 0o644))
	_, out2, _ := runCmd("hash", "--file", path2)
	assert.Equal(t, out, out2)
}

func TestHashCommandRequiresFile(t *testing.T) {
	code, _, errOut := runCmd("hash")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "--file is required")
}

func TestHashCommandInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))

	code, _, _ := runCmd("hash", "--file", path)
	assert.Equal(t, 1, code)
}

func TestVerifyCommandRequiresBundle(t *testing.T) {
	code, _, errOut := runCmd("verify")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "--bundle is required")
}

func TestVerifyCommandMissingBundle(t *testing.T) {
	code, out, _ := runCmd("verify", "--bundle", filepath.Join(t.TempDir(), "nope"))
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "FAIL")
}

func TestValidateTemplateCommandInvalidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "template.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"template_id": "x"}`), 0o644))

	code, out, _ := runCmd("validate-template", "--file", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Template invalid")
}

func TestInspectCertCommandInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cert.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"certificate_id": "x"}`), 0o644))

	code, _, errOut := runCmd("inspect-cert", "--file", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "Invalid certificate")
}

func TestDBInitCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "theatre.db")

	code, out, _ := runCmd("db-init", "--db", "file:"+dbPath)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Database initialized")
	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}
