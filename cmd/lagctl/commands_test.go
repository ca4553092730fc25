package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"verbose", "type", "number", "title"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	chunk, _, err := cmd.Find([]string{"chunk"})
	require.NoError(t, err)
	assert.Equal(t, "512", chunk.Flags().Lookup("max-tokens").DefValue)
}

func TestClassifyCommand(t *testing.T) {
	out, err := run(t, "classify", "Lag (2025:1581) om ändring i arbetsmiljölagen (1977:1160)")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "AMENDMENT", got["type"])
	assert.Equal(t, "1977:1160", got["base_law_sfs"])
	assert.Equal(t, false, got["needs_review"])
}

func TestMarkdownCommandRoundTrip(t *testing.T) {
	p := writeFile(t, "prov.md", "- **1 §** Lagen gäller prov.\n- **2 §** Prov görs årligen.\n")
	out, err := run(t, "markdown", p, "--number", "SFS 2020:2", "--title", "Lag (2020:2) om prov")
	require.NoError(t, err)
	assert.Contains(t, out, "# Lag (2020:2) om prov")
	assert.Contains(t, out, "- **1 §** Lagen gäller prov.")
	assert.Contains(t, out, "- **2 §** Prov görs årligen.")
}

func TestMarkdownCommandRejectsInvalidDocument(t *testing.T) {
	p := writeFile(t, "leer.md", "- **1 §** Text.\n- **2 §**\n")
	_, err := run(t, "markdown", p, "--number", "SFS 2020:3")
	assert.Error(t, err)
}

func TestUnknownContentType(t *testing.T) {
	p := writeFile(t, "x.md", "- **1 §** Text.\n")
	_, err := run(t, "normalize", p, "--type", "ROMAN_LAW")
	assert.ErrorContains(t, err, "ROMAN_LAW")
}

func TestSectionsCommand(t *testing.T) {
	p := writeFile(t, "andring.txt", "Härigenom föreskrivs att 3 § arbetsmiljölagen (1977:1160) ska ha följande lydelse.\n\n"+
		"3 § Arbetsgivaren ska se till att arbetet planeras.\n\n"+
		"Denna lag träder i kraft den 1 juli 2025.")
	out, err := run(t, "sections", p, "--clean=false")
	require.NoError(t, err)

	var got struct {
		Changes []struct {
			Section    string `json:"section"`
			ChangeType string `json:"change_type"`
		} `json:"changes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Changes, 1)
	assert.Equal(t, "3", got.Changes[0].Section)
	assert.Equal(t, "REPLACE", got.Changes[0].ChangeType)
}
