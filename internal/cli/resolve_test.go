package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const layeredJob = `job: layered
providers:
  - type: local
    path: work
    primary: main.tex
    writable: true
  - type: memfs
    files:
      article.cls: "\\ProvidesClass{article}\n"
      main.tex: "shadowed\n"
  - type: stdio
`

func layeredFiles() map[string]string {
	return map[string]string{"work/main.tex": "Hello.\n"}
}

func TestResolve_FirstLayerWins(t *testing.T) {
	path := writeJob(t, layeredJob, layeredFiles())

	stdout, _, err := execute(t, path, "", "resolve", "main.tex")
	require.NoError(t, err)
	assert.Contains(t, stdout, "main.tex: [0] local:")
	assert.Contains(t, stdout, "(7 bytes)")

	stdout, _, err = execute(t, path, "", "resolve", "article.cls")
	require.NoError(t, err)
	assert.Contains(t, stdout, "article.cls: [1] ")
}

func TestResolve_JSON(t *testing.T) {
	path := writeJob(t, layeredJob, layeredFiles())

	stdout, _, err := execute(t, path, "", "--format", "json", "resolve", "article.cls")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   Resolution `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "input", resp.Data.Kind)
	assert.Equal(t, 1, resp.Data.Layer)
	assert.Equal(t, int64(24), resp.Data.Size)
}

func TestResolve_NotFound(t *testing.T) {
	path := writeJob(t, layeredJob, layeredFiles())

	stdout, _, err := execute(t, path, "", "resolve", "missing.sty")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "missing.sty: no provider supplies this input")
}

func TestResolve_FormatNamespace(t *testing.T) {
	path := writeJob(t, layeredJob, layeredFiles())

	// A plain file of the same name is not a format.
	_, _, err := execute(t, path, "", "resolve", "--format-file", "article.cls")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestPrimary(t *testing.T) {
	path := writeJob(t, layeredJob, layeredFiles())

	stdout, _, err := execute(t, path, "", "--format", "json", "primary")
	require.NoError(t, err)

	var resp struct {
		Data Resolution `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "main.tex", resp.Data.Name)
	assert.Equal(t, "primary", resp.Data.Kind)
	assert.Equal(t, 0, resp.Data.Layer)
}

func TestCat(t *testing.T) {
	path := writeJob(t, layeredJob, layeredFiles())

	stdout, _, err := execute(t, path, "", "cat", "main.tex")
	require.NoError(t, err)
	assert.Equal(t, "Hello.\n", stdout)

	stdout, _, err = execute(t, path, "", "cat", "article.cls")
	require.NoError(t, err)
	assert.Equal(t, "\\ProvidesClass{article}\n", stdout)

	_, stderr, err := execute(t, path, "", "cat", "missing.sty")
	require.Error(t, err)
	assert.Contains(t, stderr, "error:")
}

func TestPut_WritesThroughFirstWritableLayer(t *testing.T) {
	path := writeJob(t, layeredJob, layeredFiles())

	stdout, _, err := execute(t, path, "@book{k}\n", "put", "refs.bib")
	require.NoError(t, err)
	assert.Contains(t, stdout, "refs.bib: [0] local:")
	assert.Contains(t, stdout, "(9 bytes)")

	data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "work", "refs.bib"))
	require.NoError(t, err)
	assert.Equal(t, "@book{k}\n", string(data))
}

func TestPut_NoWritableLayer(t *testing.T) {
	job := `providers:
  - type: memfs
    files:
      a.tex: "a\n"
`
	path := writeJob(t, job, nil)

	stdout, _, err := execute(t, path, "data", "put", "b.tex")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "b.tex: no provider supplies this output")
}
