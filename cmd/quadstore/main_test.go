package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aleksaelezovic/quadstore/pkg/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const data = `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/knows> <http://example.org/bob> <http://example.org/g> .
`

// run executes the CLI against a bolt store in dir and returns stdout
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &errOut

	argv := append([]string{"quadstore", "--backend", "bolt", "--path", filepath.Join(dir, "store.db"), "--log-level", "error"}, args...)
	err := app.Run(argv)
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCLI_LoadMatchDelete(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "data.nq", data)

	out, err := run(t, dir, "load", input)
	require.NoError(t, err)
	assert.Contains(t, out, "2 quads read, 2 inserted")

	out, err = run(t, dir, "match", "-s", "<http://example.org/alice>")
	require.NoError(t, err)
	quads, err := rdf.NewNQuadsReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, quads, 2)

	out, err = run(t, dir, "match", "-g", "default")
	require.NoError(t, err)
	assert.Equal(t, `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice" .`+"\n", out)

	out, err = run(t, dir, "graphs")
	require.NoError(t, err)
	assert.Equal(t, "<http://example.org/g>\n", out)

	out, err = run(t, dir, "cost", "<http://example.org/alice>")
	require.NoError(t, err)
	assert.Equal(t, "1\n", out)

	out, err = run(t, dir, "delete", input)
	require.NoError(t, err)
	assert.Contains(t, out, "2 quads read, 2 deleted")

	out, err = run(t, dir, "stats")
	require.NoError(t, err)
	assert.Equal(t, "quads:  0\ngraphs: 0\n", out)
}

func TestCLI_JSONLD(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "data.nq", data)

	_, err := run(t, dir, "load", input)
	require.NoError(t, err)

	out, err := run(t, dir, "match", "--format", "jsonld")
	require.NoError(t, err)

	other := t.TempDir()
	doc := writeFile(t, other, "data.jsonld", out)
	out, err = run(t, other, "load", doc)
	require.NoError(t, err)
	assert.Contains(t, out, "2 inserted")
}

func TestCLI_LoadTurtleAndTriG(t *testing.T) {
	dir := t.TempDir()
	turtle := writeFile(t, dir, "people.ttl", `@prefix foaf: <http://xmlns.com/foaf/0.1/> .
<alice> foaf:name "Alice" ;
    foaf:knows [ foaf:name "Bob" ] .
`)
	trig := writeFile(t, dir, "graphs.trig", `@prefix ex: <http://example.org/> .
ex:carol ex:name "Carol" .
ex:g { ex:carol ex:knows ex:alice }
GRAPH ex:h { ex:dave ex:name "Dave" . }
`)

	_, err := run(t, dir, "load", turtle)
	assert.Error(t, err, "relative IRI without --base")

	out, err := run(t, dir, "load", "--base", "http://example.org/", turtle)
	require.NoError(t, err)
	assert.Contains(t, out, "3 quads read, 3 inserted")

	out, err = run(t, dir, "load", trig)
	require.NoError(t, err)
	assert.Contains(t, out, "3 quads read, 3 inserted")

	out, err = run(t, dir, "match", "-s", "<http://example.org/alice>", "-g", "default")
	require.NoError(t, err)
	quads, err := rdf.NewNQuadsReader(strings.NewReader(out)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, quads, 2)

	out, err = run(t, dir, "graphs")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"<http://example.org/g>", "<http://example.org/h>"}, strings.Fields(out))

	out, err = run(t, dir, "load", "--format", "turtle", writeFile(t, dir, "more.txt", `<http://example.org/erin> <http://example.org/name> "Erin" .`))
	require.NoError(t, err)
	assert.Contains(t, out, "1 quads read, 1 inserted")

	out, err = run(t, dir, "delete", trig)
	require.NoError(t, err)
	assert.Contains(t, out, "3 quads read, 3 deleted")

	out, err = run(t, dir, "stats")
	require.NoError(t, err)
	assert.Equal(t, "quads:  4\ngraphs: 0\n", out)
}

func TestCLI_Clear(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "load", writeFile(t, dir, "data.nq", data))
	require.NoError(t, err)

	_, err = run(t, dir, "clear")
	require.NoError(t, err)

	out, err := run(t, dir, "stats")
	require.NoError(t, err)
	assert.Equal(t, "quads:  0\ngraphs: 0\n", out)
}

func TestCLI_Metrics(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "--metrics", "load", writeFile(t, dir, "data.nq", data))
	require.NoError(t, err)
	assert.Contains(t, out, `quadstore_quad_operations_total{operation="index",status="success"} 2`)
}

func TestCLI_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "load")
	assert.Error(t, err)

	_, err = run(t, dir, "load", writeFile(t, dir, "bad.nq", "<http://example.org/a> .\n"))
	assert.Error(t, err)

	_, err = run(t, dir, "match", "-s", "not-a-term")
	assert.Error(t, err)

	_, err = run(t, dir, "--in-memory", "stats")
	assert.Error(t, err, "bolt has no in-memory mode")
}

func TestCLI_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("QUADSTORE_BACKEND", "nosuch")
	t.Setenv("QUADSTORE_LOG_LEVEL", "loud")
	dir := t.TempDir()

	out, err := run(t, dir, "stats")
	require.NoError(t, err)
	assert.Equal(t, "quads:  0\ngraphs: 0\n", out)

	app := newApp()
	app.Writer, app.ErrWriter = &bytes.Buffer{}, &bytes.Buffer{}
	err = app.Run([]string{"quadstore", "--path", filepath.Join(dir, "other.db"), "stats"})
	assert.ErrorContains(t, err, "invalid configuration")
}
