package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sitecrawl/orchestrator/internal/crawlweb"
)

func TestTreeRendersAsciiHierarchyAndExamples(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)
	urls := []string{
		"https://a.com/blog/one",
		"https://a.com/blog/two",
		"https://a.com/about",
	}
	require.NoError(t, w.Tree(urls))

	ascii, err := os.ReadFile(filepath.Join(dir, "tree.txt"))
	require.NoError(t, err)
	require.Contains(t, string(ascii), "blog")
	require.Contains(t, string(ascii), "about")
	require.Contains(t, string(ascii), "one")

	examples, err := os.ReadFile(filepath.Join(dir, "tree-examples.md"))
	require.NoError(t, err)
	require.Contains(t, string(examples), "## /blog")
	require.Contains(t, string(examples), "https://a.com/blog/one")
}

func TestPathSegmentsOfEdgesDedupsLinkURLs(t *testing.T) {
	segs := PathSegmentsOfEdges(nil)
	require.Nil(t, segs)

	edges := []crawlweb.Edge{{LinkURL: "https://a.com/1"}, {LinkURL: "https://a.com/2"}, {LinkURL: "https://a.com/1"}}
	require.Equal(t, []string{"https://a.com/1", "https://a.com/2"}, PathSegmentsOfEdges(edges))
}

func TestPathSegmentsHandlesURLsWithoutScheme(t *testing.T) {
	require.Equal(t, []string{"x"}, pathSegments("https://a.com/x"))
	require.Nil(t, pathSegments("https://a.com"))
	require.Nil(t, pathSegments("https://a.com/"))
	require.Equal(t, []string{"a", "b"}, pathSegments("/a/b"))
}

func TestExtrasListsPagesAbsentFromExpectedByTitle(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)
	pages := []PageRecord{
		{FinalURL: "https://a.com/1", Title: "Known Page", Description: "d1"},
		{FinalURL: "https://a.com/2", Title: "Extra Page", Description: "d2"},
	}
	expected := []Expected{{Title: "Known Page", Description: "different description"}}

	require.NoError(t, w.Extras(pages, expected, false))

	data, err := os.ReadFile(filepath.Join(dir, "extras.csv"))
	require.NoError(t, err)
	require.NotContains(t, string(data), "Known Page")
	require.Contains(t, string(data), "Extra Page")
}

func TestExtrasMatchesByTitleAndDescriptionWhenRequested(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)
	pages := []PageRecord{
		{FinalURL: "https://a.com/1", Title: "Same Title", Description: "different"},
	}
	expected := []Expected{{Title: "Same Title", Description: "original"}}

	require.NoError(t, w.Extras(pages, expected, true))

	data, err := os.ReadFile(filepath.Join(dir, "extras.csv"))
	require.NoError(t, err)
	require.Contains(t, string(data), "Same Title", "title+description key differs so page counts as extra")
}

func TestExistenceWritesCSVJSONAndTextArtifacts(t *testing.T) {
	dir := t.TempDir()
	w := New(dir)
	records := []ExistenceRecord{
		{InputURL: "https://a.com/1", Exists: true, HTTPStatus: 200, FinalURL: "https://a.com/1"},
		{InputURL: "https://a.com/2", Exists: false, HTTPStatus: 404, FinalURL: "https://a.com/2"},
	}
	require.NoError(t, w.Existence(records))

	csvData, err := os.ReadFile(filepath.Join(dir, "url-existence.csv"))
	require.NoError(t, err)
	require.Contains(t, string(csvData), "input_url,exists,http_status,final_url")
	require.Contains(t, string(csvData), "https://a.com/1,true,200")

	jsonData, err := os.ReadFile(filepath.Join(dir, "url-existence.json"))
	require.NoError(t, err)
	require.Contains(t, string(jsonData), `"input_url": "https://a.com/2"`)

	working, err := os.ReadFile(filepath.Join(dir, "working-urls.txt"))
	require.NoError(t, err)
	require.Equal(t, "https://a.com/1\n", string(working))

	notWorking, err := os.ReadFile(filepath.Join(dir, "not-working-urls.txt"))
	require.NoError(t, err)
	require.Equal(t, "https://a.com/2\n", string(notWorking))
}
