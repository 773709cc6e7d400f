package crawlweb

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURLStripsAnalyticsAndDefaultPort(t *testing.T) {
	got, err := NormalizeURL("HTTP://Example.com:80/foo/?utm_source=x&b=2&a=1", false)
	require.NoError(t, err)
	require.Equal(t, "http://example.com/foo?a=1&b=2", got)
}

func TestNormalizeURLDropsPageParamUnlessKept(t *testing.T) {
	dropped, err := NormalizeURL("https://example.com/list?page=2", false)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/list", dropped)

	kept, err := NormalizeURL("https://example.com/list?page=2", true)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/list?page=2", kept)
}

func TestNormalizeURLDropsFragmentAndTrailingSlash(t *testing.T) {
	got, err := NormalizeURL("https://example.com/a/#section", false)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a", got)
}

func TestHasAssetExtension(t *testing.T) {
	require.True(t, HasAssetExtension("/img/logo.PNG"))
	require.True(t, HasAssetExtension("/app.js"))
	require.False(t, HasAssetExtension("/about"))
	require.False(t, HasAssetExtension("/no-ext."))
}

func TestSameOriginOrRegistrableDomain(t *testing.T) {
	base := mustParse(t, "https://www.example.com/")
	same := mustParse(t, "https://www.example.com/x")
	sub := mustParse(t, "https://blog.example.com/x")
	other := mustParse(t, "https://example.org/x")

	require.True(t, SameOriginOrRegistrableDomain(base, same))
	require.True(t, SameOriginOrRegistrableDomain(base, sub))
	require.False(t, SameOriginOrRegistrableDomain(base, other))
}

func TestHasPathPrefix(t *testing.T) {
	require.True(t, HasPathPrefix("/docs/guide", "/docs"))
	require.True(t, HasPathPrefix("/docs", "/docs"))
	require.False(t, HasPathPrefix("/docsx", "/docs"))
	require.True(t, HasPathPrefix("/anything", ""))
}

func TestNormalizeTextAndTokens(t *testing.T) {
	require.Equal(t, `it's a "test"`, NormalizeText("It’s a “Test”"))
	require.Equal(t, []string{"a", "b", "c"}, Tokens("A   B\tC"))
	require.Nil(t, Tokens("   "))
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
