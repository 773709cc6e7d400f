package crawlweb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractLinksEmitsSPANavCandidatesFromCapturedIntents(t *testing.T) {
	page := Page{
		Body:          []byte(`<html><body><a href="/static">Static</a></body></html>`),
		SPANavIntents: []string{"/spa/one", "", "/spa/two"},
	}

	candidates := extractLinks(page)

	var spaURLs []string
	for _, c := range candidates {
		if c.Kind == LinkKindSPANav {
			spaURLs = append(spaURLs, c.URL)
		}
	}
	require.Equal(t, []string{"/spa/one", "/spa/two"}, spaURLs, "empty intents are skipped, non-empty ones become spa-nav candidates")

	var sawAnchor bool
	for _, c := range candidates {
		if c.Kind == LinkKindAnchor && c.URL == "/static" {
			sawAnchor = true
		}
	}
	require.True(t, sawAnchor, "DOM-derived candidates still surface alongside SPA-nav ones")
}

func TestExtractLinksWithNoSPANavIntentsIsUnaffected(t *testing.T) {
	page := Page{Body: []byte(`<html><body><a href="/x">X</a></body></html>`)}
	candidates := extractLinks(page)
	require.Len(t, candidates, 1)
	require.Equal(t, LinkKindAnchor, candidates[0].Kind)
}
