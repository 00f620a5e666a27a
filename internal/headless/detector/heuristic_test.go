package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/listingwatch/internal/scraper"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.ShouldPromote(scraper.FetchResponse{StatusCode: 200, Body: []byte("  \n")}))
}

func TestHeuristic_ShouldPromote_Markers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100, "vue-app")
	for _, body := range []string{
		`<div id="__next"></div>`,
		`<noscript>Bitte JavaScript aktivieren</noscript>`,
		`<div class="VUE-APP"></div>`,
	} {
		require.True(t, h.ShouldPromote(scraper.FetchResponse{StatusCode: 200, Body: []byte(body)}), body)
	}
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	resp := scraper.FetchResponse{
		StatusCode: 200,
		Body:       []byte(`<html><script>var a=1;</script><p>t</p></html>`),
	}
	require.True(t, h.ShouldPromote(resp))
}

func TestHeuristic_ShouldPromote_StaticListing(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0)
	body := "<html><body><ul>" + strings.Repeat(`<li><a href="/s">Wissenschaftliche Mitarbeiterin</a></li>`, 50) + "</ul></body></html>"
	require.False(t, h.ShouldPromote(scraper.FetchResponse{StatusCode: 200, Body: []byte(body)}))
}

func TestHeuristic_ShouldPromote_DisabledForErrors(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.ShouldPromote(scraper.FetchResponse{StatusCode: 404, Body: []byte("not found")}))
}

func TestScriptPercentUnterminated(t *testing.T) {
	t.Parallel()

	require.Equal(t, 100, scriptPercent([]byte("<script>never closed")))
	require.Equal(t, 0, scriptPercent([]byte("<p>plain</p>")))
}
