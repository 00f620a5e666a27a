package changedetect

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func TestFingerprintDeterministic(t *testing.T) {
	t.Parallel()

	markup := `<html><body><div id="content"><h2>Wissenschaftliche Mitarbeiterin</h2></div></body></html>`
	first := Fingerprint(mustDoc(t, markup))
	second := Fingerprint(mustDoc(t, markup))
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestFingerprintIgnoresNoiseAndVolatileText(t *testing.T) {
	t.Parallel()

	a := `<html><body>
		<header>Menu A</header>
		<div id="main"><p>Stellenausschreibung Lehrkraft</p><p>Stand: 01.02.2024</p><p>Aktualisiert heute um 10:11:12</p></div>
		<footer>Footer A</footer>
		<script>var x = 1;</script>
	</body></html>`
	b := `<html><body>
		<header>Menu B</header>
		<div id="main"><p>Stellenausschreibung   LEHRKRAFT</p><p>Stand: 15.03.2024</p><p>Aktualisiert gestern um 23:59:01</p></div>
		<footer>Footer B</footer>
		<script>var x = 2;</script>
	</body></html>`
	assert.Equal(t, Fingerprint(mustDoc(t, a)), Fingerprint(mustDoc(t, b)))
}

func TestFingerprintDetectsMaterialChange(t *testing.T) {
	t.Parallel()

	a := `<div class="page-content"><a href="/a">Wissenschaftliche Mitarbeiterin Design</a></div>`
	b := `<div class="page-content"><a href="/a">Wissenschaftliche Mitarbeiterin Design</a><a href="/b">Künstlerischer Mitarbeiter Foto</a></div>`
	assert.True(t, HasChanged(Fingerprint(mustDoc(t, a)), Fingerprint(mustDoc(t, b))))
}

func TestFingerprintOnlyUsesMainContent(t *testing.T) {
	t.Parallel()

	a := `<body><aside>Sidebar one</aside><main><p>Offene Stellen</p></main></body>`
	b := `<body><aside>Sidebar two</aside><main><p>Offene Stellen</p></main></body>`
	assert.Equal(t, Fingerprint(mustDoc(t, a)), Fingerprint(mustDoc(t, b)))
}

func TestFingerprintDoesNotMutateDocument(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<body><nav>Navigation</nav><div id="main">Body</div></body>`)
	_ = Fingerprint(doc)
	assert.Equal(t, 1, doc.Find("nav").Length())
}

func TestFingerprintNilDocument(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Fingerprint(nil))
}

func TestHasChanged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		old, new string
		want     bool
	}{
		{name: "equal", old: "abc", new: "abc", want: false},
		{name: "different", old: "abc", new: "abd", want: true},
		{name: "no previous", old: "", new: "abc", want: true},
		{name: "no current", old: "abc", new: "", want: true},
		{name: "both empty", old: "", new: "", want: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, HasChanged(tc.old, tc.new))
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "jobs", Normalize("  Jobs \n\t vor 3 Tagen "))
	assert.Equal(t, "posted", Normalize("Posted 2 days ago"))
	assert.Equal(t, "seite", Normalize("Seite Last updated"))
}

func TestVisibleTextSeparatesBlocks(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, `<div><p>first</p><p>second</p><script>skip()</script></div>`)
	assert.Equal(t, "first second", strings.Join(strings.Fields(VisibleText(doc.Find("div"))), " "))
}

func TestTextLines(t *testing.T) {
	t.Parallel()

	doc := mustDoc(t, "<div>\n  Line one\n\n  <span>Line two</span>\n</div>")
	assert.Equal(t, []string{"Line one", "Line two"}, TextLines(doc.Find("div")))
}
