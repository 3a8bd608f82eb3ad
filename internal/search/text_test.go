package search

import (
	"strings"
	"testing"
)

// ---------- StripMarkup ----------

func TestStripMarkup(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"plain   text\n\twith  gaps ", "plain text with gaps"},
		{"<p>Hello <strong>world</strong></p>", "Hello world"},
		{"Fish &amp; Wildlife", "Fish & Wildlife"},
		{"<script>alert(1)</script>Safe", "Safe"},
		{"<p>a</p><p>b</p>", "a b"},
		{"Line one<br>Line two", "Line one Line two"},
		{"<li>Maps</li><li>Data</li>", "Maps Data"},
	}
	for _, tc := range cases {
		if got := StripMarkup(tc.in); got != tc.want {
			t.Fatalf("StripMarkup(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// ---------- Excerpt ----------

func TestExcerpt_WindowAroundMatch(t *testing.T) {
	before := strings.Repeat("a ", 100) // 200 runes
	after := strings.Repeat(" b", 100)  // 200 runes
	content := before + "KEYWORD" + after

	got := Excerpt(content, "keyword")

	runes := []rune(content)
	want := "..." + string(runes[150:200+7+100]) + "..."
	if got != want {
		t.Fatalf("excerpt mismatch:\n got  %q\n want %q", got, want)
	}
	if !strings.Contains(got, "KEYWORD") {
		t.Fatalf("excerpt lost the keyword casing: %q", got)
	}
}

func TestExcerpt_NoEllipsisWhenNotTruncated(t *testing.T) {
	content := "lorem ipsum KEYWORD dolor sit"
	got := Excerpt(content, "KEYWORD")
	if got != content {
		t.Fatalf("got %q want %q", got, content)
	}
}

func TestExcerpt_OnlyLeadingEllipsis(t *testing.T) {
	content := strings.Repeat("x", 80) + "match" + " tail"
	got := Excerpt(content, "match")
	if !strings.HasPrefix(got, "...") {
		t.Fatalf("expected leading ellipsis: %q", got)
	}
	if strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected trailing ellipsis: %q", got)
	}
	if n := len([]rune(strings.TrimPrefix(got, "..."))); n != 50+len("match tail") {
		t.Fatalf("window length = %d", n)
	}
}

func TestExcerpt_OnlyTrailingEllipsis(t *testing.T) {
	content := "match " + strings.Repeat("y", 300)
	got := Excerpt(content, "MATCH")
	if strings.HasPrefix(got, "...") {
		t.Fatalf("unexpected leading ellipsis: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected trailing ellipsis: %q", got)
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n != len("match")+100 {
		t.Fatalf("window length = %d", n)
	}
}

func TestExcerpt_FallbackWhenMissing(t *testing.T) {
	long := strings.Repeat("z", 400)
	got := Excerpt(long, "absent")
	if got != strings.Repeat("z", excerptFallback)+"..." {
		t.Fatalf("fallback excerpt unexpected: %q", got)
	}
	short := "short text"
	if got := Excerpt(short, "absent"); got != short {
		t.Fatalf("short fallback: %q", got)
	}
}

func TestExcerpt_BlockBoundariesSeparateWords(t *testing.T) {
	got := Excerpt("<h2>Sampling</h2><p>Well water testing</p>", "testing")
	if got != "Sampling Well water testing" {
		t.Fatalf("got %q", got)
	}
}

func TestExcerpt_StripsMarkupFirst(t *testing.T) {
	got := Excerpt("<p>The <em>river</em>\n\n gauge</p>", "river gauge")
	if got != "The river gauge" {
		t.Fatalf("got %q", got)
	}
}

func TestExcerpt_MultibyteRunes(t *testing.T) {
	content := strings.Repeat("é", 60) + "Señal" + strings.Repeat("ü", 10)
	got := Excerpt(content, "señal")
	want := "..." + strings.Repeat("é", 50) + "Señal" + strings.Repeat("ü", 10)
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

// ---------- Highlight ----------

func TestHighlight_PreservesCaseOnce(t *testing.T) {
	got := Highlight("Water Resources Report", "water")
	if got != "<mark>Water</mark> Resources Report" {
		t.Fatalf("got %q", got)
	}
	if strings.Count(got, "<mark>") != 1 {
		t.Fatalf("expected exactly one highlight: %q", got)
	}
}

func TestHighlight_GlobalReplace(t *testing.T) {
	got := Highlight("Lab lab LAB", "lab")
	if got != "<mark>Lab</mark> <mark>lab</mark> <mark>LAB</mark>" {
		t.Fatalf("got %q", got)
	}
}

func TestHighlight_RegexMetacharactersAreLiteral(t *testing.T) {
	got := Highlight("C++ (intro) and C", "c++")
	if got != "<mark>C++</mark> (intro) and C" {
		t.Fatalf("got %q", got)
	}
	// Would be an invalid pattern if passed through unescaped.
	if got := Highlight("a (b", "(b"); got != "a <mark>(b</mark>" {
		t.Fatalf("got %q", got)
	}
	if got := Highlight("a.b axb", "a.b"); got != "<mark>a.b</mark> axb" {
		t.Fatalf("dot must not act as wildcard: %q", got)
	}
}

func TestHighlight_EscapesHTML(t *testing.T) {
	got := Highlight(`<b>R&D</b> report`, "r&d")
	want := "&lt;b&gt;<mark>R&amp;D</mark>&lt;/b&gt; report"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := Highlight("<i>x</i>", ""); got != "&lt;i&gt;x&lt;/i&gt;" {
		t.Fatalf("empty query should only escape: %q", got)
	}
}
