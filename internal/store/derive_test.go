package store

import "testing"

func TestDeriveTitle(t *testing.T) {
	cases := map[string]string{
		"algorithms/sorting.md": "Sorting",
		"quick-sort.md":         "Quick Sort",
		"my_daily__notes.md":    "My Daily Notes",
		"README":                "Readme",
		".md":                   ".md",
	}
	for in, want := range cases {
		if got := DeriveTitle(in); got != want {
			t.Errorf("DeriveTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPreview(t *testing.T) {
	db := &DB{previewLen: 10}

	if got := db.Preview("# Hi\n\nthere"); got != "# Hi  ther" {
		t.Errorf("truncated preview = %q", got)
	}
	if got := db.Preview("<b>bo</b> &amp;"); got != "<b>bo</b>" {
		t.Errorf("markup preview = %q", got)
	}
	if got := db.Preview("a\r\nb"); got != "a b" {
		t.Errorf("crlf preview = %q", got)
	}
	if got := db.Preview("héllo wörld ünïcode"); got != "héllo wörl" {
		t.Errorf("rune preview = %q", got)
	}
}

func TestPreviewKeepsAngleBrackets(t *testing.T) {
	db := &DB{previewLen: DefaultPreviewLength}
	for _, body := range []string{
		"Use std::vector<int> v; if a<b then <T> works",
		"x -> y && a &lt; b",
		"<script>alert(1)</script> stays text",
	} {
		if got := db.Preview(body); got != body {
			t.Errorf("Preview(%q) = %q", body, got)
		}
	}
}
