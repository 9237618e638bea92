package parser

import "testing"

func TestParse_FrontmatterTitle(t *testing.T) {
	r := Parse([]byte("---\ntitle: Quick Sort\ntags: [algo]\n---\n# Heading\nBody text.\n"))
	if r.Title != "Quick Sort" {
		t.Errorf("title = %q, want %q", r.Title, "Quick Sort")
	}
	if r.Body != "# Heading\nBody text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_HeadingIsNotATitle(t *testing.T) {
	r := Parse([]byte("# Just a heading\nSome text.\n"))
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter, got %v", r.Frontmatter)
	}
	if r.Title != "" {
		t.Errorf("title = %q, want empty", r.Title)
	}
	if r.Body != "# Just a heading\nSome text.\n" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := "---\n: invalid: yaml: {{{\n---\nBody\n"
	r := Parse([]byte(input))
	if r.Frontmatter != nil {
		t.Errorf("expected nil frontmatter on invalid YAML")
	}
	if r.Body != input {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_UnclosedFrontmatter(t *testing.T) {
	input := "---\ntitle: x\nno closing fence"
	r := Parse([]byte(input))
	if r.Title != "" || r.Body != input {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestParse_NonStringTitleIgnored(t *testing.T) {
	r := Parse([]byte("---\ntitle: 42\n---\nbody"))
	if r.Title != "" {
		t.Errorf("title = %q, want empty", r.Title)
	}
}
