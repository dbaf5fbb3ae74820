package frontmatter

import "testing"

func TestEnsureTrackingProperty_Appends(t *testing.T) {
	got := EnsureTrackingProperty("title: \"X\"\n", "uri", `"https://r/1"`)
	want := "title: \"X\"\nuri: \"https://r/1\"\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEnsureTrackingProperty_ReplacesInPlace(t *testing.T) {
	got := EnsureTrackingProperty("uri: old\ntitle: X\n", "uri", `"new"`)
	want := "uri: \"new\"\ntitle: X\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEnsureTrackingProperty_RemovesDuplicates(t *testing.T) {
	src := "title: X\nuri: a\nauthor: Y\nuri:\n  - b\n  - c\ntags: []\n"
	got := EnsureTrackingProperty(src, "uri", `"id"`)
	want := "title: X\nuri: \"id\"\nauthor: Y\ntags: []\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEnsureTrackingProperty_IgnoresSimilarKeys(t *testing.T) {
	got := EnsureTrackingProperty("uri_old: a\n  nested_uri: b\n", "uri", `"x"`)
	want := "uri_old: a\n  nested_uri: b\nuri: \"x\"\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEnsureTrackingProperty_Empty(t *testing.T) {
	if got := EnsureTrackingProperty("", "uri", `"x"`); got != "uri: \"x\"\n" {
		t.Errorf("got %q", got)
	}
}
