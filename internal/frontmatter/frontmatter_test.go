package frontmatter

import (
	"strings"
	"testing"
)

func TestParse_KeepsOrderAndFormatting(t *testing.T) {
	src := "title: \"Quoted\"\nstatus: done\ncreated: 2024-01-02\ntags:\n  - \"#a\"\n"
	fm, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := strings.Join(fm.Keys(), ","); got != "title,status,created,tags" {
		t.Errorf("keys = %s", got)
	}
	out, err := fm.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if out != src {
		t.Errorf("round trip changed text:\n%s\nwant:\n%s", out, src)
	}
}

func TestParse_Empty(t *testing.T) {
	for _, src := range []string{"", "\n", "~\n"} {
		fm, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q): %v", src, err)
		}
		if fm.Len() != 0 {
			t.Errorf("Parse(%q) len = %d", src, fm.Len())
		}
	}
}

func TestParse_NotMapping(t *testing.T) {
	if _, err := Parse("just a string\n"); err != ErrNotMapping {
		t.Errorf("err = %v, want ErrNotMapping", err)
	}
	if _, err := Parse("- a\n- b\n"); err != ErrNotMapping {
		t.Errorf("err = %v, want ErrNotMapping", err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse("title: [unclosed\n"); err == nil {
		t.Error("expected error")
	}
}

func TestSetGetDelete(t *testing.T) {
	fm := New()
	if err := fm.Set("duplicate", true); err != nil {
		t.Fatal(err)
	}
	if err := fm.Set("title", "X"); err != nil {
		t.Fatal(err)
	}
	v, ok := fm.Get("duplicate")
	if !ok || v != true {
		t.Errorf("Get(duplicate) = %v, %v", v, ok)
	}
	if fm.GetString("title") != "X" {
		t.Errorf("GetString(title) = %q", fm.GetString("title"))
	}
	fm.Delete("duplicate")
	if fm.Has("duplicate") || fm.Len() != 1 {
		t.Errorf("after delete keys = %v", fm.Keys())
	}
	if err := fm.Set("", 1); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestBlock(t *testing.T) {
	fm, _ := Parse("a: 1\n")
	b, err := fm.Block()
	if err != nil {
		t.Fatal(err)
	}
	if b != "---\na: 1\n---\n" {
		t.Errorf("block = %q", b)
	}
	empty, _ := New().Block()
	if empty != "" {
		t.Errorf("empty block = %q", empty)
	}
	text, _ := Compose(fm, "body\n")
	if text != "---\na: 1\n---\nbody\n" {
		t.Errorf("compose = %q", text)
	}
}

func TestStripFences(t *testing.T) {
	got := StripFences("---\na: 1\nb: 2\n---\n")
	if got != "a: 1\nb: 2\n" {
		t.Errorf("got %q", got)
	}
	if StripFences("a: 1\n") != "a: 1\n" {
		t.Error("unfenced text should pass through")
	}
}

func TestMergeInto_ProtectedField(t *testing.T) {
	existing, _ := Parse("status: \"done\"\ntitle: \"X\"\n")
	incoming, _ := Parse("status: \"new\"\ntitle: \"Y\"\n")

	got := MergeInto(existing, incoming, []string{"status"})
	if got.GetString("status") != "done" {
		t.Errorf("status = %q, want done", got.GetString("status"))
	}
	if got.GetString("title") != "Y" {
		t.Errorf("title = %q, want Y", got.GetString("title"))
	}
}

func TestMergeInto_PreservesUserKeys(t *testing.T) {
	existing, _ := Parse("title: X\nmy_rating: 5\n")
	incoming, _ := Parse("title: Y\nauthor: Z\n")

	got := MergeInto(existing, incoming, nil)
	if strings.Join(got.Keys(), ",") != "title,my_rating,author" {
		t.Errorf("keys = %v", got.Keys())
	}
	if v, _ := got.Get("my_rating"); v != 5 {
		t.Errorf("my_rating = %v", v)
	}
	// existing must not be mutated
	if existing.GetString("title") != "X" {
		t.Error("existing was mutated")
	}
}

func TestMergeInto_EmptyExistingIgnoresProtection(t *testing.T) {
	incoming, _ := Parse("status: new\n")
	got := MergeInto(New(), incoming, []string{"status"})
	if got.GetString("status") != "new" {
		t.Errorf("status = %q", got.GetString("status"))
	}
}

func TestMergeInto_ProtectedMissingFromExisting(t *testing.T) {
	existing, _ := Parse("title: X\n")
	incoming, _ := Parse("status: new\ntitle: Y\n")
	got := MergeInto(existing, incoming, []string{"status"})
	if got.GetString("status") != "new" {
		t.Errorf("a protected key absent from existing should be written, got %q", got.GetString("status"))
	}
}

func TestMergeInto_Idempotent(t *testing.T) {
	incoming, _ := Parse("title: \"A 'b'\"\nurl: \"https://x\"\ncreated: 2024-01-02\n")
	first := MergeInto(New(), incoming, []string{"status"})
	firstText, _ := first.Marshal()

	reread, _ := Parse(firstText)
	second := MergeInto(reread, incoming, []string{"status"})
	secondText, _ := second.Marshal()
	if firstText != secondText {
		t.Errorf("second merge changed output:\n%s\nvs\n%s", firstText, secondText)
	}
}

func TestMerge(t *testing.T) {
	fm, _ := Parse("a: 1\n")
	other, _ := Parse("b: 2\na: 3\n")
	if err := fm.Merge(other); err != nil {
		t.Fatal(err)
	}
	out, _ := fm.Marshal()
	if out != "a: 3\nb: 2\n" {
		t.Errorf("merged = %q", out)
	}
}

func TestNilFrontmatter(t *testing.T) {
	var f *Frontmatter
	if f.Len() != 0 || f.Keys() != nil || f.Has("a") || f.GetString("a") != "" {
		t.Error("nil frontmatter should read as empty")
	}
	if v, ok := f.Get("a"); ok || v != nil {
		t.Errorf("Get on nil = %v, %v", v, ok)
	}
}
