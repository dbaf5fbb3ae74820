// Package frontmatter implements the ordered YAML metadata record written at
// the top of every synced file, plus the rules for rendering and merging it.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotMapping is returned when a YAML block parses but is not a mapping.
var ErrNotMapping = errors.New("frontmatter: yaml is not a mapping")

const fence = "---"

// Frontmatter is an ordered key/value record. Values are kept as YAML nodes so
// user formatting (quoting, dates, comments) survives a parse/serialize cycle.
type Frontmatter struct {
	keys   []string
	values map[string]*yaml.Node
}

// New returns an empty Frontmatter.
func New() *Frontmatter {
	return &Frontmatter{values: make(map[string]*yaml.Node)}
}

// Parse decodes a YAML block (without fences) into a Frontmatter. An empty or
// null document yields an empty record.
func Parse(text string) (*Frontmatter, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	fm := New()
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return fm, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return fm, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		fm.setNode(root.Content[i].Value, root.Content[i+1])
	}
	return fm, nil
}

func (f *Frontmatter) setNode(key string, n *yaml.Node) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = n
}

// Len returns the number of keys.
func (f *Frontmatter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.keys)
}

// Keys returns the keys in insertion order.
func (f *Frontmatter) Keys() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.keys...)
}

// Has reports whether key is present.
func (f *Frontmatter) Has(key string) bool {
	if f == nil {
		return false
	}
	_, ok := f.values[key]
	return ok
}

// Get decodes the value stored under key.
func (f *Frontmatter) Get(key string) (any, bool) {
	if f == nil {
		return nil, false
	}
	n, ok := f.values[key]
	if !ok {
		return nil, false
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, false
	}
	return v, true
}

// GetString returns the scalar text stored under key, or "" when the key is
// missing or not a scalar.
func (f *Frontmatter) GetString(key string) string {
	if f == nil {
		return ""
	}
	n, ok := f.values[key]
	if !ok || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return n.Value
}

// Set stores value under key. The value must be representable in YAML.
func (f *Frontmatter) Set(key string, value any) error {
	if key == "" {
		return errors.New("frontmatter: empty key")
	}
	var n yaml.Node
	if err := n.Encode(value); err != nil {
		return fmt.Errorf("frontmatter: set %q: %w", key, err)
	}
	f.setNode(key, &n)
	return nil
}

// Delete removes key if present.
func (f *Frontmatter) Delete(key string) {
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	for i, k := range f.keys {
		if k == key {
			f.keys = append(f.keys[:i], f.keys[i+1:]...)
			break
		}
	}
}

// Merge overwrites keys in f with every key of other, appending new keys in
// other's order.
func (f *Frontmatter) Merge(other *Frontmatter) error {
	if other == nil {
		return nil
	}
	for _, k := range other.keys {
		if k == "" {
			return errors.New("frontmatter: merge: empty key")
		}
		f.setNode(k, other.values[k])
	}
	return nil
}

// Clone returns a copy that can be modified independently of f.
func (f *Frontmatter) Clone() *Frontmatter {
	out := New()
	if f == nil {
		return out
	}
	for _, k := range f.keys {
		out.setNode(k, f.values[k])
	}
	return out
}

// Marshal serializes the record as YAML without fences.
func (f *Frontmatter) Marshal() (string, error) {
	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range f.keys {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
			f.values[k],
		)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return "", fmt.Errorf("frontmatter: marshal: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("frontmatter: marshal: %w", err)
	}
	return buf.String(), nil
}

// Block serializes the record between --- fences. An empty record yields "".
func (f *Frontmatter) Block() (string, error) {
	if f.Len() == 0 {
		return "", nil
	}
	y, err := f.Marshal()
	if err != nil {
		return "", err
	}
	return fence + "\n" + y + fence + "\n", nil
}

// Compose joins a frontmatter block and a body into final file text.
func Compose(f *Frontmatter, body string) (string, error) {
	block, err := f.Block()
	if err != nil {
		return "", err
	}
	return block + body, nil
}

// StripFences removes a leading and trailing --- line that a template may
// have emitted around its YAML. The result ends in a newline.
func StripFences(text string) string {
	lines := strings.Split(strings.Trim(text, "\r\n"), "\n")
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == fence {
		lines = lines[1:]
	}
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == fence {
		lines = lines[:n-1]
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
