package frontmatter

// MergeInto combines a file's existing frontmatter with a freshly rendered one.
//
// When existing is empty the incoming record is used as-is. Otherwise incoming
// keys overwrite existing ones, except protected keys that already exist, and
// keys only present in existing are kept.
func MergeInto(existing, incoming *Frontmatter, protected []string) *Frontmatter {
	if existing.Len() == 0 {
		return incoming.Clone()
	}
	prot := make(map[string]struct{}, len(protected))
	for _, p := range protected {
		prot[p] = struct{}{}
	}
	out := existing.Clone()
	for _, k := range incoming.keys {
		if _, ok := prot[k]; ok && existing.Has(k) {
			continue
		}
		out.setNode(k, incoming.values[k])
	}
	return out
}
