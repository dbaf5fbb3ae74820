package render

// DefaultFrontmatterTemplate renders the metadata block. String fields arrive
// already YAML-escaped.
const DefaultFrontmatterTemplate = `id: {{.id}}
title: {{.title}}
author: {{.author}}
category: {{.category}}
url: {{.url}}
{{- if .source_url}}
source_url: {{.source_url}}
{{- end}}
num_highlights: {{.num_highlights}}
{{- if .created}}
created: {{.created}}
{{- end}}
{{- if .updated}}
updated: {{.updated}}
{{- end}}
{{- if .tag_list}}
tags:
{{- range .tag_list}}
  - {{.}}
{{- end}}
{{- end}}
`

// DefaultBodyTemplate renders the markdown body below the frontmatter.
const DefaultBodyTemplate = `# {{.sanitized_title}}
{{- if .cover_image_url}}

![cover]({{.cover_image_url}})
{{- end}}
{{- if .author}}

Author: {{.author}}
{{- end}}
{{- if .document_note}}

## Document note

{{.document_note}}
{{- end}}

## Highlights
{{range .highlights}}
> {{quote .text}}
{{- if .note}}

Note: {{.note}}
{{- end}}
{{- if .tags}}

Tags: {{.tags}}
{{- end}}
{{- if .url}}

[Location {{.location}}]({{.url}})
{{- end}}
{{end}}`
