package service

import (
	"fmt"
	"sort"
	"strings"

	"ragqa/internal/domain"
)

const (
	ExcerptChars = 750
	NoContext    = "(No context found)"
)

// FormatContext renders retrieved documents as prompt context blocks.
func FormatContext(docs []domain.Document) string {
	if len(docs) == 0 {
		return NoContext
	}
	blocks := make([]string, 0, len(docs))
	for _, d := range docs {
		blocks = append(blocks, fmt.Sprintf("Title: %s\nMeta: %s\nExcerpt: %s",
			d.Metadata.Title, formatMeta(d.Metadata), excerpt(d.Content, ExcerptChars)))
	}
	return strings.Join(blocks, "\n\n---\n")
}

// BuildUserMessage is the grounded message handed to a chat model.
func BuildUserMessage(question string, docs []domain.Document) string {
	return fmt.Sprintf("Context studies (may be partial excerpts):\n%s\n\nQuestion: %s\n", FormatContext(docs), question)
}

func formatMeta(m domain.Metadata) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+": "+v)
		}
	}
	add("identifier", m.Identifier)
	add("authors", m.Authors)
	add("date", m.Date)
	add("link", m.Link)
	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, m.Extra[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
