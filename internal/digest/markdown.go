package digest

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label turns a field or persona name such as why_it_matters into
// "Why It Matters".
func Label(name string) string {
	words := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), "_", " "))
	return cases.Title(language.English).String(words)
}

// SectionTitle returns the display title, humanizing bare persona names.
func (s Section) SectionTitle() string {
	if s.Title == "" || s.Title == s.Persona {
		return Label(s.Persona)
	}
	return s.Title
}

// Badges renders engagement as "⬆️ 50 | 💬 7".
func Badges(e Entry) string {
	return fmt.Sprintf("⬆️ %d | 💬 %d", e.Item.Engagement.Score, e.Item.Engagement.Comments)
}

// Markdown renders one section as a standalone document.
func Markdown(d Digest, s Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Digest · %s\n\n", s.SectionTitle(), d.Date())
	fmt.Fprintf(&b, "_Window: %s to %s (UTC)_\n\n",
		d.WindowStart.UTC().Format("2006-01-02 15:04"),
		d.WindowEnd.UTC().Format("2006-01-02 15:04"))

	if len(s.Entries) == 0 {
		b.WriteString("_No items kept this run._\n")
		return b.String()
	}
	for i, entry := range s.Entries {
		writeEntry(&b, i+1, s, entry)
	}
	return b.String()
}

// CombinedMarkdown renders every section into one document.
func CombinedMarkdown(d Digest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Digest · %s\n\n", d.Date())
	fmt.Fprintf(&b, "_Run %s, %d items_\n\n", d.RunID, d.ItemCount())
	for _, s := range d.Sections {
		fmt.Fprintf(&b, "## %s\n\n", s.SectionTitle())
		if len(s.Entries) == 0 {
			b.WriteString("_No items kept this run._\n\n")
			continue
		}
		for i, entry := range s.Entries {
			fmt.Fprintf(&b, "%d. [%s](%s) (%d) %s\n", i+1, entry.Item.Title, entry.Item.URL, entry.Verdict.RelevanceScore, Badges(entry))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeEntry(b *strings.Builder, n int, s Section, e Entry) {
	fmt.Fprintf(b, "## %d. %s\n\n", n, e.Item.Title)
	if e.Item.URL != "" {
		fmt.Fprintf(b, "- Link: %s\n", e.Item.URL)
	}
	fmt.Fprintf(b, "- Score: %d/%d\n", e.Verdict.RelevanceScore, s.ScoreScale)
	fmt.Fprintf(b, "- Engagement: %s\n", Badges(e))
	if len(e.Verdict.Tags) > 0 {
		fmt.Fprintf(b, "- Tags: %s\n", strings.Join(e.Verdict.Tags, ", "))
	}
	for _, field := range s.Fields {
		value, ok := e.Verdict.Details[field]
		if !ok {
			continue
		}
		text := strings.TrimSpace(fmt.Sprint(value))
		if text == "" {
			continue
		}
		fmt.Fprintf(b, "- %s: %s\n", Label(field), text)
	}
	b.WriteString("\n---\n\n")
}
