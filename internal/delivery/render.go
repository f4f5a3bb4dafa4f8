package delivery

import (
	"fmt"
	"strings"

	"newsdigest/internal/digest"
)

var markdownV2Escaper = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`, "=", `\=`,
	"|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

var markdownV2URLEscaper = strings.NewReplacer(`\`, `\\`, ")", `\)`)

// EscapeMarkdownV2 escapes every character Telegram reserves in MarkdownV2.
func EscapeMarkdownV2(text string) string {
	return markdownV2Escaper.Replace(text)
}

// RenderTelegram renders the combined MarkdownV2 message for all sections.
func RenderTelegram(d digest.Digest) string {
	parts := []string{
		"📬 *AI Digest*\n📅 " + EscapeMarkdownV2(d.Date()),
	}
	for _, section := range d.Sections {
		parts = append(parts, renderSection(section))
	}
	parts = append(parts, EscapeMarkdownV2("Built locally · Have a good day ✨"))
	return strings.Join(parts, "\n\n")
}

func renderSection(s digest.Section) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", EscapeMarkdownV2(strings.ToUpper(s.SectionTitle())))
	if len(s.Entries) == 0 {
		b.WriteString("_" + EscapeMarkdownV2("Nothing made the cut this run.") + "_")
		return b.String()
	}
	for i, entry := range s.Entries {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "*%d\\.* %s\n", i+1, link(entry.Item.Title, entry.Item.URL))
		line := digest.Badges(entry)
		if len(entry.Verdict.Tags) > 0 {
			line += " · " + strings.Join(entry.Verdict.Tags, ", ")
		}
		b.WriteString(EscapeMarkdownV2(line) + "\n")
		if rationale := truncate(entry.Verdict.Rationale, 180); rationale != "" {
			b.WriteString(EscapeMarkdownV2(rationale) + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func link(title, url string) string {
	if strings.TrimSpace(url) == "" {
		return EscapeMarkdownV2(title)
	}
	return fmt.Sprintf("[%s](%s)", EscapeMarkdownV2(title), markdownV2URLEscaper.Replace(url))
}

func truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}
