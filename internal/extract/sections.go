package extract

import (
	"regexp"
	"strings"
)

// Canonical section names in reading order.
var sectionOrder = []string{
	"abstract",
	"introduction",
	"methods",
	"results",
	"discussion",
	"conclusion",
}

// headingAliases maps heading variants seen in journal PDFs to the
// canonical section name.
var headingAliases = map[string]string{
	"abstract":              "abstract",
	"summary":               "abstract",
	"introduction":          "introduction",
	"background":            "introduction",
	"methods":               "methods",
	"materials and methods": "methods",
	"patients and methods":  "methods",
	"methodology":           "methods",
	"results":               "results",
	"findings":              "results",
	"discussion":            "discussion",
	"conclusion":            "conclusion",
	"conclusions":           "conclusion",
}

// headingPattern matches a heading on its own line: optional numeric
// prefix ("2.", "III."), the heading words, optional trailing colon.
var headingPattern = regexp.MustCompile(`(?i)^\s*(?:[0-9]+\.?|[ivx]+\.)?\s*([a-z][a-z &]{2,40}?)\s*:?\s*$`)

// maxSectionChars caps each stored section so metadata stays readable.
const maxSectionChars = 4000

// FindSections scans extracted text for canonical section headings and
// returns the text between each heading and the next one. Headings are
// matched case-insensitively on their own line. Sections not found are
// simply absent from the result.
func FindSections(text string) map[string]string {
	lines := strings.Split(text, "\n")

	type mark struct {
		name string
		line int
	}
	var marks []mark
	seen := make(map[string]bool)

	for i, line := range lines {
		m := headingPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		canonical, ok := headingAliases[strings.ToLower(strings.TrimSpace(m[1]))]
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		marks = append(marks, mark{name: canonical, line: i})
	}

	if len(marks) == 0 {
		return nil
	}

	sections := make(map[string]string, len(marks))
	for i, mk := range marks {
		end := len(lines)
		if i+1 < len(marks) {
			end = marks[i+1].line
		}
		body := strings.TrimSpace(strings.Join(lines[mk.line+1:end], "\n"))
		if body == "" {
			continue
		}
		if len(body) > maxSectionChars {
			body = body[:maxSectionChars]
		}
		sections[mk.name] = body
	}
	if len(sections) == 0 {
		return nil
	}
	return sections
}

// maxDigestChars caps each section's contribution to the translation
// digest, keeping translation input proportional to the section count.
const maxDigestChars = 1000

// SectionDigest joins found sections in canonical order into a single
// string, used as translation input when full text is available. Each
// section contributes at most maxDigestChars characters.
func SectionDigest(sections map[string]string) string {
	if len(sections) == 0 {
		return ""
	}
	var parts []string
	for _, name := range sectionOrder {
		body, ok := sections[name]
		if !ok {
			continue
		}
		if len(body) > maxDigestChars {
			body = body[:maxDigestChars]
		}
		parts = append(parts, strings.ToUpper(name[:1])+name[1:]+"\n"+body)
	}
	return strings.Join(parts, "\n\n")
}
