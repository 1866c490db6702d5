package translate

import (
	"strconv"
	"strings"

	"github.com/spinalsurgery-research/acquisition-service/internal/domain"
)

// RenderSummary produces the human-readable summary text for one
// translated paper: translated title and abstract first, bibliographic
// details in the source language, then translated sections.
func RenderSummary(record *domain.PaperRecord, lang string) string {
	tr, ok := record.Translation[lang]
	if !ok {
		return ""
	}

	var sb strings.Builder
	writeField := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		sb.WriteString(label)
		sb.WriteString("\n")
		sb.WriteString(strings.TrimSpace(value))
		sb.WriteString("\n\n")
	}

	writeField("# "+tr.Title, record.Title)
	if len(record.Authors) > 0 {
		writeField("Authors", strings.Join(record.Authors, ", "))
	}
	if record.Journal != "" || record.Year != 0 {
		parts := []string{}
		if record.Journal != "" {
			parts = append(parts, record.Journal)
		}
		if record.Year != 0 {
			parts = append(parts, strconv.Itoa(record.Year))
		}
		writeField("Published", strings.Join(parts, ", "))
	}
	writeField("Abstract ("+lang+")", tr.Abstract)
	writeField("Sections ("+lang+")", tr.Sections)

	return strings.TrimRight(sb.String(), "\n") + "\n"
}
