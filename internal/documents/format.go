package documents

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// sectionTitle maps a section kind to its heading.
func sectionTitle(kind SectionKind) string {
	switch kind {
	case SectionSession:
		return "Session Note"
	case SectionAssessment:
		return "Medical Assessment"
	case SectionDemographics:
		return "Demographics Update"
	default:
		return "Record"
	}
}

// preferredFieldOrder pins well-known fields to the top of their section.
var preferredFieldOrder = []string{
	"sessionNumber",
	"type",
	"status",
	"dateOfSession",
	"duration",
	"location",
	"content",
	"score",
	"diagnosis",
}

// RenderSection produces the plain-text section appended to the client
// document: a title line, the author and timestamp, then the rendered fields.
// Sections are purely additive; appending the same payload twice yields two
// sections.
func RenderSection(req AppendRequest) string {
	at := req.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString("--------------------------------------------------\n")
	fmt.Fprintf(&b, "%s - %s\n", sectionTitle(req.Kind), req.ClientName)
	fmt.Fprintf(&b, "Recorded by %s on %s\n", orUnknown(req.UserName), at.Format("2006-01-02 15:04 MST"))
	b.WriteString("\n")

	for _, key := range orderedKeys(req.Data) {
		val := req.Data[key]
		if val == nil {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", labelFor(key), renderValue(val))
	}
	b.WriteString("\n")
	return b.String()
}

func orderedKeys(data map[string]any) []string {
	seen := make(map[string]bool, len(data))
	var keys []string
	for _, k := range preferredFieldOrder {
		if _, ok := data[k]; ok {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range data {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// labelFor turns a camelCase field name into a human heading.
func labelFor(key string) string {
	var b strings.Builder
	for i, r := range key {
		if i == 0 {
			b.WriteRune(toUpper(r))
			continue
		}
		if r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toUpper(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - 32
	}
	return r
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, renderValue(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		parts := make([]string, 0, len(val))
		for _, k := range orderedKeys(val) {
			parts = append(parts, fmt.Sprintf("%s %s", labelFor(k), renderValue(val[k])))
		}
		return strings.Join(parts, "; ")
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
