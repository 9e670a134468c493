// Package extract turns detected text lines into the two derived artifacts.
package extract

import "strings"

const (
	TextContentType = "text/plain; charset=utf-8"
	CSVContentType  = "text/csv; charset=utf-8"
)

// Artifacts holds both derived bodies for one job.
type Artifacts struct {
	Text []byte
	CSV  []byte
}

// Build derives both artifacts from the same line sequence.
func Build(lines []string) Artifacts {
	return Artifacts{Text: []byte(Text(lines)), CSV: []byte(CSV(lines))}
}

// Text joins lines with newlines. No trailing newline is added.
func Text(lines []string) string {
	return strings.Join(lines, "\n")
}

// CSV renders each line as a single, always-quoted field with embedded
// quotes doubled, one row per line, no header and no trailing newline.
func CSV(lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(line, `"`, `""`))
		b.WriteByte('"')
	}
	return b.String()
}
