// Package parser turns uploaded document files into plain text for
// ingestion. PDF and HTML are converted; everything else is treated as
// already-plain text.
package parser

import (
	"bytes"
	"path/filepath"
	"strings"
)

// ExtractText converts the uploaded file content to plain text, dispatching
// on the file extension. Unknown extensions are sniffed for a PDF signature
// before falling back to raw text.
func ExtractText(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return fromPDF(data)
	case ".html", ".htm":
		return fromHTML(data)
	case ".txt", ".md", "":
		return normalizeText(string(data)), nil
	}
	if bytes.HasPrefix(data, []byte("%PDF")) {
		return fromPDF(data)
	}
	return normalizeText(string(data)), nil
}

// normalizeText unifies line endings and trims trailing whitespace per line.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
