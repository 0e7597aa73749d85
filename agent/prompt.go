package agent

import (
	"strings"

	"go.aimuz.me/voicechat/internal/types"
)

// SelectedCodePrompt appends code to prompt as a fenced block labelled with
// the file it came from.
func SelectedCodePrompt(prompt, fileName, code string) string {
	var b strings.Builder
	b.WriteString(prompt)
	writeFence(&b, fileName, code)
	return b.String()
}

// OpenFilesPrompt appends one fenced block per file to prompt.
func OpenFilesPrompt(prompt string, files []types.File) string {
	var b strings.Builder
	b.WriteString(prompt)
	for _, f := range files {
		writeFence(&b, f.Path, f.Content)
	}
	return b.String()
}

func writeFence(b *strings.Builder, label, body string) {
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("```")
	b.WriteString(label)
	b.WriteByte('\n')
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n```")
}
