package extract

import (
	"regexp"
	"strings"

	"github.com/NissanArmada/Produck/pkg/form"
)

// Command is a one-shot fill instruction embedded in agent text. It is a
// separate channel from the guided-fill cursor; the two operate on the same
// document independently.
type Command struct {
	Field form.FieldID
	Value string
}

// Grammar: a field/value pair in the literal single-quoted bracket form
// {'field': 'X', 'value': 'Y'}.
var commandRe = regexp.MustCompile(`\{'field':\s*'([^']+)',\s*'value':\s*'([^']+)'\}`)

// Parse scans agent text for an embedded command. When found it returns the
// command and the text with the command stripped and trimmed; otherwise the
// text is returned unchanged.
func Parse(text string) (Command, string, bool) {
	m := commandRe.FindStringSubmatchIndex(text)
	if m == nil {
		return Command{}, text, false
	}
	cmd := Command{
		Field: form.FieldID(text[m[2]:m[3]]),
		Value: text[m[4]:m[5]],
	}
	cleaned := strings.TrimSpace(text[:m[0]] + text[m[1]:])
	return cmd, cleaned, true
}
