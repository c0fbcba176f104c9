package render

import (
	"fmt"
	"strings"

	"github.com/kir-gadjello/oai/internal/conversation"
)

// Transcript renders msgs one block per message, headed by its role. With
// rich set each block is a bordered markdown panel.
func Transcript(msgs []conversation.Message, rich bool, width int) string {
	var b strings.Builder
	for i, msg := range msgs {
		content := strings.TrimRight(msg.Content, " \t\r\n")
		role := strings.ToUpper(string(msg.Role))

		if !rich {
			fmt.Fprintf(&b, "### %s:\n%s\n\n", role, content)
			continue
		}

		color := colorPrompt
		if msg.Role == conversation.RoleAssistant {
			color = colorResponse
		}
		b.WriteString(Panel(fmt.Sprintf("%s #%d", role, i+1), "", Markdown(content, width-4), color, width))
		b.WriteString("\n")
	}
	return b.String()
}
