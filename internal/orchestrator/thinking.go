package orchestrator

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tejas96/sdlc-agents-sub000/internal/stream"
)

var thinkingBlock = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)

// ExtractThinking splits the first <thinking>...</thinking> block out of text.
//
// When a block is found it returns the text with exactly that region removed
// and a Thinking event holding the trimmed body and a fresh signature. When
// none is found it returns ("", nil) and the caller emits the original text.
// Later blocks in the same text are left in place.
func ExtractThinking(text string) (string, *stream.Thinking) {
	loc := thinkingBlock.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", nil
	}
	body := strings.TrimSpace(text[loc[2]:loc[3]])
	remaining := text[:loc[0]] + text[loc[1]:]
	return remaining, &stream.Thinking{Text: body, Signature: uuid.NewString()}
}
