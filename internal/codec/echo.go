package codec

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// EchoGenerator answers locally without a model. Replies are deterministic in the request.
type EchoGenerator struct{}

var _ Generator = EchoGenerator{}

// Generate returns a short reply naming the voice and restating the prompt.
func (EchoGenerator) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if err := ctx.Err(); err != nil {
		return GenerateResult{}, err
	}
	prompt := strings.Join(strings.Fields(req.Prompt), " ")
	if utf8.RuneCountInString(prompt) > 80 {
		prompt = string([]rune(prompt)[:80]) + "…"
	}
	voice := req.Voice
	if voice == "" {
		voice = "ISKRA"
	}
	text := fmt.Sprintf("[%s] You said: %q. Let's take the next step together.", voice, prompt)
	return GenerateResult{Text: text}, nil
}
