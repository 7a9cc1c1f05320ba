package assistant

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fieldworks/teamchat/internal/chat"
	"github.com/fieldworks/teamchat/internal/models"
)

// Draft transform kinds.
const (
	DraftReply     = "reply"
	DraftSummarize = "summarize"
	DraftRewrite   = "rewrite"
)

var draftPrompts = map[string]string{
	DraftReply:     "Write a short, friendly reply to the following message. Keep the sender's language.",
	DraftSummarize: "Summarize the following text in a few sentences. Keep the original language.",
	DraftRewrite:   "Rewrite the following text so it is clear and professional. Keep the original language.",
}

// GenerateDraft runs the one-shot draft transform. Unlike the streaming
// turn, the whole reply is produced in a single call; nothing here touches
// the turn registry or the activity feed.
func (b *Bridge) GenerateDraft(ctx context.Context, kind, text string) (string, error) {
	prompt, ok := draftPrompts[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown draft kind %q", chat.ErrBadRequest, kind)
	}
	if n := utf8.RuneCountInString(text); n < models.MinContentLen || n > models.MaxContentLen {
		return "", fmt.Errorf("%w: text must be 1-%d characters", chat.ErrBadRequest, models.MaxContentLen)
	}

	out, err := b.gen.Complete(ctx, prompt, text)
	if err != nil {
		return "", fmt.Errorf("%w: %v", chat.ErrUpstream, err)
	}
	return strings.TrimSpace(out), nil
}
