package messaging

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Composer produces the text sent for a template.
type Composer interface {
	Compose(ctx context.Context, tmpl model.Template, lead model.Lead) (string, error)
}

// StaticComposer sends template content verbatim.
type StaticComposer struct{}

// Compose implements Composer.
func (StaticComposer) Compose(_ context.Context, tmpl model.Template, _ model.Lead) (string, error) {
	return tmpl.Content, nil
}

const personaSystemPrompt = `You rewrite short outreach messages sent to sellers on a classifieds marketplace.
Keep the meaning, the language and roughly the length of the original message.
Return only the rewritten message text, without quotes or commentary.`

// PersonaComposer rewrites template content in a configured voice. When
// inference fails the template is sent unchanged.
type PersonaComposer struct {
	Inference *Inference
	Persona   string
}

// Compose implements Composer.
func (c PersonaComposer) Compose(ctx context.Context, tmpl model.Template, lead model.Lead) (string, error) {
	system := personaSystemPrompt
	if c.Persona != "" {
		system += "\n\nVoice and persona:\n" + c.Persona
	}
	prompt := fmt.Sprintf("Listing title: %s\nMessage step: %d\n\nOriginal message:\n%s", lead.Title, tmpl.Order, tmpl.Content)

	text, err := c.Inference.Complete(ctx, "compose", system, prompt)
	if err != nil {
		zap.L().Warn("messaging: compose failed, using template",
			zap.Int64("lead_id", lead.ID),
			zap.Int("order", tmpl.Order),
			zap.Error(err),
		)
		return tmpl.Content, nil
	}
	return text, nil
}
