package core

import (
	"context"
	"fmt"
	"html"
	"strings"

	"mindmate.app/companion/internal/logger"
)

const (
	responderSystemInstruction = "You are a licensed virtual therapist. You are warm, empathetic and concise."

	responderPromptTemplate = `The user says: %q
They are feeling: %s

Your job is to:
1. Validate their emotions using a warm and empathetic tone. (💬)
2. Offer a short coping strategy or mindful suggestion. (🛠️)
3. End with a short motivational quote or uplifting message. (🌟)

➤ Respond using HTML tags, not Markdown.
➤ Use <b> for bold headings and <br> for line breaks.
➤ Include emojis naturally.
➤ Keep response in 3 short sections.

Format exactly like this:

💬 <b>How You're Feeling</b><br>
(Short paragraph validating emotion)<br><br>

🛠️ <b>What You Can Try</b><br>
(Short paragraph with a coping strategy)<br><br>

🌟 <b>A Little Boost</b><br>
(Short motivational quote or message)`

	apologyPrefix = "<b>⚠️ Sorry, something went wrong:</b> "
)

type ResponseResult struct {
	Text string
	Err  *TurnError
}

type Responder struct {
	gen TextGenerator
	log *logger.Logger
}

func NewResponder(gen TextGenerator, log *logger.Logger) *Responder {
	return &Responder{gen: gen, log: log}
}

// Respond never returns an empty Text: on failure it is an apology that
// embeds the error message.
func (r *Responder) Respond(ctx context.Context, message string, analysis AnalysisResult) ResponseResult {
	temp := float32(0.7)
	text, err := r.gen.Generate(ctx, GenerateRequest{
		SystemInstruction: responderSystemInstruction,
		Prompt:            fmt.Sprintf(responderPromptTemplate, message, describeEmotion(analysis)),
		Temperature:       &temp,
	})
	if err != nil {
		r.log.Warn("Response generation failed", "error", err)
		return ResponseResult{
			Text: Apology(err),
			Err:  newTurnError(StageRespond, kindOf(err), err),
		}
	}
	return ResponseResult{Text: stripCodeFence(text)}
}

// Apology is the chat text shown when a reply could not be generated.
func Apology(err error) string {
	return apologyPrefix + html.EscapeString(err.Error())
}

func describeEmotion(a AnalysisResult) string {
	if a.Analysis == nil {
		if a.Raw == "" {
			return "unknown"
		}
		return a.Raw
	}
	var b strings.Builder
	b.WriteString(a.Analysis.EmotionalState)
	if len(a.Analysis.Themes) > 0 {
		fmt.Fprintf(&b, " (themes: %s)", strings.Join(a.Analysis.Themes, ", "))
	}
	fmt.Fprintf(&b, "; risk level %g/10", a.Analysis.RiskLevel)
	if a.Analysis.RecommendedApproach != "" {
		fmt.Fprintf(&b, "; suggested approach: %s", a.Analysis.RecommendedApproach)
	}
	return b.String()
}

// stripCodeFence removes a ```html ... ``` wrapper some models add anyway.
func stripCodeFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.Index(t, "\n"); nl >= 0 {
		t = t[nl+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
