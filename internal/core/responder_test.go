package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"mindmate.app/companion/internal/logger"
	"mindmate.app/companion/internal/store"
)

func TestRespondUsesTypedAnalysis(t *testing.T) {
	gen := &fakeGenerator{response: fakeReply{text: "💬 <b>How You're Feeling</b><br>ok"}}
	analysis := AnalysisResult{Analysis: &store.Analysis{EmotionalState: "sad", Themes: []string{"work"}, RiskLevel: 2}}

	res := NewResponder(gen, logger.Nop()).Respond(context.Background(), "rough day", analysis)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if !strings.HasPrefix(res.Text, "💬") {
		t.Fatalf("unexpected text %q", res.Text)
	}
	prompt := gen.lastPrompt()
	if !strings.Contains(prompt, "They are feeling: sad (themes: work); risk level 2/10") {
		t.Fatalf("prompt missing emotion line: %s", prompt)
	}
	if !strings.Contains(prompt, "<b>A Little Boost</b>") {
		t.Fatal("prompt missing response template")
	}
}

func TestRespondFallsBackToRawEmotion(t *testing.T) {
	gen := &fakeGenerator{response: fakeReply{text: "fine"}}
	NewResponder(gen, logger.Nop()).Respond(context.Background(), "hi", AnalysisResult{Raw: "vaguely tired"})
	if !strings.Contains(gen.lastPrompt(), "They are feeling: vaguely tired") {
		t.Fatalf("prompt should use raw analyzer text: %s", gen.lastPrompt())
	}
}

func TestRespondStripsCodeFence(t *testing.T) {
	gen := &fakeGenerator{response: fakeReply{text: "```html\n<b>Hi</b>\n```"}}
	res := NewResponder(gen, logger.Nop()).Respond(context.Background(), "hi", AnalysisResult{})
	if res.Text != "<b>Hi</b>" {
		t.Fatalf("unexpected text %q", res.Text)
	}
}

func TestRespondFailureReturnsApology(t *testing.T) {
	gen := &fakeGenerator{response: fakeReply{err: errors.New("backend <down>")}}
	res := NewResponder(gen, logger.Nop()).Respond(context.Background(), "hi", AnalysisResult{})
	if res.Err == nil || res.Err.Kind != ErrorKindUpstream || res.Err.Stage != StageRespond {
		t.Fatalf("expected upstream respond error, got %+v", res.Err)
	}
	want := "<b>⚠️ Sorry, something went wrong:</b> backend &lt;down&gt;"
	if res.Text != want {
		t.Fatalf("unexpected apology %q", res.Text)
	}
}
