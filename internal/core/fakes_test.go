package core

import (
	"context"
	"sync"
	"testing"

	"mindmate.app/companion/internal/logger"
	"mindmate.app/companion/internal/store"
)

type fakeReply struct {
	text string
	err  error
}

// fakeGenerator answers JSON requests as the analyzer and everything else
// as the responder.
type fakeGenerator struct {
	mu       sync.Mutex
	analysis fakeReply
	response fakeReply
	requests []GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req GenerateRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if req.JSON {
		return f.analysis.text, f.analysis.err
	}
	return f.response.text, f.response.err
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ""
	}
	return f.requests[len(f.requests)-1].Prompt
}

const sadAnalysis = `{"emotional_state":"sad","themes":["work","sleep"],"risk_level":3,"recommended_approach":"validate","progress_indicators":["reaching out"]}`

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore err: %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func newTestChatService(t *testing.T, s store.Store, gen TextGenerator) *ChatService {
	t.Helper()
	log := logger.Nop()
	return NewChatService(s, NewAnalyzer(gen, log), NewResponder(gen, log), 7, log)
}
