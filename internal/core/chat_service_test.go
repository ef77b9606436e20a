package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mindmate.app/companion/internal/session"
	"mindmate.app/companion/internal/store"
)

func registerUser(t *testing.T, s store.Store, name string) *store.User {
	t.Helper()
	u := &store.User{UserID: GenerateUserID(name), Name: name, PasswordHash: "x"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser err: %v", err)
	}
	return u
}

func transcriptLen(t *testing.T, s store.Store, userID string) int {
	t.Helper()
	tr, err := s.GetTranscript(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetTranscript err: %v", err)
	}
	return len(tr.Sessions)
}

func TestTurnSuccess(t *testing.T) {
	s := newTestStore(t)
	user := registerUser(t, s, "asha")
	gen := &fakeGenerator{
		analysis: fakeReply{text: sadAnalysis},
		response: fakeReply{text: "💬 <b>How You're Feeling</b><br>It makes sense."},
	}
	svc := newTestChatService(t, s, gen)
	sess := session.NewManager(time.Hour).Create(user.UserID, user.Name)

	res, err := svc.Turn(context.Background(), sess, "I feel low")
	if err != nil {
		t.Fatalf("Turn err: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("unexpected turn error: %v", res.Err)
	}
	if res.Response != gen.response.text {
		t.Fatalf("unexpected response %q", res.Response)
	}
	if len(sess.History()) != 1 || transcriptLen(t, s, user.UserID) != 1 {
		t.Fatal("expected one record in session and transcript")
	}

	tr, _ := svc.History(context.Background(), user.UserID)
	rec := tr.Sessions[0]
	if rec.Input != "I feel low" || rec.Emotion != sadAnalysis || rec.Analysis == nil || rec.ErrorKind != "" || rec.Escalated {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Timestamp.IsZero() {
		t.Fatal("record must be timestamped")
	}
}

func TestTurnAppendsExactlyOneRecordOnFailures(t *testing.T) {
	cases := []struct {
		name     string
		gen      *fakeGenerator
		kind     ErrorKind
		stage    Stage
		failed   []string
		apology  bool
		analysis bool
	}{
		{
			name:    "both calls fail",
			gen:     &fakeGenerator{analysis: fakeReply{err: errors.New("down")}, response: fakeReply{err: ErrEmptyResponse}},
			kind:    ErrorKindUpstream,
			stage:   StageAnalyze,
			failed:  []string{"analyze:upstream", "respond:empty"},
			apology: true,
		},
		{
			name:   "analysis does not parse",
			gen:    &fakeGenerator{analysis: fakeReply{text: "meh"}, response: fakeReply{text: "ok"}},
			kind:   ErrorKindParse,
			stage:  StageAnalyze,
			failed: []string{"analyze:parse"},
		},
		{
			name:     "only response fails",
			gen:      &fakeGenerator{analysis: fakeReply{text: sadAnalysis}, response: fakeReply{err: ErrEmptyResponse}},
			kind:     ErrorKindEmpty,
			stage:    StageRespond,
			failed:   []string{"respond:empty"},
			apology:  true,
			analysis: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t)
			user := registerUser(t, s, "asha")
			svc := newTestChatService(t, s, tc.gen)
			sess := session.NewManager(time.Hour).Create(user.UserID, user.Name)

			res, err := svc.Turn(context.Background(), sess, "hello")
			if err != nil {
				t.Fatalf("Turn err: %v", err)
			}
			if res.Err == nil || res.Err.Kind != tc.kind || res.Err.Stage != tc.stage {
				t.Fatalf("expected %s/%s error, got %+v", tc.stage, tc.kind, res.Err)
			}
			if tc.apology && !strings.HasPrefix(res.Response, "<b>⚠️ Sorry, something went wrong:</b>") {
				t.Fatalf("expected apology, got %q", res.Response)
			}
			if (res.Analysis.Analysis != nil) != tc.analysis {
				t.Fatalf("unexpected analysis presence: %+v", res.Analysis)
			}
			if n := transcriptLen(t, s, user.UserID); n != 1 {
				t.Fatalf("expected exactly one durable record, got %d", n)
			}
			if res.Interaction.ErrorKind != string(tc.kind) {
				t.Fatalf("record error kind %q, want %q", res.Interaction.ErrorKind, tc.kind)
			}
			if len(res.Errors) != len(tc.failed) {
				t.Fatalf("expected %d stage errors, got %+v", len(tc.failed), res.Errors)
			}
			tr, err := s.GetTranscript(context.Background(), user.UserID)
			if err != nil {
				t.Fatalf("GetTranscript err: %v", err)
			}
			if got := strings.Join(tr.Sessions[0].FailedStages, ","); got != strings.Join(tc.failed, ",") {
				t.Fatalf("persisted failed stages %q, want %q", got, tc.failed)
			}
		})
	}
}

func TestTurnEscalatesHighRisk(t *testing.T) {
	s := newTestStore(t)
	user := registerUser(t, s, "asha")
	gen := &fakeGenerator{
		analysis: fakeReply{text: `{"emotional_state":"hopeless","themes":["loss"],"risk_level":9}`},
		response: fakeReply{text: "reply"},
	}
	svc := newTestChatService(t, s, gen)
	sess := session.NewManager(time.Hour).Create(user.UserID, user.Name)

	res, err := svc.Turn(context.Background(), sess, "I can't go on")
	if err != nil {
		t.Fatalf("Turn err: %v", err)
	}
	if !res.Interaction.Escalated {
		t.Fatal("expected escalation")
	}
	if res.Response != "reply"+SafetyNote {
		t.Fatalf("expected safety note, got %q", res.Response)
	}
	tr, _ := s.GetTranscript(context.Background(), user.UserID)
	if !tr.Sessions[0].Escalated {
		t.Fatal("escalation must be persisted")
	}
}

func TestTurnBelowThresholdNotEscalated(t *testing.T) {
	s := newTestStore(t)
	user := registerUser(t, s, "asha")
	gen := &fakeGenerator{analysis: fakeReply{text: sadAnalysis}, response: fakeReply{text: "reply"}}
	res, err := newTestChatService(t, s, gen).Turn(context.Background(), session.NewManager(time.Hour).Create(user.UserID, user.Name), "meh")
	if err != nil {
		t.Fatalf("Turn err: %v", err)
	}
	if res.Interaction.Escalated || res.Response != "reply" {
		t.Fatalf("unexpected escalation: %+v", res.Interaction)
	}
}

type failingAppendStore struct {
	store.Store
}

func (failingAppendStore) AppendInteraction(context.Context, string, store.Interaction) error {
	return errors.New("disk full")
}

func TestTurnDurableFailureKeepsEphemeralRecord(t *testing.T) {
	base := newTestStore(t)
	user := registerUser(t, base, "asha")
	gen := &fakeGenerator{analysis: fakeReply{text: sadAnalysis}, response: fakeReply{text: "reply"}}
	svc := newTestChatService(t, failingAppendStore{Store: base}, gen)
	sess := session.NewManager(time.Hour).Create(user.UserID, user.Name)

	res, err := svc.Turn(context.Background(), sess, "hello")
	if err == nil {
		t.Fatal("expected persistence error")
	}
	if res == nil || res.Response != "reply" {
		t.Fatalf("result must still carry the reply: %+v", res)
	}
	if len(sess.History()) != 1 {
		t.Fatal("session must hold the record even when the durable append fails")
	}
	if transcriptLen(t, base, user.UserID) != 0 {
		t.Fatal("durable transcript should be unchanged")
	}
}
