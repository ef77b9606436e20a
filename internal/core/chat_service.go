package core

import (
	"context"
	"fmt"
	"time"

	"mindmate.app/companion/internal/logger"
	"mindmate.app/companion/internal/session"
	"mindmate.app/companion/internal/store"
)

// SafetyNote is appended to replies for messages whose analysed risk level
// reaches the escalation threshold.
const SafetyNote = "<br><br>🆘 <b>You don't have to go through this alone.</b><br>" +
	"If you are thinking about harming yourself or feel unsafe, please contact your local emergency number " +
	"or a crisis line right now. Reaching out to someone you trust can also help."

type TurnResult struct {
	Response    string
	Analysis    AnalysisResult
	Interaction store.Interaction
	// Err is the first AI stage failure, if any. The turn itself still
	// produced a response and a record.
	Err *TurnError
	// Errors holds every stage failure in stage order.
	Errors []*TurnError
}

type ChatService struct {
	store         store.Store
	analyzer      *Analyzer
	responder     *Responder
	log           *logger.Logger
	riskThreshold float64
	now           func() time.Time
}

func NewChatService(s store.Store, analyzer *Analyzer, responder *Responder, riskThreshold int, log *logger.Logger) *ChatService {
	return &ChatService{
		store:         s,
		analyzer:      analyzer,
		responder:     responder,
		log:           log,
		riskThreshold: float64(riskThreshold),
		now:           time.Now,
	}
}

// Turn runs one chat exchange: analyze, respond, then append the record to
// the live session and to the durable transcript. AI failures are reported
// through TurnResult.Err; the returned error is only set when the durable
// append failed, in which case the session already holds the record.
func (s *ChatService) Turn(ctx context.Context, sess *session.Session, message string) (*TurnResult, error) {
	log := s.log.With("user_id", sess.UserID, "session_id", sess.ID)
	analysis := s.analyzer.Analyze(ctx, message)
	reply := s.responder.Respond(ctx, message, analysis)

	rec := store.Interaction{
		Input:     message,
		Emotion:   analysis.Raw,
		Analysis:  analysis.Analysis,
		Response:  reply.Text,
		Timestamp: s.now().UTC(),
	}

	result := &TurnResult{Analysis: analysis}
	for _, stageErr := range []*TurnError{analysis.Err, reply.Err} {
		if stageErr == nil {
			continue
		}
		result.Errors = append(result.Errors, stageErr)
		rec.FailedStages = append(rec.FailedStages, string(stageErr.Stage)+":"+string(stageErr.Kind))
	}
	if len(result.Errors) > 0 {
		result.Err = result.Errors[0]
		rec.ErrorKind = string(result.Err.Kind)
		log.Warn("Chat turn degraded", "failed_stages", rec.FailedStages)
	}

	if s.shouldEscalate(analysis) {
		rec.Escalated = true
		rec.Response += SafetyNote
		log.Warn("High risk message, safety note added",
			"risk_level", analysis.Analysis.RiskLevel,
			"emotional_state", analysis.Analysis.EmotionalState,
		)
	}

	result.Response = rec.Response
	result.Interaction = rec

	sess.Append(rec)
	if err := s.store.AppendInteraction(ctx, sess.UserID, rec); err != nil {
		return result, fmt.Errorf("failed to persist interaction for %s: %w", sess.UserID, err)
	}
	return result, nil
}

func (s *ChatService) shouldEscalate(a AnalysisResult) bool {
	return a.Analysis != nil && s.riskThreshold > 0 && a.Analysis.RiskLevel >= s.riskThreshold
}

// History returns the durable transcript for userID.
func (s *ChatService) History(ctx context.Context, userID string) (*store.Transcript, error) {
	return s.store.GetTranscript(ctx, userID)
}
