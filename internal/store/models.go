package store

import "time"

type User struct {
	UserID       string    `json:"user_id" bson:"user_id"`
	Name         string    `json:"name" bson:"name"`
	NameKey      string    `json:"-" bson:"name_key"`
	PasswordHash string    `json:"-" bson:"password"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}

// Analysis is the structured emotion reading attached to an interaction.
type Analysis struct {
	EmotionalState      string   `json:"emotional_state" bson:"emotional_state"`
	Themes              []string `json:"themes" bson:"themes"`
	RiskLevel           float64  `json:"risk_level" bson:"risk_level"`
	RecommendedApproach string   `json:"recommended_approach" bson:"recommended_approach"`
	ProgressIndicators  []string `json:"progress_indicators" bson:"progress_indicators"`
}

type Interaction struct {
	Input     string    `json:"input" bson:"input"`
	Emotion   string    `json:"emotion" bson:"emotion"` // raw analyzer output
	Analysis  *Analysis `json:"analysis,omitempty" bson:"analysis,omitempty"`
	Response  string    `json:"response" bson:"response"`
	ErrorKind string    `json:"error_kind,omitempty" bson:"error_kind,omitempty"` // kind of the first failed stage
	// FailedStages lists every failed stage as "stage:kind", in order.
	FailedStages []string  `json:"failed_stages,omitempty" bson:"failed_stages,omitempty"`
	Escalated    bool      `json:"escalated,omitempty" bson:"escalated,omitempty"`
	Timestamp    time.Time `json:"timestamp" bson:"timestamp"`
}

type Transcript struct {
	UserID   string        `json:"user_id" bson:"user_id"`
	Sessions []Interaction `json:"sessions" bson:"sessions"`
}
