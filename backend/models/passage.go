package models

import "gorm.io/gorm"

// Passage is a source text for daily exercises. AdvancedText is shown to
// advanced readers as-is; ReferenceText is the pre-written simplified pairing
// used when the remote simplifier is unavailable.
type Passage struct {
	gorm.Model
	AdvancedText  string
	ReferenceText string
	WordCount     int
	Source        string
	Questions     string // JSON array of PassageQuestion
}

type PassageQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correctOption"`
}
