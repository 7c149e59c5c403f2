package domain

import (
	"fmt"
	"time"
)

type Bot struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConversationStatus indica quien atiende la conversacion en cada momento.
type ConversationStatus string

const (
	ConversationStatusBot    ConversationStatus = "bot"
	ConversationStatusHuman  ConversationStatus = "human"
	ConversationStatusClosed ConversationStatus = "closed"
)

func (s ConversationStatus) Valid() bool {
	switch s {
	case ConversationStatusBot, ConversationStatusHuman, ConversationStatusClosed:
		return true
	}
	return false
}

func ParseConversationStatus(s string) (ConversationStatus, error) {
	st := ConversationStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown conversation status %q", s)
	}
	return st, nil
}

type Conversation struct {
	ID             string             `json:"id"`
	BotID          string             `json:"bot_id"`
	OrganizationID string             `json:"organization_id"`
	Status         ConversationStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
}
