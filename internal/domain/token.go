package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ServiceRole identifica al participante de una conversacion que porta un service token.
type ServiceRole string

const (
	ServiceRoleUser      ServiceRole = "user"
	ServiceRoleAgent     ServiceRole = "agent"
	ServiceRoleAssistant ServiceRole = "assistant"
)

func (r ServiceRole) Valid() bool {
	switch r {
	case ServiceRoleUser, ServiceRoleAgent, ServiceRoleAssistant:
		return true
	}
	return false
}

// CanTakeOver indica si el rol autoriza tomar el control de la conversacion.
// Un token "user" solo sirve para el canal propio de esa conversacion.
func (r ServiceRole) CanTakeOver() bool {
	switch r {
	case ServiceRoleAgent, ServiceRoleAssistant:
		return true
	}
	return false
}

func ParseServiceRole(s string) (ServiceRole, error) {
	r := ServiceRole(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown service role %q", s)
	}
	return r, nil
}

// ServiceScope es el alcance que firma un service token.
type ServiceScope struct {
	OrganizationID string      `json:"organization_id"`
	BotID          string      `json:"bot_id"`
	ConversationID string      `json:"conversation_id"`
	Role           ServiceRole `json:"type"`
}

func (s ServiceScope) Validate() error {
	if strings.TrimSpace(s.OrganizationID) == "" {
		return errors.New("organization id is required")
	}
	if strings.TrimSpace(s.BotID) == "" {
		return errors.New("bot id is required")
	}
	if strings.TrimSpace(s.ConversationID) == "" {
		return errors.New("conversation id is required")
	}
	if !s.Role.Valid() {
		return fmt.Errorf("unknown service role %q", s.Role)
	}
	return nil
}
