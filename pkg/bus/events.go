package bus

import "time"

// AgentEvent is published on SubjectAgentCreated and SubjectAgentUpdated. Record is the flat
// field snapshot after the write; Previous is set on updates only.
type AgentEvent struct {
	AgentID   string         `json:"agent_id"`
	UserID    string         `json:"user_id"`
	AgentName string         `json:"agent_name"`
	Record    map[string]any `json:"record"`
	Previous  map[string]any `json:"previous,omitempty"`
	At        time.Time      `json:"at"`
}

// SuccessNotice is published on SubjectSuccessNotices once an agent is created.
type SuccessNotice struct {
	AgentID   string    `json:"agent_id"`
	AgentName string    `json:"agent_name"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}
