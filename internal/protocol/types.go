package protocol

import (
	"encoding/json"
	"strings"

	"github.com/HsiangNianian/AMonItor/neurosdk/internal/schema"
)

const (
	CommandStartup           = "startup"
	CommandContext           = "context"
	CommandRegisterActions   = "actions/register"
	CommandUnregisterActions = "actions/unregister"
	CommandForceActions      = "actions/force"
	CommandAction            = "action"
	CommandActionResult      = "action/result"
)

// Envelope is one text frame on the wire. Game is stamped by the session
// right before the frame is written and ignored on receive.
type Envelope struct {
	Command string          `json:"command"`
	Game    string          `json:"game,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type ContextPayload struct {
	Message string `json:"message"`
	Silent  bool   `json:"silent"`
}

type ActionInfo struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Schema      *schema.Node `json:"schema,omitempty"`
}

type RegisterActionsPayload struct {
	Actions []ActionInfo `json:"actions"`
}

type UnregisterActionsPayload struct {
	ActionNames []string `json:"action_names"`
}

type ForceActionsPayload struct {
	State            *string  `json:"state,omitempty"`
	Query            string   `json:"query"`
	EphemeralContext bool     `json:"ephemeral_context"`
	ActionNames      []string `json:"action_names"`
}

// ActionPayload is an execution request from the remote peer. Data holds
// the action's arguments as a JSON-encoded string.
type ActionPayload struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Arguments returns the JSON document carried in Data. The peer sends it
// as a string; a bare JSON value is accepted as is. ok is false when no
// data was sent.
func (p ActionPayload) Arguments() (args []byte, ok bool, err error) {
	raw := strings.TrimSpace(string(p.Data))
	if raw == "" || raw == "null" {
		return nil, false, nil
	}
	if raw[0] != '"' {
		return []byte(raw), true, nil
	}
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, true, err
	}
	return []byte(s), true, nil
}

type ActionResultPayload struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func Startup() Envelope {
	return Envelope{Command: CommandStartup}
}

func Context(message string, silent bool) Envelope {
	return newEnvelope(CommandContext, ContextPayload{Message: message, Silent: silent})
}

func RegisterActions(actions []ActionInfo) Envelope {
	return newEnvelope(CommandRegisterActions, RegisterActionsPayload{Actions: actions})
}

func UnregisterActions(names []string) Envelope {
	return newEnvelope(CommandUnregisterActions, UnregisterActionsPayload{ActionNames: names})
}

func ForceActions(state *string, query string, ephemeral bool, names []string) Envelope {
	return newEnvelope(CommandForceActions, ForceActionsPayload{
		State:            state,
		Query:            query,
		EphemeralContext: ephemeral,
		ActionNames:      names,
	})
}

func ActionResult(id string, success bool, msg string) Envelope {
	return newEnvelope(CommandActionResult, ActionResultPayload{ID: id, Success: success, Message: msg})
}

func newEnvelope(command string, payload any) Envelope {
	return Envelope{Command: command, Data: mustJSON(payload)}
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
