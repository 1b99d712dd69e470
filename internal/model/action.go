package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action identifies a remote action understood by the action endpoint
type Action string

const (
	ActionOpenForm   Action = "openForm"
	ActionCloseForm  Action = "closeForm"
	ActionUpdate     Action = "update"
	ActionUpdateOpen Action = "update_open"
	ActionDelete     Action = "delete"
	ActionBackup     Action = "backup"
	ActionResults1   Action = "results1"
	ActionResults3   Action = "results3"
	ActionStats      Action = "stats"
)

type actionInfo struct {
	label   string
	success string
}

var actions = map[Action]actionInfo{
	ActionOpenForm:   {"Open form", "Form opened successfully"},
	ActionCloseForm:  {"Close form", "Form closed successfully"},
	ActionUpdate:     {"Update question", "Question updated successfully"},
	ActionUpdateOpen: {"Update and open", "Updated and opened successfully"},
	ActionDelete:     {"Delete responses", "Responses deleted successfully"},
	ActionBackup:     {"Backup", "Backup completed successfully"},
	ActionResults1:   {"Last question results", "Fetched results of the last question"},
	ActionResults3:   {"Last 3 questions results", "Fetched results of the last 3 questions"},
	ActionStats:      {"Statistics", "Statistics refreshed"},
}

// Actions returns every known action
func Actions() []Action {
	return []Action{
		ActionOpenForm, ActionCloseForm, ActionUpdate, ActionUpdateOpen,
		ActionDelete, ActionBackup, ActionResults1, ActionResults3, ActionStats,
	}
}

// Valid reports whether the action is known
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// Label returns the display label of the action
func (a Action) Label() string {
	if info, ok := actions[a]; ok {
		return info.label
	}
	return string(a)
}

// SuccessMessage returns the message shown after a successful manual invocation
func (a Action) SuccessMessage() string {
	if info, ok := actions[a]; ok {
		return info.success
	}
	return "Executed successfully"
}

// ReadOnly reports whether the action only reads remote state.
// Viewers may invoke read-only actions.
func (a Action) ReadOnly() bool {
	return a == ActionStats || a == ActionResults1 || a == ActionResults3
}

// ActionRequest is the body posted to the action endpoint
type ActionRequest struct {
	Action Action `json:"action"`
}

// ActionResponse is the decoded reply of the action endpoint.
// Raw keeps the full payload for action-specific consumers.
type ActionResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw payload next to the common fields
func (r *ActionResponse) UnmarshalJSON(data []byte) error {
	var common struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &common); err != nil {
		return err
	}
	r.Success = common.Success
	r.Message = common.Message
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Payload returns the response fields without the success flag
func (r *ActionResponse) Payload() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage)
	if len(r.Raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(r.Raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	delete(out, "success")
	return out, nil
}

// Stats decodes the statistics payload of a stats response
func (r *ActionResponse) Stats() (Stats, error) {
	var s Stats
	if len(r.Raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(r.Raw, &s); err != nil {
		return s, fmt.Errorf("failed to decode stats: %w", err)
	}
	return s, nil
}

// Stats represents the statistics reported by the stats action
type Stats struct {
	TotalResponses      int             `json:"totalResponses"`
	TodayResponses      int             `json:"todayResponses"`
	LastResponse        *string         `json:"lastResponse,omitempty"`
	CorrectAnswers      int             `json:"correctAnswers"`
	WrongAnswers        int             `json:"wrongAnswers"`
	TotalAnswersOnLastQ int             `json:"totalAnswersOnLastQ"`
	LastQuestion        json.RawMessage `json:"lastQuestion,omitempty"`
	FormStatus          string          `json:"formStatus,omitempty"`
	WeeklyData          json.RawMessage `json:"weeklyData,omitempty"`
}

// CorrectPercentage returns the share of correct answers on the last question
func (s Stats) CorrectPercentage() int {
	if s.TotalAnswersOnLastQ <= 0 {
		return 0
	}
	return percent(s.CorrectAnswers, s.TotalAnswersOnLastQ)
}

// TodayPercentage returns the share of today's responses in the total
func (s Stats) TodayPercentage() int {
	if s.TotalResponses <= 0 {
		return 0
	}
	return percent(s.TodayResponses, s.TotalResponses)
}

func percent(part, total int) int {
	p := (part*100 + total/2) / total
	if p > 100 {
		return 100
	}
	return p
}

// StatsSnapshot is the cached result of the last statistics refresh
type StatsSnapshot struct {
	Stats             Stats     `json:"stats"`
	CorrectPercentage int       `json:"correctPercentage"`
	TodayPercentage   int       `json:"todayPercentage"`
	RefreshedAt       time.Time `json:"refreshedAt"`
	NextRefresh       time.Time `json:"nextRefresh"`
	Error             string    `json:"error,omitempty"`
}
