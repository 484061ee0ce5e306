// Package models holds the persistence row types shared by the
// repositories and the admin API.
package models

import "time"

// CallLog is one row of the call history table. A row is inserted when
// a call is established and finalized when it ends.
type CallLog struct {
	ID         int64      `json:"id"`
	CallID     string     `json:"call_id"`
	FromNumber string     `json:"from_number"`
	ToNumber   string     `json:"to_number"`
	Status     string     `json:"status"`
	RoomName   string     `json:"room_name,omitempty"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	Duration   int64      `json:"duration"`
}

// IVRMenu is a menu definition: the prompt spoken on entry plus an
// optional pre-rendered greeting file used instead of TTS.
type IVRMenu struct {
	MenuID         string `json:"menu_id"`
	Name           string `json:"name"`
	WelcomeMessage string `json:"welcome_message"`
	GreetingFile   string `json:"greeting_file,omitempty"`
}

// Menu option action types.
const (
	ActionMenu     = "menu"     // transition to another menu
	ActionTransfer = "transfer" // transfer to a destination
)

// MenuOption maps a DTMF digit within a menu to an action.
type MenuOption struct {
	MenuID      string `json:"menu_id"`
	Digit       string `json:"digit"`
	ActionType  string `json:"action_type"`
	ActionValue string `json:"action_value"`
}

// Agent is a directory entry for a transfer destination.
type Agent struct {
	ID        int64  `json:"id"`
	Extension string `json:"extension"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
}
