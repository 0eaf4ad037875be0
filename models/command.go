package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdRunTag CommandType = "run_tag"
	CmdStop   CommandType = "stop"
	CmdPause  CommandType = "pause"
	CmdResume CommandType = "resume"
)

// Command is a control request written to the commands table by an external
// caller (UI, CLI) and polled by the daemon.
type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Tag   string `json:"tag,omitempty"`
	Limit int    `json:"limit,omitempty"`
}
