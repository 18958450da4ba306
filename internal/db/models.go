package db

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusPrinted JobStatus = "printed"
	JobStatusFailed  JobStatus = "failed"
	JobStatusError   JobStatus = "error"
)

// Terminal reports whether no further automatic transition leaves the status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusPrinted || s == JobStatusFailed || s == JobStatusError
}

type PrintJob struct {
	ID            int64      `json:"id"`
	Content       string     `json:"content"`
	PrinterConfig string     `json:"printer_config"`
	Status        JobStatus  `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	PrintedAt     *time.Time `json:"printed_at,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	RetryCount    int        `json:"retry_count"`
}

type QueueStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Printed int `json:"printed"`
	Failed  int `json:"failed"`
	Error   int `json:"error"`
}

type PrinterPreset struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	Interface  string    `json:"interface"`
	ConfigJSON string    `json:"config_json"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
