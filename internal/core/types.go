package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/granobox/spool/internal/db"
	"github.com/granobox/spool/internal/notify"
)

var ErrMalformedJob = errors.New("malformed print job")

const (
	PrinterTypeEpson = "epson"
	PrinterTypeStar  = "star"

	DefaultWidth = 48
)

// PrinterConfig selects the protocol variant, the connection and the line
// width in characters.
type PrinterConfig struct {
	Type      string `json:"type"`
	Interface string `json:"interface"`
	Width     int    `json:"width"`
}

type CommandType string

const (
	CommandText    CommandType = "text"
	CommandBold    CommandType = "bold"
	CommandAlign   CommandType = "align"
	CommandNewline CommandType = "newline"
	CommandCut     CommandType = "cut"
)

type Command struct {
	Type    CommandType `json:"type"`
	Content string      `json:"content,omitempty"`
	Value   any         `json:"value,omitempty"`
}

// Printer renders commands and sends them to the configured device. A false
// result with a nil error is a clean, retryable failure; a non-nil error
// means the job itself cannot be printed.
type Printer interface {
	Print(ctx context.Context, commands []Command, cfg PrinterConfig) (bool, error)
}

type JobStore interface {
	FetchPendingBatch(ctx context.Context, limit int) ([]*db.PrintJob, error)
	MarkPrinted(ctx context.Context, id int64) error
	MarkRetry(ctx context.Context, id int64, retryCount int) error
	MarkFailed(ctx context.Context, id int64, retryCount int, reason string) error
	MarkError(ctx context.Context, id int64, reason string) error
	QueueStats(ctx context.Context) (*db.QueueStats, error)
}

type Notifier interface {
	Broadcast(evt notify.Event)
}

// DecodeJob parses the stored payload of a job.
func DecodeJob(job *db.PrintJob) ([]Command, PrinterConfig, error) {
	var cfg PrinterConfig
	if err := json.Unmarshal([]byte(job.PrinterConfig), &cfg); err != nil {
		return nil, cfg, fmt.Errorf("%w: invalid printer config: %v", ErrMalformedJob, err)
	}
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Type == "" {
		cfg.Type = PrinterTypeEpson
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if strings.TrimSpace(cfg.Interface) == "" {
		return nil, cfg, fmt.Errorf("%w: printer interface is required", ErrMalformedJob)
	}

	var commands []Command
	if err := json.Unmarshal([]byte(job.Content), &commands); err != nil {
		return nil, cfg, fmt.Errorf("%w: invalid content: %v", ErrMalformedJob, err)
	}
	return commands, cfg, nil
}
