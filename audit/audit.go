// Package audit records privileged operations: admin replies and directory reads.
package audit

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/compute/metadata"
	"cloud.google.com/go/logging"
	"github.com/klipach/mentorchat/contract"
	"github.com/klipach/mentorchat/log"
)

const (
	DefaultLogID = contract.DefaultAuditLogID

	ActionSendMessage   = "send_message"
	ActionReadDirectory = "read_directory"

	errorMsgLogField = "errorMsg"
	actionLogField   = "action"
	actorLogField    = "actor"
	targetLogField   = "target"
)

type Event struct {
	Action string `json:"action"`
	Actor  string `json:"actor"`
	Target string `json:"target,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type Recorder interface {
	Record(ctx context.Context, e Event)
}

// Cloud writes events to a dedicated Cloud Logging log.
type Cloud struct {
	client *logging.Client
	logger *logging.Logger
}

// NewCloud looks the project up on the metadata server when projectID is empty.
func NewCloud(ctx context.Context, projectID, logID string) (*Cloud, error) {
	if projectID == "" {
		var err error
		projectID, err = metadata.ProjectIDWithContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get project ID: %w", err)
		}
	}
	if logID == "" {
		logID = DefaultLogID
	}
	client, err := logging.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create logging client: %w", err)
	}
	client.OnError = func(err error) {
		slog.Error("audit log write failed", slog.String(errorMsgLogField, err.Error()))
	}
	return &Cloud{client: client, logger: client.Logger(logID)}, nil
}

func (c *Cloud) Record(ctx context.Context, e Event) {
	c.logger.Log(logging.Entry{
		Severity: logging.Notice,
		Payload:  e,
		Labels:   map[string]string{actionLogField: e.Action},
		Trace:    log.TraceFromContext(ctx),
	})
}

// Close flushes buffered entries.
func (c *Cloud) Close() error {
	return c.client.Close()
}

// Slog writes events to the request logger. It is used when Cloud Logging
// is not reachable, e.g. when running locally.
type Slog struct{}

func (Slog) Record(ctx context.Context, e Event) {
	log.LoggerFromContext(ctx).InfoContext(ctx, "audit",
		slog.String(actionLogField, e.Action),
		slog.String(actorLogField, e.Actor),
		slog.String(targetLogField, e.Target),
	)
}
