package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	traceHeader   = "X-Cloud-Trace-Context"
	traceLogField = "logging.googleapis.com/trace"
)

type ctxKey struct{}

type traceKey struct{}

// CloudLoggingHandler is a slog.Handler implementation for Google Cloud Functions.
type CloudLoggingHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewCloudLoggingHandler creates a new handler that writes logs in Google Cloud structured format to stdout.
func NewCloudLoggingHandler() *CloudLoggingHandler {
	return NewCloudLoggingHandlerWithWriter(os.Stdout, slog.LevelDebug)
}

func NewCloudLoggingHandlerWithWriter(w io.Writer, level slog.Leveler) *CloudLoggingHandler {
	return &CloudLoggingHandler{mu: &sync.Mutex{}, out: w, level: level}
}

// Handle processes log records.
func (h *CloudLoggingHandler) Handle(ctx context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := map[string]any{
		"severity": severity(r.Level),
		"time":     ts.Format(time.RFC3339Nano),
		"message":  r.Message,
	}
	if trace := TraceFromContext(ctx); trace != "" {
		entry[traceLogField] = trace
	}

	// handler attributes first, record attributes may override them
	for _, attr := range h.attrs {
		entry[attr.Key] = valueOf(attr.Value.Resolve())
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(attr slog.Attr) bool {
		key := attr.Key
		if prefix != "" {
			key = prefix + "." + key
		}
		entry[key] = valueOf(attr.Value.Resolve())
		return true
	})

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(append(jsonData, '\n'))
	return err
}

func (h *CloudLoggingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// WithAttrs returns a new handler with additional attributes.
func (h *CloudLoggingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := strings.Join(h.groups, ".")
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		if prefix != "" {
			a.Key = prefix + "." + a.Key
		}
		newAttrs = append(newAttrs, a)
	}
	return &CloudLoggingHandler{mu: h.mu, out: h.out, level: h.level, attrs: newAttrs, groups: h.groups}
}

// WithGroup returns a handler that prefixes subsequent attribute keys with name.
func (h *CloudLoggingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := append(append([]string{}, h.groups...), name)
	return &CloudLoggingHandler{mu: h.mu, out: h.out, level: h.level, attrs: h.attrs, groups: groups}
}

// severity maps slog levels onto Cloud Logging severities.
func severity(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func valueOf(v slog.Value) any {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindGroup:
		m := make(map[string]any, len(v.Group()))
		for _, a := range v.Group() {
			m[a.Key] = valueOf(a.Value.Resolve())
		}
		return m
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}

// WithTrace stores the Cloud Trace resource name taken from the request's
// X-Cloud-Trace-Context header, so every entry of that request is correlated.
func WithTrace(ctx context.Context, r *http.Request, projectID string) context.Context {
	header := r.Header.Get(traceHeader)
	if header == "" || projectID == "" {
		return ctx
	}
	traceID, _, _ := strings.Cut(header, "/")
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, fmt.Sprintf("projects/%s/traces/%s", projectID, traceID))
}

func TraceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	trace, _ := ctx.Value(traceKey{}).(string)
	return trace
}

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.New(NewCloudLoggingHandler())
}
