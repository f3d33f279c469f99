package obs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
)

// LogSink writes one log line per completion. Failed rounds log at warn.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink logs through logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) LogCompletion(ctx context.Context, c Completion) error {
	attrs := []slog.Attr{
		slog.String("provider", c.Provider),
		slog.String("model", c.Model),
		slog.Int("turn", c.Turn),
		slog.Int("input_tokens", c.Usage.InputTokens),
		slog.Int("output_tokens", c.Usage.OutputTokens),
	}
	if c.LatencyMS > 0 {
		attrs = append(attrs, slog.Int64("latency_ms", c.LatencyMS))
	}
	if c.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", c.RequestID))
	}
	for _, call := range c.ToolCalls {
		group := []any{slog.String("name", call.Name), slog.Int64("duration_ms", call.DurationMS)}
		if call.Error != "" {
			group = append(group, slog.String("error", call.Error))
		}
		attrs = append(attrs, slog.Group("tool_"+call.ID, group...))
	}
	level, msg := slog.LevelInfo, "completion"
	if c.Error != "" {
		attrs = append(attrs, slog.String("error", c.Error))
		level, msg = slog.LevelWarn, "completion failed"
	}
	s.logger.LogAttrs(ctx, level, msg, attrs...)
	return nil
}

func (s *LogSink) Shutdown(context.Context) error { return nil }

// JSONSink appends each completion to w as a JSON line. Shutdown closes w
// when it is an io.Closer.
type JSONSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

// NewJSONSink returns a sink writing to w.
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{w: w, enc: json.NewEncoder(w)}
}

func (s *JSONSink) LogCompletion(_ context.Context, c Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(c)
}

func (s *JSONSink) Shutdown(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if closer, ok := s.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
