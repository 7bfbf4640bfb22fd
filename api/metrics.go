package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName        = "kanban-api/api"
	boardViewSpanName = "api.board_view"
	boardViewRoute    = "/api/boards/:id"
)

// boardViewMetrics instruments the composite board view request: one OTel
// span plus a structured log event carrying the same attributes.
type boardViewMetrics struct {
	logger          *log.Logger
	span            trace.Span
	start           time.Time
	authDuration    time.Duration
	fetchDuration   time.Duration
	encodeDuration  time.Duration
	columnsReturned int
	tasksReturned   int
	errorStage      string
}

func newBoardViewMetrics(ctx context.Context, logger *log.Logger) (*boardViewMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, boardViewSpanName)
	m := &boardViewMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}
	return m, spanCtx
}

func (m *boardViewMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *boardViewMetrics) ObserveFetch(d time.Duration) {
	if d > 0 {
		m.fetchDuration = d
	}
}

func (m *boardViewMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *boardViewMetrics) SetColumnsReturned(count int) {
	if count > 0 {
		m.columnsReturned = count
	}
}

func (m *boardViewMetrics) SetTasksReturned(count int) {
	if count > 0 {
		m.tasksReturned = count
	}
}

func (m *boardViewMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finalizes the span and emits the log event. Call exactly once.
func (m *boardViewMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	totalMillis := durationToMillis(time.Since(m.start))

	if m.span != nil {
		attrs := []attribute.KeyValue{
			attribute.String("http.route", boardViewRoute),
			attribute.Int("http.status_code", status),
			attribute.Float64("kanban.board_view.total_ms", totalMillis),
			attribute.Int("kanban.board_view.columns_returned", m.columnsReturned),
			attribute.Int("kanban.board_view.tasks_returned", m.tasksReturned),
		}
		if m.errorStage != "" {
			attrs = append(attrs, attribute.String("kanban.board_view.error_stage", m.errorStage))
		}
		m.span.SetAttributes(attrs...)
		if err != nil {
			m.span.RecordError(err)
			m.span.SetStatus(codes.Error, err.Error())
		} else if m.errorStage != "" {
			m.span.SetStatus(codes.Error, m.errorStage)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	fields := log.Fields{
		"route":            boardViewRoute,
		"status":           status,
		"total_ms":         totalMillis,
		"columns_returned": m.columnsReturned,
		"tasks_returned":   m.tasksReturned,
	}
	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		fields["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.encodeDuration > 0 {
		fields["encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	m.logger.WithFields(fields).Info("board_view.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
