package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoopMetrics(t *testing.T) {
	var m MetricsRecorder = NoopMetrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordTaskExecution(ctx, "t", time.Millisecond, errors.New("x"))
		m.RecordRun(ctx, false, time.Second)
		m.RecordEventSatisfied(ctx, "once")
		m.RecordBlockCreated(ctx, 1)
		m.RecordBlockRelocation(ctx, 1)
		m.RecordBlockEviction(ctx, 1)
	})
}

func TestNoopSpanManager(t *testing.T) {
	sm := NoopSpanManager{}
	ctx := context.Background()

	runCtx, span := sm.StartRunSpan(ctx, "run-1")
	assert.Equal(t, ctx, runCtx)
	assert.False(t, span.IsRecording())

	taskCtx, span := sm.StartTaskSpan(ctx, "t", "id")
	assert.Equal(t, ctx, taskCtx)
	assert.False(t, span.IsRecording())

	assert.NotPanics(t, func() {
		sm.EndSpanWithError(span, errors.New("x"))
		sm.AddSpanEvent(ctx, "ev")
	})
}
