package notify

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mixelka/otprelay/pkg/models"
)

type recordingSink struct {
	events []models.LifecycleEvent
}

func (r *recordingSink) Emit(_ context.Context, e models.LifecycleEvent) {
	r.events = append(r.events, e)
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	sink := Multi{a, nil, b}

	event := NewEvent(models.EventExpired, "req-1", "", "")
	sink.Emit(context.Background(), event)

	assert.Equal(t, []models.LifecycleEvent{event}, a.events)
	assert.Equal(t, []models.LifecycleEvent{event}, b.events)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.At.IsZero())
}

func TestLogSink_Emit(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	sink.Emit(context.Background(), NewEvent(models.EventDeliveryFailed, "req-9", "email", "rejected"))

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"request_id":"req-9"`)
	assert.Contains(t, out, `"type":"delivery_failed"`)
}
