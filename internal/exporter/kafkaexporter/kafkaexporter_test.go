package kafkaexporter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/helixir/observe/internal/exporter"
	"github.com/helixir/observe/internal/opcontext"
)

var (
	_ exporter.Exporter        = (*Exporter)(nil)
	_ exporter.FailureExporter = (*Exporter)(nil)
	_ MessageWriter            = (*kafka.Writer)(nil)
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func newTestExporter(w MessageWriter) *Exporter {
	e := NewWithWriter(Config{ServiceName: "checkout-service"}, w, zerolog.Nop())
	e.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	e.eventID = func() string { return "evt-1" }
	return e
}

func decodeEvent(t *testing.T, msg kafka.Message) Event {
	t.Helper()
	var ev Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	return ev
}

func TestNew(t *testing.T) {
	t.Run("requires brokers", func(t *testing.T) {
		_, err := New(Config{Topic: "t"}, zerolog.Nop())
		assert.ErrorIs(t, err, ErrNoBrokers)
	})

	t.Run("requires topic", func(t *testing.T) {
		_, err := New(Config{Brokers: []string{"localhost:9092"}}, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("builds writer", func(t *testing.T) {
		e, err := New(Config{Brokers: []string{"localhost:9092"}, Topic: "observations"}, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, Name, e.Name())
		assert.Equal(t, defaultServiceName, e.source)
	})

	t.Run("configures SASL transport", func(t *testing.T) {
		e, err := New(Config{
			Brokers:      []string{"localhost:9092"},
			Topic:        "observations",
			SASLUsername: "user",
			SASLPassword: "secret",
		}, zerolog.Nop())
		require.NoError(t, err)

		w, ok := e.writer.(*kafka.Writer)
		require.True(t, ok)
		transport, ok := w.Transport.(*kafka.Transport)
		require.True(t, ok)
		assert.Equal(t, plain.Mechanism{Username: "user", Password: "secret"}, transport.SASL)
	})
}

func TestExporter_Success(t *testing.T) {
	w := new(mockWriter)
	e := newTestExporter(w)

	c := opcontext.New(opcontext.Options{ID: "ctx-1", Name: "checkout"})
	c.Set("user_id", 7)

	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil).Once()

	require.NoError(t, e.Success(context.Background(), c))
	w.AssertExpectations(t)

	require.Len(t, sent, 1)
	assert.Equal(t, []byte("ctx-1"), sent[0].Key)
	assert.Contains(t, sent[0].Headers, kafka.Header{Key: "event_type", Value: []byte(EventTypeSucceeded)})

	ev := decodeEvent(t, sent[0])
	assert.Equal(t, "evt-1", ev.EventID)
	assert.Equal(t, EventTypeSucceeded, ev.EventType)
	assert.Equal(t, "checkout-service", ev.Source)
	assert.Nil(t, ev.Error)

	var body map[string]any
	require.NoError(t, json.Unmarshal(ev.Context, &body))
	assert.Equal(t, "ctx-1", body["id"])
	assert.Equal(t, map[string]any{"user_id": float64(7)}, body["data"])
}

func TestExporter_Failure(t *testing.T) {
	w := new(mockWriter)
	e := newTestExporter(w)

	var sent []kafka.Message
	w.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil).Once()

	c := opcontext.New(opcontext.Options{ID: "ctx-2", Name: "checkout"})
	require.NoError(t, e.Failure(context.Background(), c, errors.New("declined")))

	require.Len(t, sent, 1)
	ev := decodeEvent(t, sent[0])
	assert.Equal(t, EventTypeFailed, ev.EventType)
	assert.Equal(t, "declined", ev.Error["message"])
}

func TestExporter_WriteError(t *testing.T) {
	w := new(mockWriter)
	e := newTestExporter(w)

	writeErr := errors.New("broker unavailable")
	w.On("WriteMessages", mock.Anything, mock.Anything).Return(writeErr)

	err := e.Success(context.Background(), opcontext.New(opcontext.Options{Name: "op"}))
	assert.ErrorIs(t, err, writeErr)
}

func TestExporter_Close(t *testing.T) {
	w := new(mockWriter)
	w.On("Close").Return(nil).Once()

	require.NoError(t, newTestExporter(w).Close())
	w.AssertExpectations(t)
}
