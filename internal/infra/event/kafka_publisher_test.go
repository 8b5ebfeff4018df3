package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storefront/internal/usecase"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_PublishOrderEvent(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w, log: zap.NewNop()}

	err := p.PublishOrderEvent(context.Background(), usecase.OrderEvent{Type: usecase.OrderEventPaid, OrderID: 42, OrderNumber: "ORD1"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	assert.Equal(t, "42", string(w.msgs[0].Key))
	assert.Equal(t, "event_type", w.msgs[0].Headers[0].Key)

	var got usecase.OrderEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, usecase.OrderEventPaid, got.Type)
	assert.Equal(t, "ORD1", got.OrderNumber)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}, log: zap.NewNop()}
	err := p.PublishOrderEvent(context.Background(), usecase.OrderEvent{Type: usecase.OrderEventPlaced, OrderID: 1})
	require.Error(t, err)
}
