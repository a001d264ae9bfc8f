package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-tracker/internal/models"
)

type mockWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func TestProducer_PublishPositionEvent(t *testing.T) {
	t.Run("keys by position and encodes event", func(t *testing.T) {
		writer := &mockWriter{}
		producer := &Producer{writer: writer, topic: "position-events"}

		event := models.PositionEvent{
			EventType:   models.EventPositionMerged,
			OwnerID:     testUser,
			PositionID:  42,
			PortfolioID: 1,
			Symbol:      "AAPL",
			Position: &models.Position{
				ID:            42,
				Symbol:        "AAPL",
				Quantity:      decimal.NewFromInt(20),
				AverageCost:   decimal.NewFromInt(110),
				TotalInvested: decimal.NewFromInt(2200),
			},
			Timestamp: time.Date(2026, 1, 12, 14, 0, 0, 0, time.UTC),
		}
		require.NoError(t, producer.PublishPositionEvent(context.Background(), event))

		require.Len(t, writer.msgs, 1)
		msg := writer.msgs[0]
		assert.Equal(t, "42", string(msg.Key))
		require.Len(t, msg.Headers, 1)
		assert.Equal(t, models.EventPositionMerged, string(msg.Headers[0].Value))

		var decoded models.PositionEvent
		require.NoError(t, json.Unmarshal(msg.Value, &decoded))
		assert.Equal(t, models.EventPositionMerged, decoded.EventType)
		assert.Equal(t, testUser, decoded.OwnerID)
		require.NotNil(t, decoded.Position)
		assert.True(t, decimal.NewFromInt(110).Equal(decoded.Position.AverageCost))
		assert.Nil(t, decoded.Transaction)
	})

	t.Run("stamps missing timestamp", func(t *testing.T) {
		writer := &mockWriter{}
		producer := &Producer{writer: writer}

		require.NoError(t, producer.PublishPositionEvent(context.Background(), models.PositionEvent{
			EventType:  models.EventPositionDeleted,
			PositionID: 7,
		}))

		var decoded models.PositionEvent
		require.NoError(t, json.Unmarshal(writer.msgs[0].Value, &decoded))
		assert.False(t, decoded.Timestamp.IsZero())
	})

	t.Run("wraps write errors", func(t *testing.T) {
		producer := &Producer{writer: &mockWriter{err: errors.New("broker unavailable")}}

		err := producer.PublishPositionEvent(context.Background(), models.PositionEvent{PositionID: 1})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to write message to kafka")
	})

	t.Run("close closes writer", func(t *testing.T) {
		writer := &mockWriter{}
		producer := &Producer{writer: writer}
		require.NoError(t, producer.Close())
		assert.True(t, writer.closed)
	})
}
