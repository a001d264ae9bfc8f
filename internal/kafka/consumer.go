package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-tracker/internal/costbasis"
	"github.com/trogers1052/portfolio-tracker/internal/models"
	"github.com/trogers1052/portfolio-tracker/internal/positions"
)

// EventTradeDetected is the only trade event type the consumer acts on
const EventTradeDetected = "TRADE_DETECTED"

// Trade sides as sent by the broker bridge
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Retry settings for trades that fail on contention or infrastructure errors
const (
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 200 * time.Millisecond
	maxRetryBackoff     = 5 * time.Second
)

// TradeRecorder applies executed trades to positions
type TradeRecorder interface {
	RecordPurchase(ctx context.Context, owner string, req positions.PurchaseRequest) (*positions.Result, error)
	RecordSale(ctx context.Context, owner string, req positions.SaleRequest) (*positions.Result, error)
}

// TradeLedger answers whether a broker order was already recorded
type TradeLedger interface {
	TransactionExists(ctx context.Context, source, externalID string) (bool, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// Consumer turns TRADE_DETECTED events into purchases and sales
type Consumer struct {
	reader      messageReader
	recorder    TradeRecorder
	ledger      TradeLedger
	log         zerolog.Logger
	maxAttempts int
	backoff     time.Duration
}

// malformedError marks a message that can never be applied
type malformedError struct {
	err error
}

func (e *malformedError) Error() string { return e.err.Error() }
func (e *malformedError) Unwrap() error { return e.err }

func malformed(format string, args ...any) error {
	return &malformedError{err: fmt.Errorf(format, args...)}
}

// NewConsumer creates a new Kafka consumer for trade events
func NewConsumer(brokers []string, topic, groupID string, recorder TradeRecorder, ledger TradeLedger, log zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:      reader,
		recorder:    recorder,
		ledger:      ledger,
		log:         log.With().Str("component", "trade_consumer").Logger(),
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
	}
}

// Start consumes until ctx is cancelled. Transient failures are retried with
// backoff; a message that still fails afterwards is logged and skipped.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info().Str("topic", c.reader.Config().Topic).Msg("starting trade consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("trade consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.log.Error().Err(err).Msg("error reading message")
				continue
			}

			if err := c.handleMessage(ctx, msg); err != nil {
				c.log.Error().Err(err).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("error processing message")
			}
		}
	}
}

// handleMessage applies msg, retrying while the failure is transient
func (c *Consumer) handleMessage(ctx context.Context, msg kafka.Message) error {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.processMessage(ctx, msg)
		if err == nil || !isTransient(err) || attempt >= c.maxAttempts {
			return err
		}

		c.log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Int64("offset", msg.Offset).
			Msg("transient failure, retrying trade")

		select {
		case <-ctx.Done():
			return err
		case <-time.After(wait):
		}
		wait = min(wait*2, maxRetryBackoff)
	}
}

// isTransient reports whether retrying the same message could succeed
func isTransient(err error) bool {
	var bad *malformedError
	switch {
	case errors.As(err, &bad),
		errors.Is(err, costbasis.ErrInvalidQuantity),
		errors.Is(err, costbasis.ErrInvalidPrice),
		errors.Is(err, costbasis.ErrMissingPrice),
		errors.Is(err, costbasis.ErrOversell),
		errors.Is(err, models.ErrInvalidSymbol),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.TradeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return malformed("failed to unmarshal trade event: %w", err)
	}

	if event.EventType != EventTradeDetected {
		c.log.Debug().Str("event_type", event.EventType).Msg("ignoring event")
		return nil
	}

	data := event.Data
	if _, err := uuid.Parse(data.UserID); err != nil {
		return malformed("invalid user id %q on order %s: %w", data.UserID, data.OrderID, err)
	}

	exists, err := c.ledger.TransactionExists(ctx, event.Source, data.OrderID)
	if err != nil {
		return fmt.Errorf("failed to check for duplicate trade: %w", err)
	}
	if exists {
		c.log.Info().Str("order_id", data.OrderID).Str("source", event.Source).Msg("trade already recorded, skipping")
		return nil
	}

	res, err := c.apply(ctx, event)
	if errors.Is(err, models.ErrDuplicateTransaction) {
		// Lost a race with another consumer instance for the same order.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply order %s: %w", data.OrderID, err)
	}

	c.log.Info().
		Str("order_id", data.OrderID).
		Str("side", data.Side).
		Str("symbol", res.Position.Symbol).
		Str("quantity", data.Quantity).
		Str("price", data.AveragePrice).
		Str("outcome", string(res.Outcome)).
		Msg("trade applied")
	return nil
}

func (c *Consumer) apply(ctx context.Context, event models.TradeEvent) (*positions.Result, error) {
	data := event.Data

	quantity, err := decimal.NewFromString(data.Quantity)
	if err != nil {
		return nil, malformed("invalid quantity %s: %w", data.Quantity, err)
	}
	price, err := decimal.NewFromString(data.AveragePrice)
	if err != nil {
		return nil, malformed("invalid price %s: %w", data.AveragePrice, err)
	}
	executedAt := parseExecutedAt(data.ExecutedAt)

	switch strings.ToUpper(data.Side) {
	case SideBuy:
		return c.recorder.RecordPurchase(ctx, data.UserID, positions.PurchaseRequest{
			PortfolioID:     data.PortfolioID,
			Symbol:          data.Symbol,
			Name:            data.Name,
			Quantity:        quantity,
			Price:           price,
			TransactionDate: executedAt,
			Source:          event.Source,
			ExternalID:      data.OrderID,
		})
	case SideSell:
		return c.recorder.RecordSale(ctx, data.UserID, positions.SaleRequest{
			PortfolioID:     data.PortfolioID,
			Symbol:          data.Symbol,
			Quantity:        quantity,
			Price:           price,
			TransactionDate: executedAt,
			Source:          event.Source,
			ExternalID:      data.OrderID,
		})
	default:
		return nil, malformed("invalid trade side: %s", data.Side)
	}
}

// parseExecutedAt accepts RFC 3339 or a bare local timestamp; anything else
// yields the zero time, which the orchestrator replaces with now.
func parseExecutedAt(s *string) time.Time {
	if s == nil || *s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, *s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", *s); err == nil {
		return t
	}
	return time.Time{}
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
