package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitPublisher publishes envelopes to a topic exchange with the event type as routing key.
type RabbitPublisher struct {
	conn     *amqp091.Connection
	exchange string
	log      *zap.Logger

	mu sync.Mutex
	ch *amqp091.Channel
}

func NewRabbitPublisher(url, exchange string, log *zap.Logger) (*RabbitPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	p := &RabbitPublisher{conn: conn, exchange: exchange, log: log}
	ch, err := p.openChannel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.ch = ch
	return p, nil
}

func (p *RabbitPublisher) openChannel() (*amqp091.Channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(
		p.exchange, "topic", true, false, false, false, nil,
	); err != nil {
		ch.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, msg Envelope) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if msg.Meta.CorrelationID != nil {
		cid = *msg.Meta.CorrelationID
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.openChannel()
		if err != nil {
			return fmt.Errorf("reopen channel: %w", err)
		}
		p.ch = ch
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(
		ctx, p.exchange, msg.Meta.Type, false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     msgID,
			CorrelationId: cid,
			Timestamp:     time.Now(),
			Body:          body,
		},
	)
	if err != nil {
		return err
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("rabbitmq nacked event")
	}

	p.log.Debug("published",
		zap.String("key", msg.Meta.Type),
		zap.String("exchange", p.exchange),
	)
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	return p.conn.Close()
}
