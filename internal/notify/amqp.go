package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/courierhub/dispatch/pkg/courier"
)

// amqpChannel is the slice of *amqp.Channel the forwarder uses; narrowed for
// testability.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPForwarderConfig holds AMQP forwarder configuration.
type AMQPForwarderConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// AMQPForwarder publishes e-commerce status updates to an AMQP exchange.
// Order-management consumers apply them to their own records.
type AMQPForwarder struct {
	config  AMQPForwarderConfig
	conn    *amqp.Connection
	channel amqpChannel
	logger  *otelzap.Logger
}

// orderStatusMessage is the published payload.
type orderStatusMessage struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updated_at"`
}

// NewAMQPForwarder dials the broker and declares the exchange.
func NewAMQPForwarder(cfg AMQPForwarderConfig, logger *otelzap.Logger) (*AMQPForwarder, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "ecommerce.orders"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "order.status"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	f := &AMQPForwarder{config: cfg, conn: conn, channel: channel, logger: logger}
	if err := f.declareExchange(); err != nil {
		conn.Close()
		return nil, err
	}
	return f, nil
}

// NewAMQPForwarderWithChannel creates a forwarder over an existing channel.
// Used in tests.
func NewAMQPForwarderWithChannel(cfg AMQPForwarderConfig, channel amqpChannel, logger *otelzap.Logger) (*AMQPForwarder, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "ecommerce.orders"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "order.status"
	}
	f := &AMQPForwarder{config: cfg, channel: channel, logger: logger}
	if err := f.declareExchange(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *AMQPForwarder) declareExchange() error {
	if err := f.channel.ExchangeDeclare(f.config.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	return nil
}

// ForwardStatus publishes the translated order status.
func (f *AMQPForwarder) ForwardStatus(ctx context.Context, orderID string, status courier.EcommerceStatus) error {
	body, err := json.Marshal(orderStatusMessage{
		OrderID:   orderID,
		Status:    string(status),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode order status: %w", err)
	}

	err = f.channel.PublishWithContext(ctx, f.config.Exchange, f.config.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish order status: %w", err)
	}

	f.logger.Ctx(ctx).Info("Forwarded e-commerce order status",
		zap.String("order_id", orderID), zap.String("status", string(status)))
	return nil
}

// Close releases the AMQP connection.
func (f *AMQPForwarder) Close() error {
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

var _ EcommerceForwarder = (*AMQPForwarder)(nil)
