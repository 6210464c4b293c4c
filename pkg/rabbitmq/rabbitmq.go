package rabbitmq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ecofinds/internal/logger"

	amqp "github.com/streadway/amqp"
)

const (
	DefaultExchange   = "ecofinds.products"
	DefaultQueue      = "product_events"
	DefaultBindingKey = "product.#"
)

// ErrChannelClosed is returned when the client has no usable channel.
var ErrChannelClosed = errors.New("RabbitMQ channel is not available")

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	log     *logger.Logger
	// amqp.Channel must not be published on concurrently.
	mu sync.Mutex
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL        string
	Exchange   string
	Queue      string
	BindingKey string
}

func (c Config) withDefaults() Config {
	if c.Exchange == "" {
		c.Exchange = DefaultExchange
	}
	if c.Queue == "" {
		c.Queue = DefaultQueue
	}
	if c.BindingKey == "" {
		c.BindingKey = DefaultBindingKey
	}
	return c
}

// NewClient connects to RabbitMQ, opens a channel and declares a durable
// topic exchange with a queue bound to it.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.NewNop()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Info("RabbitMQ client connected", "exchange", cfg.Exchange, "queue", cfg.Queue)

	return &Client{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		log:     log,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg Config) error {
	err := ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	_, err = ch.QueueDeclare(
		cfg.Queue, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare %s: %w", cfg.Queue, err)
	}

	if err := ch.QueueBind(cfg.Queue, cfg.BindingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind %s to %s: %w", cfg.Queue, cfg.Exchange, err)
	}
	return nil
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Publish sends a persistent JSON message to the exchange under routingKey.
func (c *Client) Publish(routingKey string, body []byte) error {
	if c == nil || c.channel == nil {
		return ErrChannelClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.channel.Publish(
		c.cfg.Exchange, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

// ConsumeProductEvents delivers every message on the queue to handler in a
// background goroutine. A message whose handler fails is requeued once and
// dropped if it fails again after redelivery.
func (c *Client) ConsumeProductEvents(handler func(msg amqp.Delivery) error) error {
	if c == nil || c.channel == nil {
		return ErrChannelClosed
	}

	msgs, err := c.channel.Consume(
		c.cfg.Queue, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info("waiting for product events", "queue", c.cfg.Queue)

	go func() {
		for msg := range msgs {
			settle(c.log, msg, handler(msg))
		}
		c.log.Info("product event consumer stopped", "queue", c.cfg.Queue)
	}()

	return nil
}

// acknowledger is the part of amqp.Delivery settle needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(log *logger.Logger, msg amqp.Delivery, handlerErr error) {
	settleWith(log, msg, msg.DeliveryTag, msg.Redelivered, handlerErr)
}

func settleWith(log *logger.Logger, ack acknowledger, tag uint64, redelivered bool, handlerErr error) {
	if handlerErr == nil {
		if err := ack.Ack(false); err != nil {
			log.Warn("failed to ack message", "delivery_tag", tag, "error", err)
		}
		return
	}

	requeue := !redelivered
	log.Warn("failed to process message", "delivery_tag", tag, "requeue", requeue, "error", handlerErr)
	if err := ack.Nack(false, requeue); err != nil {
		log.Warn("failed to nack message", "delivery_tag", tag, "error", err)
	}
}
