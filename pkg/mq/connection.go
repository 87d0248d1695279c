package mq

import (
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName is the topic exchange push jobs are published to.
	ExchangeName = "notifications"

	connectionName = "alert-dispatcher"
	heartbeat      = 10 * time.Second
)

// NewConnection dials RabbitMQ with a named connection so the broker UI shows
// which service holds it.
func NewConnection(url string) (*amqp091.Connection, error) {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName(connectionName)

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  heartbeat,
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the notifications exchange.
func DeclareExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareJobQueue declares a durable queue named after routingKey and binds it
// to the exchange. Jobs published before the push gateway starts consuming
// wait in it instead of being dropped as unroutable.
func DeclareJobQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		routingKey,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare queue %s: %w", routingKey, err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind queue %s: %w", routingKey, err)
	}
	return q, nil
}
