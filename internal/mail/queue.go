package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type queueMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Queue publishes messages to a durable queue for an out-of-process sender.
// Useful as a last-resort backend when the SMTP providers are down: the
// message survives in the broker until a consumer picks it up.
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

func NewQueue(url, queueName string) (*Queue, error) {
	const op = "mail.NewQueue"

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	q, err := ch.QueueDeclare(
		queueName, true, false, false, false, nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Queue{
		conn:    conn,
		channel: ch,
		queue:   q,
	}, nil
}

func (q *Queue) Send(ctx context.Context, to, subject, htmlBody string) error {
	const op = "mail.Queue.Send"

	body, err := json.Marshal(queueMessage{To: to, Subject: subject, Body: htmlBody})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = q.channel.PublishWithContext(
		ctx,
		"",
		q.queue.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (q *Queue) Close() {
	_ = q.channel.Close()
	_ = q.conn.Close()
}
