package service

import (
	"context"

	"rag-agent-be/internal/pkg/logger"
	"rag-agent-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService writes every turn event to the audit log.
type consumerService struct {
	subscriber  message.Subscriber
	topicName   string
	auditLogger logger.ILogger
	logger      logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	auditLogger logger.ILogger,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber:  subscriber,
		topicName:   topicName,
		auditLogger: auditLogger,
		logger:      log,
	}
}

// Consume subscribes and processes messages in the background until ctx is
// done or the subscriber is closed.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	evt, err := events.Unmarshal(msg.Payload)
	if err != nil {
		cs.logger.Error("CONSUMER", "Failed to decode turn event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err,
		})
		// undecodable messages would fail forever
		msg.Ack()
		return
	}

	details := evt.Payload()
	if details == nil {
		details = map[string]interface{}{}
	}
	details["occurred_at"] = evt.Timestamp()

	if outcome, _ := details["outcome"].(string); outcome == "failed" {
		cs.auditLogger.Warn("CHAT_AUDIT", evt.EventType(), details)
	} else {
		cs.auditLogger.Info("CHAT_AUDIT", evt.EventType(), details)
	}
	msg.Ack()
}
