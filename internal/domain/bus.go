package domain

import (
	"context"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (Community) or NATS (Pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (Community tier)
	ChannelBufferSize int

	// NATS settings (Pro tier)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds

	// Circuit breaker around publishing
	BreakerMaxFailures uint32
	BreakerOpenTimeout int // seconds
}

// Standard topic names.
const (
	TopicMerchantReassess   = "merchantrisk.merchant.reassess"
	TopicAssessmentRecorded = "merchantrisk.assessment.recorded"
	TopicAlertRaised        = "merchantrisk.alert.raised"
)

// ReassessRequest is the payload of TopicMerchantReassess.
type ReassessRequest struct {
	MerchantID  string      `json:"merchantId"`
	Reason      string      `json:"reason"`
	RequestMeta RequestMeta `json:"requestMeta"`
}

// AssessmentEvent is the payload of TopicAssessmentRecorded.
type AssessmentEvent struct {
	AssessmentID string    `json:"assessmentId"`
	MerchantID   string    `json:"merchantId"`
	RiskScore    int       `json:"riskScore"`
	RiskLevel    RiskLevel `json:"riskLevel"`
	IsOverride   bool      `json:"isOverride"`
	AssessedBy   string    `json:"assessedBy"`
}
