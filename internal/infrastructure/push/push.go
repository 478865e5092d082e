package push

import "context"

// Outcome classifies one delivery attempt to one token.
type Outcome int

const (
	// OutcomeDelivered — the relay accepted the message for this token.
	OutcomeDelivered Outcome = iota
	// OutcomeInvalidToken — the token is dead and must be deactivated.
	OutcomeInvalidToken
	// OutcomeTransient — retryable failure (throttle, 5xx, timeout).
	OutcomeTransient
	// OutcomePermanent — non-retryable failure other than a dead token.
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeInvalidToken:
		return "invalid_token"
	case OutcomeTransient:
		return "transient_failure"
	default:
		return "permanent_failure"
	}
}

// Message is the transport-neutral push payload. Each adapter maps it onto
// its own wire shape.
type Message struct {
	Token     string
	Platform  string
	Title     string
	Body      string
	Data      map[string]string
	Sound     string
	ChannelID string
}

// Sender is the single uniform interface over heterogeneous push relays.
// Both adapter kinds implement it, so the dispatcher carries no platform
// conditionals and tests substitute fakes freely.
type Sender interface {
	// Send attempts delivery to one token. The returned error is diagnostic
	// detail for the outcome; it is never nil when the outcome is a failure.
	Send(ctx context.Context, msg Message) (Outcome, error)
	// Supports reports whether this relay can carry tokens of the platform.
	Supports(platform string) bool
}
