package webhook

import (
	"fmt"
	"regexp"
)

/* EventType identifies a domain event subscribers can listen for.
 * The vocabulary is fixed but extendable: unknown dotted names validate
 * structurally so new product events don't require a lockstep deploy of
 * this layer.
 */
type EventType string

const (
	CallStarted          EventType = "call.started"
	CallCompleted        EventType = "call.completed"
	AppointmentBooked    EventType = "appointment.booked"
	AppointmentCancelled EventType = "appointment.cancelled"
	MessageTaken         EventType = "message.taken"
	LeadCaptured         EventType = "lead.captured"
	PaymentCollected     EventType = "payment.collected"
)

// eventTypePattern validates event types: hierarchical, full-stop delimited, [a-zA-Z0-9_.]
var eventTypePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+(\.[a-zA-Z0-9_]+)*$`)

// KnownEventTypes lists the current product vocabulary.
var KnownEventTypes = []EventType{
	CallStarted,
	CallCompleted,
	AppointmentBooked,
	AppointmentCancelled,
	MessageTaken,
	LeadCaptured,
	PaymentCollected,
}

// String returns the string representation of the event type
func (e EventType) String() string {
	return string(e)
}

// Validate checks the event type is structurally valid
func (e EventType) Validate() error {
	if e == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if !eventTypePattern.MatchString(string(e)) {
		return fmt.Errorf("invalid event type: %q", e)
	}
	return nil
}
