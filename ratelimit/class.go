package ratelimit

import "fmt"

/* Class represents a named category of requests sharing one rate limit
 * configuration. The set is fixed at compile time; limits per class come
 * from the normal and degraded tables.
 */
type Class int

const (
	Auth Class = iota + 1
	PasswordReset
	WebhookInbound
	Dashboard
	Public
	Demo
	AIGeneration
	ImageGeneration
)

// Classes lists every operation class, for table validation and iteration.
var Classes = []Class{
	Auth,
	PasswordReset,
	WebhookInbound,
	Dashboard,
	Public,
	Demo,
	AIGeneration,
	ImageGeneration,
}

// String returns the string representation of the class
func (c Class) String() string {
	switch c {
	case Auth:
		return "auth"
	case PasswordReset:
		return "password_reset"
	case WebhookInbound:
		return "webhook_inbound"
	case Dashboard:
		return "dashboard"
	case Public:
		return "public"
	case Demo:
		return "demo"
	case AIGeneration:
		return "ai_generation"
	case ImageGeneration:
		return "image_generation"
	default:
		return "unknown"
	}
}

// NewClass creates a Class from a string
func NewClass(str string) (Class, error) {
	switch str {
	case "auth":
		return Auth, nil
	case "password_reset":
		return PasswordReset, nil
	case "webhook_inbound":
		return WebhookInbound, nil
	case "dashboard":
		return Dashboard, nil
	case "public":
		return Public, nil
	case "demo":
		return Demo, nil
	case "ai_generation":
		return AIGeneration, nil
	case "image_generation":
		return ImageGeneration, nil
	default:
		return 0, fmt.Errorf("unknown operation class: %q", str)
	}
}

// Validate checks if the class is valid
func (c Class) Validate() error {
	if c < Auth || c > ImageGeneration {
		return fmt.Errorf("invalid operation class: %d", c)
	}
	return nil
}
