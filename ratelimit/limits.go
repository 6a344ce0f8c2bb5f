package ratelimit

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

/* Limit tables for operation classes.
 * Each class maps to a Limit under normal operation and a stricter Limit
 * under degraded operation (primary counter store unreachable). The only
 * hard invariant is "degraded is never more permissive": degraded Max must
 * not exceed normal Max. Degraded windows are free to shrink.
 */

// Limit is a fixed-window allowance: Max requests per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// Tables holds the per-class limit configuration, loaded once at start.
type Tables struct {
	normal     map[Class]Limit
	degraded   map[Class]Limit
	failClosed map[Class]bool
}

// NewTables builds a limit configuration from explicit maps.
// Callers own validation via Validate.
func NewTables(normal, degraded map[Class]Limit, failClosed map[Class]bool) *Tables {
	if failClosed == nil {
		failClosed = map[Class]bool{}
	}
	return &Tables{normal: normal, degraded: degraded, failClosed: failClosed}
}

// DefaultTables returns the compiled-in limit configuration.
func DefaultTables() *Tables {
	return &Tables{
		normal: map[Class]Limit{
			Auth:            {Max: 5, Window: 15 * time.Minute},
			PasswordReset:   {Max: 3, Window: time.Hour},
			WebhookInbound:  {Max: 120, Window: time.Minute},
			Dashboard:       {Max: 300, Window: time.Minute},
			Public:          {Max: 60, Window: time.Minute},
			Demo:            {Max: 10, Window: time.Hour},
			AIGeneration:    {Max: 20, Window: time.Minute},
			ImageGeneration: {Max: 10, Window: time.Minute},
		},
		degraded: map[Class]Limit{
			Auth:            {Max: 3, Window: 15 * time.Minute},
			PasswordReset:   {Max: 2, Window: time.Hour},
			WebhookInbound:  {Max: 60, Window: time.Minute},
			Dashboard:       {Max: 100, Window: time.Minute},
			Public:          {Max: 20, Window: time.Minute},
			Demo:            {Max: 5, Window: time.Hour},
			AIGeneration:    {Max: 5, Window: time.Minute},
			ImageGeneration: {Max: 3, Window: time.Minute},
		},
		failClosed: map[Class]bool{},
	}
}

// Normal returns the normal-operation limit for a class.
func (t *Tables) Normal(class Class) Limit {
	return t.normal[class]
}

// Degraded returns the degraded-operation limit for a class.
func (t *Tables) Degraded(class Class) Limit {
	return t.degraded[class]
}

// FailClosed reports whether internal rate-limiter errors should deny
// requests for this class instead of allowing them.
func (t *Tables) FailClosed(class Class) bool {
	return t.failClosed[class]
}

// Validate checks every class has limits and degraded never exceeds normal.
func (t *Tables) Validate() error {
	for _, class := range Classes {
		normal, ok := t.normal[class]
		if !ok {
			return fmt.Errorf("missing normal limit for class %s", class)
		}
		degraded, ok := t.degraded[class]
		if !ok {
			return fmt.Errorf("missing degraded limit for class %s", class)
		}
		if normal.Max <= 0 || normal.Window <= 0 {
			return fmt.Errorf("invalid normal limit for class %s: max=%d window=%s", class, normal.Max, normal.Window)
		}
		if degraded.Max <= 0 || degraded.Window <= 0 {
			return fmt.Errorf("invalid degraded limit for class %s: max=%d window=%s", class, degraded.Max, degraded.Window)
		}
		if degraded.Max > normal.Max {
			return fmt.Errorf("degraded limit for class %s is more permissive than normal: %d > %d", class, degraded.Max, normal.Max)
		}
	}
	return nil
}

/* YAML overrides (limits.yaml). Entries replace the compiled-in defaults
 * per class; classes not mentioned keep their defaults.
 */

// fileConfig represents the structure of limits.yaml
type fileConfig struct {
	Limits []limitEntry `yaml:"limits"`
}

// limitEntry represents one class override in the YAML file
type limitEntry struct {
	Class          string `yaml:"class"`
	Max            int    `yaml:"max"`
	Window         string `yaml:"window"`
	DegradedMax    int    `yaml:"degraded_max"`
	DegradedWindow string `yaml:"degraded_window"` // Optional: defaults to window
	FailClosed     bool   `yaml:"fail_closed"`
}

// LoadTables reads limits.yaml and applies it over the defaults.
// The merged result is validated before being returned.
func LoadTables(filePath string) (*Tables, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading limits file: %w", err)
	}

	var config fileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing limits YAML: %w", err)
	}

	tables := DefaultTables()
	for _, entry := range config.Limits {
		class, err := NewClass(entry.Class)
		if err != nil {
			return nil, fmt.Errorf("validating limits entry: %w", err)
		}

		window, err := time.ParseDuration(entry.Window)
		if err != nil {
			return nil, fmt.Errorf("parsing window for class %s: %w", class, err)
		}

		degradedWindow := window
		if entry.DegradedWindow != "" {
			degradedWindow, err = time.ParseDuration(entry.DegradedWindow)
			if err != nil {
				return nil, fmt.Errorf("parsing degraded window for class %s: %w", class, err)
			}
		}

		tables.normal[class] = Limit{Max: entry.Max, Window: window}
		tables.degraded[class] = Limit{Max: entry.DegradedMax, Window: degradedWindow}
		tables.failClosed[class] = entry.FailClosed
	}

	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("validating limits: %w", err)
	}
	return tables, nil
}
