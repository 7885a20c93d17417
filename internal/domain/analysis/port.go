package analysis

import "context"

// Output is what the analyzer printed on its two channels.
type Output struct {
	Stdout string
	Stderr string
}

// Invoker port (runs the external analyzer against one payload)
type Invoker interface {
	Invoke(ctx context.Context, text string) (Output, error)
}

// Notifier port (delivers one message to the messaging sink)
type Notifier interface {
	Notify(ctx context.Context, msg NotificationMessage) error
}

// ScenarioSelector picks the level of a synthetic result.
type ScenarioSelector interface {
	Select() ThreatLevel
}
