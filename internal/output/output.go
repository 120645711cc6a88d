// Package output delivers results to the desktop: clipboard, notifications
// and an optional review prompt.
package output

import (
	"github.com/atotto/clipboard"
)

// Title is shown on every notification.
const Title = "Babel Tower"

// Urgency of a desktop notification
type Urgency int

const (
	UrgencyNormal Urgency = iota
	UrgencyLow
	UrgencyCritical
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Clipboard receives the final text
type Clipboard interface {
	Copy(text string) error
}

// Notifier shows desktop notifications
type Notifier interface {
	Notify(body string, urgency Urgency) error
}

type systemClipboard struct {
	writeAll func(string) error
}

// NewClipboard returns the system clipboard
func NewClipboard() Clipboard {
	return &systemClipboard{writeAll: clipboard.WriteAll}
}

func (c *systemClipboard) Copy(text string) error {
	return c.writeAll(text)
}
