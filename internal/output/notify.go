package output

import (
	"github.com/gen2brain/beeep"
)

// maxBodyRunes caps notification bodies
const maxBodyRunes = 200

type desktopNotifier struct {
	notify func(title, message string, icon any) error
	alert  func(title, message string, icon any) error
}

// NewNotifier returns a Notifier backed by the desktop notification service.
// Critical notifications use an alert, which also plays a sound.
func NewNotifier() Notifier {
	return &desktopNotifier{
		notify: func(title, message string, icon any) error { return beeep.Notify(title, message, icon) },
		alert:  func(title, message string, icon any) error { return beeep.Alert(title, message, icon) },
	}
}

func (n *desktopNotifier) Notify(body string, urgency Urgency) error {
	body = Truncate(body, maxBodyRunes)
	if urgency == UrgencyCritical {
		return n.alert(Title, body, "")
	}
	return n.notify(Title, body, "")
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	if n < 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
