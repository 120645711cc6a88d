package output

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const reviewTimeout = 60 * time.Second

// Reviewer lets the user edit text before it is delivered. ok is false when
// the user dismissed the prompt.
type Reviewer interface {
	Review(ctx context.Context, text string) (edited string, ok bool)
}

type rofiReviewer struct {
	command string
	timeout time.Duration
	log     zerolog.Logger
}

// NewRofiReviewer shows the text in a rofi prompt
func NewRofiReviewer(log zerolog.Logger) Reviewer {
	return &rofiReviewer{command: "rofi", timeout: reviewTimeout, log: log}
}

func (r *rofiReviewer) Review(ctx context.Context, text string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.command, "-dmenu", "-p", Title, "-filter", text, "-l", "0")
	cmd.Stdin = strings.NewReader("")

	out, err := cmd.Output()
	if err != nil {
		// rofi exits non-zero when dismissed
		r.log.Debug().Err(err).Msg("Review dismissed")
		return "", false
	}

	return strings.TrimSpace(string(out)), true
}
