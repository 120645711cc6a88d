// Package processing rewrites transcripts with an OpenAI-compatible chat
// model. Each mode is a system prompt stored as <mode>.md in the prompts
// directory; files starting with "_" are shared fragments, not modes.
package processing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/w2kr1stn/babel-tower/internal/config"
	"github.com/w2kr1stn/babel-tower/internal/openaicompat"
)

const (
	// ModePassthrough is chosen automatically for short transcripts.
	ModePassthrough = "durchreichen"

	formattingFragment = "_formatting"
	transcriptOpen     = "<<<TRANSKRIPT>>>"
	transcriptClose    = "<<<ENDE>>>"
)

var ErrUnknownMode = errors.New("unknown mode")

// Error is a processing failure. Callers fall back to the raw transcript.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string { return e.Msg }
func (e *Error) Unwrap() error { return e.Err }

// Options select how one transcript is processed.
type Options struct {
	// Mode forces a prompt. Empty selects automatically.
	Mode string
	// DefaultMode is used by automatic selection for longer transcripts.
	// Empty falls back to the configured default.
	DefaultMode string
	// Context is placed before the transcript inside the user message.
	Context string
}

type Processor struct {
	client      *openai.Client
	url         string
	model       string
	promptsDir  string
	defaultMode string
	maxWords    int
	log         zerolog.Logger
}

func New(llm config.LLMConfig, proc config.ProcessingConfig, log zerolog.Logger) *Processor {
	return &Processor{
		client:      openaicompat.NewClient(llm.URL, llm.APIKey, config.Seconds(llm.Timeout)),
		url:         llm.URL,
		model:       llm.Model,
		promptsDir:  proc.PromptsDir,
		defaultMode: proc.DefaultMode,
		maxWords:    proc.DurchreichenMaxWords,
		log:         log,
	}
}

// SelectMode resolves the mode used for transcript.
func (p *Processor) SelectMode(transcript string, opts Options) string {
	if opts.Mode != "" {
		return opts.Mode
	}
	if len(strings.Fields(transcript)) <= p.maxWords {
		return ModePassthrough
	}
	if opts.DefaultMode != "" {
		return opts.DefaultMode
	}
	return p.defaultMode
}

// Process rewrites transcript with the prompt of the selected mode.
func (p *Processor) Process(ctx context.Context, transcript string, opts Options) (string, error) {
	mode := p.SelectMode(transcript, opts)

	systemPrompt, err := p.loadPrompt(mode)
	if err != nil {
		return "", err
	}

	p.log.Debug().Str("mode", mode).Int("words", len(strings.Fields(transcript))).Msg("Processing transcript")

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMessage(transcript, opts.Context)},
		},
	})
	if err != nil {
		return "", &Error{Msg: openaicompat.Describe("LLM", p.url, err), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Msg: "LLM returned no choices"}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// loadPrompt returns the formatting fragment (if any) followed by the mode
// prompt.
func (p *Processor) loadPrompt(mode string) (string, error) {
	if mode == "" || strings.HasPrefix(mode, "_") || strings.ContainsAny(mode, `/\`) {
		return "", &Error{Msg: fmt.Sprintf("Unknown mode: %s", mode), Err: ErrUnknownMode}
	}

	prompt, err := os.ReadFile(filepath.Join(p.promptsDir, mode+".md"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", &Error{Msg: fmt.Sprintf("Unknown mode: %s", mode), Err: ErrUnknownMode}
		}
		return "", &Error{Msg: fmt.Sprintf("failed to read prompt for %s", mode), Err: err}
	}

	formatting, err := os.ReadFile(filepath.Join(p.promptsDir, formattingFragment+".md"))
	if err != nil {
		return string(prompt), nil
	}
	return string(formatting) + "\n\n" + string(prompt), nil
}

func userMessage(transcript, context string) string {
	if context == "" {
		return transcriptOpen + "\n" + transcript + "\n" + transcriptClose
	}
	return transcriptOpen + "\n" + context + "\n\n" + transcript + "\n" + transcriptClose
}

// AvailableModes returns the sorted mode names found in dir. A missing
// directory has no modes.
func AvailableModes(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var modes []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".md" || strings.HasPrefix(name, "_") {
			continue
		}
		modes = append(modes, strings.TrimSuffix(name, ".md"))
	}
	sort.Strings(modes)
	return modes
}
