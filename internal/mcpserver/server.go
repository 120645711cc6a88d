// Package mcpserver exposes voice input to MCP clients over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/w2kr1stn/babel-tower/internal/audio"
	"github.com/w2kr1stn/babel-tower/internal/output"
	"github.com/w2kr1stn/babel-tower/internal/pipeline"
	"github.com/w2kr1stn/babel-tower/internal/tts"
)

const serverName = "babel-tower"

// Runner runs one pipeline pass
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (string, error)
}

type Config struct {
	Pipeline Runner
	Notifier output.Notifier
	Speaker  tts.Speaker // Optional - nil shows messages as notifications
	// Modes lists the valid processing modes, usually processing.AvailableModes.
	Modes   func() []string
	Mode    string
	Version string
	Logger  zerolog.Logger
}

// ConverseInput are the arguments of the converse tool
type ConverseInput struct {
	Message         string `json:"message,omitempty" jsonschema:"text to show or speak before listening"`
	WaitForResponse *bool  `json:"wait_for_response,omitempty" jsonschema:"listen for a spoken reply, defaults to true"`
	Mode            string `json:"mode,omitempty" jsonschema:"processing mode for the reply"`
}

// SetModeInput are the arguments of the set_mode tool
type SetModeInput struct {
	Mode string `json:"mode" jsonschema:"name of the processing mode"`
}

type Server struct {
	pipeline Runner
	notifier output.Notifier
	speaker  tts.Speaker
	modes    func() []string
	version  string
	log      zerolog.Logger

	mu   sync.Mutex
	mode string
}

func New(cfg Config) *Server {
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		pipeline: cfg.Pipeline,
		notifier: cfg.Notifier,
		speaker:  cfg.Speaker,
		modes:    cfg.Modes,
		version:  version,
		log:      cfg.Logger,
		mode:     cfg.Mode,
	}
}

// MCP builds the protocol server with both tools registered
func (s *Server) MCP() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: s.version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "converse",
		Description: "Show or speak a message, then listen for the user's spoken reply and return it as processed text.",
	}, func(ctx context.Context, _ *mcp.CallToolRequest, in ConverseInput) (*mcp.CallToolResult, any, error) {
		text, err := s.Converse(ctx, in)
		if err != nil {
			return nil, nil, err
		}
		return textResult(text), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_mode",
		Description: "Set the default processing mode for later replies.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in SetModeInput) (*mcp.CallToolResult, any, error) {
		return textResult(s.SetMode(in.Mode)), nil, nil
	})

	return server
}

// Serve answers MCP requests on stdin/stdout until ctx is done or the
// client disconnects.
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info().Str("mode", s.Mode()).Msg("MCP server listening on stdio")
	return s.MCP().Run(ctx, &mcp.StdioTransport{})
}

// Converse shows the message and, unless told not to wait, returns the
// user's processed spoken reply. No speech yields an empty reply.
func (s *Server) Converse(ctx context.Context, in ConverseInput) (string, error) {
	if in.Message != "" {
		s.show(ctx, in.Message)
	}

	if in.WaitForResponse != nil && !*in.WaitForResponse {
		return "", nil
	}

	text, err := s.pipeline.Run(ctx, pipeline.Options{
		Mode:        in.Mode,
		DefaultMode: s.Mode(),
	})
	if errors.Is(err, audio.ErrNoSpeech) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("listening failed: %w", err)
	}
	return text, nil
}

// SetMode changes the default mode for later converse calls
func (s *Server) SetMode(mode string) string {
	valid := s.validModes()
	if !slices.Contains(valid, mode) {
		return fmt.Sprintf("Unknown mode: %s. Valid: %s", mode, strings.Join(valid, ", "))
	}

	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	s.log.Info().Str("mode", mode).Msg("Default mode changed")
	return "Default mode set to: " + mode
}

func (s *Server) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Server) validModes() []string {
	if s.modes == nil {
		return nil
	}
	valid := slices.Clone(s.modes())
	slices.Sort(valid)
	return valid
}

func (s *Server) show(ctx context.Context, message string) {
	if s.speaker != nil {
		err := s.speaker.Speak(ctx, message)
		if err == nil {
			return
		}
		s.log.Warn().Err(err).Msg("Speech failed, showing notification instead")
	}
	if err := s.notifier.Notify(message, output.UrgencyNormal); err != nil {
		s.log.Debug().Err(err).Msg("Notification failed")
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
