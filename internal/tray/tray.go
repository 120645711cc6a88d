package tray

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/w2kr1stn/babel-tower/internal/config"
	"github.com/w2kr1stn/babel-tower/internal/logging"
	"github.com/w2kr1stn/babel-tower/internal/processing"
)

// Listener is the daemon as seen from the menu
type Listener interface {
	SetMode(mode string)
	Mode() string
	Pause()
	Resume()
	IsPaused() bool
}

type UI struct {
	listener Listener
	cfg      *config.Config
	version  string
	log      zerolog.Logger
	// quit is called when the user picks Quit
	quit func()
	// setTitle renders the tray title
	setTitle func(string)

	// Menu items
	mPause *systray.MenuItem
	mMode  *systray.MenuItem
}

// Status update methods for the pipeline to call
func (u *UI) SetIdle() {
	u.pipelineStatus("idle")
}

func (u *UI) SetListening() {
	u.pipelineStatus("listening")
}

func (u *UI) SetTranscribing() {
	u.pipelineStatus("transcribing")
}

func (u *UI) SetProcessing() {
	u.pipelineStatus("processing")
}

func (u *UI) SetError() {
	u.pipelineStatus("error")
}

// pipelineStatus shows status, or the paused icon while listening is paused
func (u *UI) pipelineStatus(status string) {
	if u.listener != nil && u.listener.IsPaused() {
		status = "paused"
	}
	u.updateStatus(status)
}

func New(cfg *config.Config, version string, log zerolog.Logger) *UI {
	return &UI{
		cfg:     cfg,
		version: version,
		log:     log,
		quit:    func() {},

		setTitle: systray.SetTitle,
	}
}

// SetListener sets the daemon reference (for circular dependency resolution)
func (u *UI) SetListener(l Listener) {
	u.listener = l
}

// Run shows the tray icon until ctx is done or the user quits. It must be
// called from the main goroutine.
func (u *UI) Run(ctx context.Context, quit func()) error {
	if quit != nil {
		u.quit = quit
	}

	stop := context.AfterFunc(ctx, systray.Quit)
	defer stop()

	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip(fmt.Sprintf("Babel Tower %s", u.version))

	u.mPause = systray.AddMenuItem("Pause Listening", "Stop listening for speech")
	systray.AddSeparator()

	u.mMode = systray.AddMenuItem(modeTitle(u.listener.Mode()), "Default processing mode")
	u.buildModeMenu()

	systray.AddSeparator()
	mLogs := systray.AddMenuItem("Open Logs", "View application logs")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mLogs, mQuit)
}

func (u *UI) handleEvents(mLogs, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mPause.ClickedCh:
			u.togglePause()
		case <-mLogs.ClickedCh:
			u.openLogs()
		case <-mQuit.ClickedCh:
			u.quit()
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildModeMenu() {
	modes := processing.AvailableModes(u.cfg.Processing.PromptsDir)
	if len(modes) == 0 {
		u.log.Warn().Str("dir", u.cfg.Processing.PromptsDir).Msg("No processing modes found")
		return
	}

	modeItems := make(map[string]*systray.MenuItem)
	for _, mode := range modes {
		item := u.mMode.AddSubMenuItem(mode, "")
		if mode == u.currentMode() {
			item.Check()
		}
		modeItems[mode] = item
	}

	for mode, item := range modeItems {
		go func(m string, menuItem *systray.MenuItem) {
			for {
				<-menuItem.ClickedCh
				// Uncheck all other items
				for other, itm := range modeItems {
					if other != m {
						itm.Uncheck()
					}
				}
				menuItem.Check()
				u.selectMode(m)
			}
		}(mode, item)
	}
}

// selectMode makes mode the daemon's default and persists it
func (u *UI) selectMode(mode string) {
	old := u.currentMode()
	u.listener.SetMode(mode)
	u.cfg.Processing.DefaultMode = mode
	if u.mMode != nil {
		u.mMode.SetTitle(modeTitle(mode))
	}
	if err := u.cfg.Save(); err != nil {
		u.log.Error().Err(err).Msg("Failed to save config")
	}
	u.log.Info().Str("from", old).Str("to", mode).Msg("Changed mode")
}

func (u *UI) currentMode() string {
	if mode := u.listener.Mode(); mode != "" {
		return mode
	}
	return u.cfg.Processing.DefaultMode
}

func (u *UI) togglePause() {
	if u.listener.IsPaused() {
		u.listener.Resume()
		u.mPause.SetTitle("Pause Listening")
		u.updateStatus("idle")
		u.log.Info().Msg("Listening resumed")
	} else {
		u.listener.Pause()
		u.mPause.SetTitle("Resume Listening")
		u.updateStatus("paused")
		u.log.Info().Msg("Listening paused")
	}
}

func (u *UI) openLogs() {
	name, args := openCommand(runtime.GOOS, logging.LogPath())
	if err := exec.Command(name, args...).Start(); err != nil {
		u.log.Error().Err(err).Msg("Failed to open log file")
	}
}

func (u *UI) onExit() {
	u.log.Debug().Msg("Tray closed")
}

// updateStatus sets the tray title with microphone emoji and status indicator
func (u *UI) updateStatus(status string) {
	u.setTitle(titleForStatus(status))
}

func titleForStatus(status string) string {
	return fmt.Sprintf("🎤 %s", emojiForStatus(status))
}

func modeTitle(mode string) string {
	if mode == "" {
		return "Mode: auto"
	}
	return "Mode: " + mode
}

// openCommand returns the command that opens path in the default app
func openCommand(goos, path string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{path}
	case "windows":
		return "cmd", []string{"/c", "start", "", path}
	default:
		return "xdg-open", []string{path}
	}
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "listening":
		return "🔴" // Red - recording
	case "transcribing":
		return "🟠" // Orange - speech to text
	case "processing":
		return "🟡" // Yellow - rewriting
	case "paused":
		return "⏸️"
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}
