// Command wardbot runs the moderation/verification daemon: one process
// consuming Matrix events through platform.Adapter and the reminder worker,
// both wired together by internal/wardbot/app.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bdobrica/wardbot/common/environment"
	"github.com/bdobrica/wardbot/common/redact"
	"github.com/bdobrica/wardbot/common/version"
	"github.com/bdobrica/wardbot/internal/wardbot/app"
	"github.com/bdobrica/wardbot/internal/wardbot/config"
)

func main() {
	fmt.Printf("wardbot %s (%s) built at %s\n", version.Version, version.GitCommit, version.BuildTime)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "wardbot: warning: .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wardbot: %v\n", err)
		os.Exit(1)
	}

	matrixCfg, err := loadMatrixConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "wardbot: %v\n", err)
		os.Exit(1)
	}

	configureLogging(cfg.LogLevel, cfg.BotToken, cfg.SecretKey, matrixCfg.AccessToken)

	bot, err := app.New(&app.Config{Base: cfg, Matrix: matrixCfg})
	if err != nil {
		fmt.Fprintf(os.Stderr, "wardbot: failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer bot.Stop()

	if err := bot.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "wardbot: %v\n", err)
		os.Exit(1)
	}
}

// configureLogging sets zerolog's global level from LOG_LEVEL, switches to a
// human-readable console writer on an interactive terminal (falling back to
// plain JSON lines otherwise, the usual posture for a container log driver),
// and wraps the writer so BOT_TOKEN/SECRET_KEY/the Matrix access token are
// scrubbed from any line that would otherwise carry them verbatim.
func configureLogging(levelName string, secrets ...string) {
	level, err := zerolog.ParseLevel(levelName)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stderr
	if fi, statErr := os.Stderr.Stat(); statErr == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	log.Logger = log.Output(redactingWriter{w: w, secrets: secrets})
}

// redactingWriter scrubs a fixed set of sensitive values from every line
// before it reaches the underlying writer.
type redactingWriter struct {
	w       io.Writer
	secrets []string
}

func (r redactingWriter) Write(p []byte) (int, error) {
	if _, err := r.w.Write([]byte(redact.String(string(p), r.secrets...))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// loadMatrixConfig reads the concrete Matrix transport settings. These have
// no entry in spec.md's configuration table (the bot-API client is an
// out-of-scope collaborator there), so they are read directly rather than
// through config.Load.
func loadMatrixConfig() (app.MatrixConfig, error) {
	homeserver, err := environment.RequiredString("MATRIX_HOMESERVER")
	if err != nil {
		return app.MatrixConfig{}, err
	}
	botUserID, err := environment.RequiredString("MATRIX_BOT_USER_ID")
	if err != nil {
		return app.MatrixConfig{}, err
	}
	accessToken, err := environment.RequiredString("MATRIX_ACCESS_TOKEN")
	if err != nil {
		return app.MatrixConfig{}, err
	}
	groupRoomID, err := environment.RequiredString("MATRIX_GROUP_ROOM_ID")
	if err != nil {
		return app.MatrixConfig{}, err
	}

	return app.MatrixConfig{
		Homeserver:  homeserver,
		BotUserID:   botUserID,
		AccessToken: accessToken,
		GroupRoomID: groupRoomID,
		BotUsername: environment.StringOr("BOT_USERNAME", "wardbot"),
	}, nil
}
