package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/slok/comicsub/internal/model"
	storageio "github.com/slok/comicsub/internal/storage/io"
)

const (
	defaultExecutable     = "venera_core/venera"
	defaultCommandTimeout = 120 * time.Second
	defaultUpdateInterval = 60 * time.Minute
	defaultMailPort       = 587
)

// loadSettings returns the settings of the settings file (if any) overridden
// by the flags.
func loadSettings(ctx context.Context, root RootCommand) (model.Settings, error) {
	var file model.Settings
	if root.ConfigPath != "" {
		abs, err := filepath.Abs(root.ConfigPath)
		if err != nil {
			return model.Settings{}, fmt.Errorf("invalid settings path: %w", err)
		}

		repo := storageio.NewConfigYAMLRepository(os.DirFS(filepath.Dir(abs)))
		file, err = repo.GetSettings(ctx, filepath.Base(abs))
		if err != nil {
			return model.Settings{}, fmt.Errorf("could not load settings: %w", err)
		}
	}

	return resolveSettings(file, root), nil
}

// resolveSettings merges the settings, flags win over the file and the file
// wins over the defaults.
func resolveSettings(file model.Settings, root RootCommand) model.Settings {
	s := file

	s.Executable = firstString(root.Executable, s.Executable, defaultExecutable)
	s.CommandTimeout = firstDuration(root.CommandTimeout, s.CommandTimeout, defaultCommandTimeout)
	s.UpdateInterval = firstDuration(s.UpdateInterval, defaultUpdateInterval)

	s.Mail.Server = firstString(root.Mail.Server, s.Mail.Server)
	s.Mail.Username = firstString(root.Mail.Username, s.Mail.Username)
	s.Mail.Password = firstString(root.Mail.Password, s.Mail.Password)
	s.Mail.Recipient = firstString(root.Mail.Recipient, s.Mail.Recipient)
	switch {
	case root.Mail.Port > 0:
		s.Mail.Port = root.Mail.Port
	case s.Mail.Port == 0:
		s.Mail.Port = defaultMailPort
	}

	return s
}

func firstString(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstDuration(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
