package commands

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/comicsub/internal/conventions"
	"github.com/slok/comicsub/internal/log"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// StorageFile stores the dataset as a JSON document.
	StorageFile = "file"
	// StorageSQLite stores the dataset on a SQLite database.
	StorageSQLite = "sqlite"
	// StoragePostgres stores the dataset on a PostgreSQL database.
	StoragePostgres = "postgres"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug          bool
	NoLog          bool
	NoColor        bool
	LoggerType     string
	DataDir        string
	ConfigPath     string
	Executable     string
	ToolEnv        []string
	CommandTimeout time.Duration
	Storage        string
	PostgresDSN    string
	Mail           MailFlags

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// MailFlags are the SMTP settings flags, they override the settings file.
type MailFlags struct {
	Server    string
	Port      int
	Username  string
	Password  string
	Recipient string
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDataDir := filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
	app.Flag("data-dir", "Directory of the dataset, the database and the cover cache.").Default(defaultDataDir).StringVar(&c.DataDir)
	app.Flag("config", "Path to the YAML settings file.").StringVar(&c.ConfigPath)
	app.Flag("executable", "Path to the venera executable.").StringVar(&c.Executable)
	app.Flag("tool-env", "Extra KEY=VALUE environment variable for the tool, a bare KEY is taken from the current environment (repeatable).").StringsVar(&c.ToolEnv)
	app.Flag("command-timeout", "Max duration of every tool command.").DurationVar(&c.CommandTimeout)
	app.Flag("storage", "Dataset storage.").Default(StorageFile).EnumVar(&c.Storage, StorageFile, StorageSQLite, StoragePostgres)
	app.Flag("postgres-dsn", "PostgreSQL connection string, required by the postgres storage.").StringVar(&c.PostgresDSN)

	app.Flag("mail-server", "SMTP server.").StringVar(&c.Mail.Server)
	app.Flag("mail-port", "SMTP port, 465 uses implicit TLS.").IntVar(&c.Mail.Port)
	app.Flag("mail-username", "SMTP username, also used as sender.").StringVar(&c.Mail.Username)
	app.Flag("mail-password", "SMTP password.").StringVar(&c.Mail.Password)
	app.Flag("mail-recipient", "Recipient of the update mails.").StringVar(&c.Mail.Recipient)

	return c
}
