package comicsub

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/slok/comicsub/test/integration/testutils"
)

// Config holds integration test configuration loaded from environment variables.
type Config struct {
	Binary string
}

func (c *Config) defaults() error {
	if c.Binary == "" {
		c.Binary = "comicsub"
	}

	// go test changes the CWD to the test package directory.
	if !filepath.IsAbs(c.Binary) {
		return fmt.Errorf("COMICSUB_INTEGRATION_BINARY must be an absolute path, got %q", c.Binary)
	}
	if _, err := os.Stat(c.Binary); err != nil {
		return fmt.Errorf("comicsub binary not found at %q: %w", c.Binary, err)
	}

	return nil
}

// NewConfig loads integration test configuration from environment variables.
// If the config is invalid or the activation env var is not set, the test is skipped.
func NewConfig(t *testing.T) Config {
	t.Helper()

	const (
		envActivation = "COMICSUB_INTEGRATION"
		envBinary     = "COMICSUB_INTEGRATION_BINARY"
	)

	if ok, _ := strconv.ParseBool(os.Getenv(envActivation)); !ok {
		t.Skipf("Skipping due to integration tests not activated (%s=true)", envActivation)
	}

	c := Config{Binary: os.Getenv(envBinary)}
	if err := c.defaults(); err != nil {
		t.Skipf("Skipping due to invalid config: %s", err)
	}

	return c
}

// fakeTool reports two comics on the subscription summary and echoes back
// the comic requested on single comic refreshes.
const fakeTool = `#!/bin/sh
shift
case "$1" in
updatesubscribe)
	if [ "$2" = "--update-comic-by-id-type" ]; then
		echo '[CLI PRINT] {"message":"Progress","data":{"current":1,"total":1,"comic":{"id":"'"$3"'","name":"Single","type":"'"$4"'","updateTime":"2024-03-01"}}}'
		exit 0
	fi
	echo "checking subscriptions"
	echo '[CLI PRINT] {"message":"Progress","data":{"current":1,"total":2,"comic":{"id":"1","name":"First","type":"src","updateTime":"2024-02-01"}}}'
	echo '[CLI PRINT] {"message":"Progress","data":{"current":2,"total":2,"comic":{"id":"2","name":"Second","type":"src","updateTime":"2023-01-01"}}}'
	echo '[CLI PRINT] {"message":"Updated comics list.","data":["1"]}'
	;;
*)
	echo "$1 done"
	;;
esac
`

// Env is the environment of a single test: its own data dir and fake tool.
type Env struct {
	Config  Config
	DataDir string
	Tool    string
}

// NewEnv prepares an isolated data dir with the fake tool.
func NewEnv(t *testing.T, config Config) Env {
	t.Helper()

	dir := t.TempDir()
	tool := filepath.Join(dir, "venera")
	if err := os.WriteFile(tool, []byte(fakeTool), 0o755); err != nil {
		t.Fatalf("could not write fake tool: %s", err)
	}

	return Env{Config: config, DataDir: filepath.Join(dir, "data"), Tool: tool}
}

// Run runs a comicsub command on the test environment.
func (e Env) Run(ctx context.Context, cmdArgs string) (stdout, stderr []byte, err error) {
	env := []string{
		"COMICSUB_DATA_DIR=" + e.DataDir,
		"COMICSUB_EXECUTABLE=" + e.Tool,
	}
	return testutils.RunComicsub(ctx, env, e.Config.Binary, cmdArgs, true)
}
