package services_test

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/KBesada24/log-analyzer-plugins/handlers"
	"github.com/KBesada24/log-analyzer-plugins/plugins"
	"github.com/KBesada24/log-analyzer-plugins/utils"
)

// helperEnv makes the test binary act as a stdio plugin instead of running tests
const helperEnv = "LOG_PLUGIN_TEST_HELPER"

// exitOnFirstRequest is a helper mode that reads one request and exits without answering
const exitOnFirstRequest = "exit-on-first-request"

// noisyStartup is a helper mode that prints a plain text banner on stdout and
// then hangs without ever exiting on its own
const noisyStartup = "noisy-startup"

// pidFileEnv names a file the helper writes its pid to
const pidFileEnv = "LOG_PLUGIN_TEST_PIDFILE"

func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(runHelperPlugin(mode))
	}
	os.Exit(m.Run())
}

func runHelperPlugin(mode string) int {
	utils.InitLogger("error", "json")

	if path := os.Getenv(pidFileEnv); path != "" {
		os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600)
	}

	switch mode {
	case exitOnFirstRequest:
		bufio.NewReader(os.Stdin).ReadString('\n')
		return 3
	case noisyStartup:
		io.WriteString(os.Stdout, "plugin starting up (not json)\n")
		time.Sleep(time.Hour)
		return 4
	}

	plugin, err := plugins.New(mode)
	if err != nil {
		io.WriteString(os.Stderr, err.Error())
		return 2
	}
	if err := handlers.NewStdioServer(plugin, 0).Serve(context.Background(), os.Stdin, os.Stdout); err != nil {
		return 1
	}
	return 0
}

func quietLogger() *utils.Logger {
	logger := utils.NewLogger("error", "json")
	logger.SetOutput(io.Discard)
	return logger
}
