package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetMocks() {
	osWriteFile = os.WriteFile
	osExit = os.Exit
}

func TestHandlePanic(t *testing.T) {
	t.Cleanup(resetMocks)

	t.Run("writes panic log", func(t *testing.T) {
		var (
			written  string
			exitCode = -1
		)
		osWriteFile = func(name string, data []byte, perm os.FileMode) error {
			assert.Equal(t, panicLogFile, name)
			written = string(data)
			return nil
		}
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()

		assert.Equal(t, 2, exitCode)
		assert.True(t, strings.HasPrefix(written, "panic: boom"))
		assert.Contains(t, written, "goroutine")
	})

	t.Run("log write failure still exits", func(t *testing.T) {
		exitCode := -1
		osWriteFile = func(string, []byte, os.FileMode) error { return errors.New("read-only fs") }
		osExit = func(code int) { exitCode = code }

		func() {
			defer handlePanic()
			panic("boom")
		}()
		assert.Equal(t, 2, exitCode)
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		called := false
		osExit = func(int) { called = true }
		func() {
			defer handlePanic()
		}()
		assert.False(t, called)
	})
}

func TestInteractive(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("\n--version\nexit\nnever-run\n")

	err := interactive(context.Background(), in, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "uiprobe version")
	assert.Equal(t, 3, strings.Count(out.String(), "uiprobe > "), "prompt per line up to exit")
}

func TestInteractiveStopsAtEOF(t *testing.T) {
	var out bytes.Buffer
	err := interactive(context.Background(), strings.NewReader(""), &out)
	require.NoError(t, err)
	assert.Equal(t, "uiprobe > ", out.String())
}
