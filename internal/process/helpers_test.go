package process

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock"
	"github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/edvin/miniforge/internal/tasklog"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// script writes an executable shell script and returns a Run prefix that
// invokes it.
func script(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return shellquote.Join(p)
}

func newRunner() *Runner {
	return NewRunner(false, clock.WallClock, zerolog.Nop())
}

func testOptions() Options {
	return Options{
		StopTimeout:      2 * time.Second,
		SubscribeTimeout: 2 * time.Second,
		GracePeriod:      time.Minute,
		Clock:            clock.WallClock,
	}
}

// collect reads entries until the finish entry.
func collect(t *testing.T, ch <-chan tasklog.Entry) []tasklog.Entry {
	t.Helper()
	var entries []tasklog.Entry
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e := <-ch:
			entries = append(entries, e)
			if e.Type == tasklog.Finish {
				return entries
			}
		case <-timeout:
			t.Fatalf("no finish entry, got %+v", entries)
			return nil
		}
	}
}

// waitFor reads entries until one of type typ contains substr.
func waitFor(t *testing.T, ch <-chan tasklog.Entry, typ tasklog.EntryType, substr string) []tasklog.Entry {
	t.Helper()
	var entries []tasklog.Entry
	timeout := time.After(10 * time.Second)
	for {
		select {
		case e := <-ch:
			entries = append(entries, e)
			if e.Type == typ && strings.Contains(e.Message, substr) {
				return entries
			}
		case <-timeout:
			t.Fatalf("no %s entry containing %q, got %+v", typ, substr, entries)
			return nil
		}
	}
}

func find(entries []tasklog.Entry, typ tasklog.EntryType, substr string) (tasklog.Entry, bool) {
	for _, e := range entries {
		if e.Type == typ && strings.Contains(e.Message, substr) {
			return e, true
		}
	}
	return tasklog.Entry{}, false
}
