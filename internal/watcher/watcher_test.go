package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
	"github.com/therealutkarshpriyadarshi/logscope/internal/metrics"
)

const testDebounce = 100 * time.Millisecond

func startWatcher(t *testing.T, dir string, collector *metrics.Collector) *Watcher {
	t.Helper()
	w, err := New(config.WatcherConfig{Dir: dir, Extension: ".log", Debounce: testDebounce}, logging.Nop(), collector)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestWatcher_CoalescesUpload(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, nil)

	path := filepath.Join(dir, "log_1700000000000.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	for i := 0; i < 5; i++ {
		f.WriteString("127.0.0.1 - - [10/Oct/2023:13:55:36 +0000] \"GET / HTTP/1.1\" 200 1 \"-\" \"-\"\n")
		time.Sleep(10 * time.Millisecond)
	}
	f.Close()

	ev := nextEvent(t, w)
	if ev.Path != path {
		t.Errorf("Path = %s, want %s", ev.Path, path)
	}
	if ev.Op != OpCreated {
		t.Errorf("Op = %s, want %s", ev.Op, OpCreated)
	}
	if ev.Size == 0 {
		t.Error("Size should reflect the finished file")
	}

	// no second event for the same upload
	select {
	case ev := <-w.Events():
		t.Errorf("unexpected extra event: %+v", ev)
	case <-time.After(3 * testDebounce):
	}
}

func TestWatcher_IgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir, nil)

	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644)
	os.WriteFile(filepath.Join(dir, "access.LOG"), []byte("x"), 0644)

	ev := nextEvent(t, w)
	if filepath.Base(ev.Path) != "access.LOG" {
		t.Errorf("got event for %s, want access.LOG", ev.Path)
	}
}

func TestWatcher_Remove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.log")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	collector := metrics.NewCollector()
	w := startWatcher(t, dir, collector)

	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to remove file: %v", err)
	}

	ev := nextEvent(t, w)
	if ev.Op != OpRemoved || ev.Path != path {
		t.Errorf("event = %+v, want removal of %s", ev, path)
	}
}

func TestWatcher_Existing(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.log"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("x"), 0644)
	os.Mkdir(filepath.Join(dir, "sub.log"), 0755)

	w, err := New(config.WatcherConfig{Dir: dir}, logging.Nop(), nil)
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	defer w.Stop()

	paths, err := w.Existing()
	if err != nil {
		t.Fatalf("Existing() error = %v", err)
	}
	if len(paths) != 1 || filepath.Base(paths[0]) != "a.log" {
		t.Errorf("Existing() = %v, want [a.log]", paths)
	}
}

func TestWatcher_StopClosesEvents(t *testing.T) {
	w := startWatcher(t, t.TempDir(), nil)
	w.Stop()

	if _, ok := <-w.Events(); ok {
		t.Error("events channel should be closed after Stop")
	}
	// second Stop from Cleanup must not panic
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(config.WatcherConfig{}, logging.Nop(), nil); err == nil {
		t.Error("expected error for empty dir")
	}
	if _, err := New(config.WatcherConfig{Dir: filepath.Join(t.TempDir(), "missing")}, logging.Nop(), nil); err == nil {
		t.Error("expected error for missing dir")
	}

	file := filepath.Join(t.TempDir(), "file.log")
	os.WriteFile(file, []byte("x"), 0644)
	if _, err := New(config.WatcherConfig{Dir: file}, logging.Nop(), nil); err == nil {
		t.Error("expected error when dir is a file")
	}
}
