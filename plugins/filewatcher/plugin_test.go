package filewatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/serialship/pkg/log"
	"github.com/bft-labs/serialship/pkg/serialship"
)

// fakeSender resolves to a fixed bundle and records sends.
type fakeSender struct {
	mu     sync.Mutex
	bundle serialship.Bundle
	errs   []error
	sends  []serialship.SendRequest
}

func (f *fakeSender) Resolve(target, output string) (serialship.Bundle, error) {
	return f.bundle, nil
}

func (f *fakeSender) Send(ctx context.Context, req serialship.SendRequest) (serialship.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, req)
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	return serialship.Report{Name: req.Target}, err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func startPlugin(t *testing.T, cfg Config, sender *fakeSender) *Plugin {
	t.Helper()
	p := New(cfg)
	err := p.Initialize(context.Background(), serialship.PluginConfig{
		Logger: log.NewNoopLogger(),
		Client: sender,
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	t.Cleanup(func() {
		if err := p.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
	return p
}

func TestPlugin_PushesOnChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "model_forest.bin")
	writeFile(t, file, "v1")

	sender := &fakeSender{bundle: serialship.Bundle{
		Session: "model_forest.bin",
		Files:   []serialship.FileSpec{{LocalPath: file, RemoteName: "model_forest.bin"}},
	}}
	cfg := DefaultConfig(file)
	cfg.DebounceDelay = 200 * time.Millisecond
	startPlugin(t, cfg, sender)

	for _, v := range []string{"v2", "v3", "v4"} {
		writeFile(t, file, v)
	}
	waitFor(t, func() bool { return sender.count() >= 1 })

	time.Sleep(400 * time.Millisecond)
	if got := sender.count(); got != 1 {
		t.Errorf("sends = %d, want 1 (writes should be debounced)", got)
	}
	if sender.sends[0].Target != file {
		t.Errorf("Target = %q, want %q", sender.sends[0].Target, file)
	}
}

func TestPlugin_IgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "model_forest.bin")
	writeFile(t, file, "v1")

	sender := &fakeSender{bundle: serialship.Bundle{
		Files: []serialship.FileSpec{{LocalPath: file, RemoteName: "model_forest.bin"}},
	}}
	cfg := DefaultConfig(file)
	cfg.DebounceDelay = 20 * time.Millisecond
	startPlugin(t, cfg, sender)

	writeFile(t, filepath.Join(dir, "notes.txt"), "unrelated")
	writeFile(t, file+".part", "partial")
	time.Sleep(300 * time.Millisecond)

	if got := sender.count(); got != 0 {
		t.Errorf("sends = %d, want 0", got)
	}
}

func TestPlugin_RetriesFailedPush(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.bin")
	writeFile(t, file, "v1")

	sender := &fakeSender{
		bundle: serialship.Bundle{Files: []serialship.FileSpec{{LocalPath: file, RemoteName: "a.bin"}}},
		errs:   []error{errors.New("no READY"), errors.New("no READY")},
	}
	var mu sync.Mutex
	var results []error
	cfg := Config{
		Target:        file,
		DebounceDelay: 20 * time.Millisecond,
		RetryInterval: 10 * time.Millisecond,
		MaxAttempts:   3,
		OnPush: func(_ serialship.Report, err error) {
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
		},
	}
	p := startPlugin(t, cfg, sender)

	writeFile(t, file, "v2")
	waitFor(t, func() bool { return p.Pushes() >= 3 })

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 3 {
		t.Fatalf("OnPush called %d times, want 3", len(results))
	}
	if results[0] == nil || results[1] == nil || results[2] != nil {
		t.Errorf("results = %v, want two failures then success", results)
	}
}

func TestPlugin_Relevant(t *testing.T) {
	dir := t.TempDir()
	forest := filepath.Join(dir, "mnist_forest.bin")
	writeFile(t, forest, "x")

	t.Run("model", func(t *testing.T) {
		p := New(Config{Target: "mnist"})
		sender := &fakeSender{bundle: serialship.Bundle{
			Files: []serialship.FileSpec{{LocalPath: forest, RemoteName: "mnist_forest.bin"}},
		}}
		if err := p.resolve(sender); err != nil {
			t.Fatalf("resolve() error = %v", err)
		}
		cases := map[string]bool{
			forest:                               true,
			filepath.Join(dir, "mnist_npd.bin"):  true,
			filepath.Join(dir, "other_dp.csv"):   false,
			filepath.Join(dir, "mnist_qtz.part"): false,
		}
		for name, want := range cases {
			if got := p.relevant(name); got != want {
				t.Errorf("relevant(%q) = %v, want %v", name, got, want)
			}
		}
	})

	t.Run("tree", func(t *testing.T) {
		tree := filepath.Join(dir, "bundle")
		nested := filepath.Join(tree, "sub", "a.csv")
		writeFile(t, nested, "x")
		p := New(Config{Target: tree})
		sender := &fakeSender{bundle: serialship.Bundle{
			Files: []serialship.FileSpec{{LocalPath: nested, RemoteName: "sub/a.csv"}},
		}}
		if err := p.resolve(sender); err != nil {
			t.Fatalf("resolve() error = %v", err)
		}
		if !p.dirs[filepath.Join(tree, "sub")] || !p.dirs[tree] {
			t.Errorf("dirs = %v, want tree and subdirectory", p.dirs)
		}
		if !p.relevant(filepath.Join(tree, "new.bin")) {
			t.Error("new file inside tree should be relevant")
		}
		if p.relevant(forest) {
			t.Error("file outside tree should not be relevant")
		}
	})
}

func TestPlugin_RequiresClient(t *testing.T) {
	p := New(DefaultConfig("x"))
	if err := p.Initialize(context.Background(), serialship.PluginConfig{Logger: log.NewNoopLogger()}); err == nil {
		t.Error("Initialize() without client should fail")
	}
}
