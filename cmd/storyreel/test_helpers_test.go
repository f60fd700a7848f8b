package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"storyreel/internal/config"
	"storyreel/internal/movie"
	"storyreel/internal/notifications"
	"storyreel/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	backend    *testsupport.FakeBackend
	configPath string
}

func setupCLITestEnv(t *testing.T, state testsupport.State) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Logging.Level = "error"
	t.Setenv("HOME", filepath.Join(testsupport.BaseDir(cfg), "home"))
	t.Setenv(envProject, "")
	t.Setenv(envChapter, "")

	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "storyreel.toml")
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{
		cfg:        cfg,
		backend:    testsupport.NewFakeBackend(state),
		configPath: configPath,
	}
}

// run executes the command tree with the fake backend wired in and returns
// captured stdout and stderr.
func (env *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return env.runContext(t, context.Background(), args...)
}

// runContext executes the root command with args under execCtx.
func (env *cliTestEnv) runContext(t *testing.T, execCtx context.Context, args ...string) (string, string, error) {
	t.Helper()

	ctx := newCommandContext()
	ctx.newBackend = func(*config.Config, *slog.Logger) (movie.Backend, error) {
		return env.backend, nil
	}
	ctx.newNotifier = func(*config.Config) notifications.Service {
		return notifications.NewNoop()
	}

	root := newRootCommand(ctx)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := root.ExecuteContext(execCtx)
	return stdout.String(), stderr.String(), err
}

// runChapter runs args scoped to project p1 and chapter ch1.
func (env *cliTestEnv) runChapter(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return env.run(t, append([]string{"--project", "p1", "--chapter", "ch1"}, args...)...)
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n--- output ---\n%s", needle, haystack)
	}
}

func pipelineState() testsupport.State {
	return testsupport.State{
		Characters: []movie.Character{
			{ID: "c1", ProjectID: "p1", Name: "Ada", Role: "lead"},
			{ID: "c2", ProjectID: "p1", Name: "Ben"},
		},
		Script: &movie.Script{
			ID:        "s1",
			ChapterID: "ch1",
			Scenes: []movie.Scene{
				{ID: "sc1", OrderIndex: 0, Shots: []movie.Shot{
					{ID: "sh1", SceneID: "sc1", OrderIndex: 1, Dialogue: "Hold the line."},
					{ID: "sh2", SceneID: "sc1", OrderIndex: 2},
				}},
			},
		},
	}
}

func withAvatars(state testsupport.State) testsupport.State {
	for i := range state.Characters {
		state.Characters[i].AvatarURL = "/avatars/" + state.Characters[i].ID + ".png"
	}
	return state
}
