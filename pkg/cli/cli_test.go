package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/gt"

	"github.com/chiliseed/chiliseed-cli/pkg/cli"
)

func newExecutionServer(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/api/execution/status/{slug}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Invalid token."})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"slug":       chi.URLParam(r, "slug"),
			"is_success": chi.URLParam(r, "slug") == "ok",
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Wait(t *testing.T) {
	srv := newExecutionServer(t)
	ctx := context.Background()
	base := []string{"chiliseed", "--log-level", "error", "--api-host", srv.URL}

	t.Run("succeeded job", func(t *testing.T) {
		args := append(append([]string{}, base...), "--api-token", "tok", "wait", "--run", "ok")
		gt.NoError(t, cli.Run(ctx, args))
	})

	t.Run("failed job", func(t *testing.T) {
		args := append(append([]string{}, base...), "--api-token", "tok", "wait", "--run", "ng")
		gt.Error(t, cli.Run(ctx, args))
	})

	t.Run("bad token", func(t *testing.T) {
		args := append(append([]string{}, base...), "--api-token", "other", "wait", "--run", "ok")
		gt.Error(t, cli.Run(ctx, args))
	})
}

func TestRun_InvalidLogLevel(t *testing.T) {
	err := cli.Run(context.Background(), []string{"chiliseed", "--log-level", "loud", "wait", "--run", "ok"})
	gt.Error(t, err)
}

func TestRun_DeployRequiresService(t *testing.T) {
	err := cli.Run(context.Background(), []string{"chiliseed", "--log-level", "error", "--api-token", "tok", "deploy"})
	gt.Error(t, err)
}

func TestRun_DeployDryRun(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}

	dir := t.TempDir()
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0644))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "id.pem"), []byte("key"), 0600))
	for _, args := range [][]string{
		{"init", "-q"},
		{"add", "main.go"},
		{"commit", "-q", "-m", "init"},
	} {
		cmd := exec.Command("git", append([]string{
			"-c", "user.name=test",
			"-c", "user.email=test@example.com",
			"-c", "commit.gpgsign=false",
		}, args...)...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}

	var stdout, stderr bytes.Buffer
	err := cli.Run(context.Background(), []string{
		"chiliseed", "--log-level", "error",
		"deploy", "--service", "svc", "--work-dir", dir, "--dry-run",
		"--build-arg", "HOSTS=a,b", "--build-arg", "MODE=prod",
	}, cli.WithOutput(&stdout, &stderr))
	gt.NoError(t, err)

	out := stdout.String()
	gt.String(t, out).Contains("--build-arg HOSTS=a,b --build-arg MODE=prod")
	gt.String(t, out).Contains("build/main.go")
	gt.False(t, bytes.Contains(stdout.Bytes(), []byte("id.pem")))

	_, statErr := os.Stat(filepath.Join(dir, "_build"))
	gt.True(t, os.IsNotExist(statErr))
	matches, err := filepath.Glob(filepath.Join(dir, "*.tar.gz"))
	gt.NoError(t, err)
	gt.Equal(t, len(matches), 0)
}
