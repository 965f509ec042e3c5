package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"hoststat/internal/apperr"
)

func runArgs(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	code := run(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRun_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing port", nil, "missing port"},
		{"non numeric port", []string{"http"}, "invalid port"},
		{"port out of range", []string{"70000"}, "invalid port"},
		{"negative port", []string{"--", "-1"}, "invalid port"},
		{"extra arguments", []string{"8080", "9090"}, "unexpected arguments"},
		{"unknown flag", []string{"-bogus", "8080"}, "flag provided but not defined"},
		{"missing config", []string{"-config", "/nonexistent/hoststat.toml", "8080"}, "failed to load config"},
		{"bad interval", []string{"-cpu-interval", "0s", "8080"}, "invalid config"},
		{"bad log format", []string{"-log-format", "xml", "8080"}, "invalid config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runArgs(t, tt.args...)
			assert.Equal(t, apperr.ExitErrorConfig, code)
			assert.Contains(t, stderr, tt.want)
		})
	}
}

func TestRun_InvalidEnv(t *testing.T) {
	t.Setenv("HOSTSTAT_CPU_INTERVAL", "fast")
	code, _, stderr := runArgs(t, "8080")
	assert.Equal(t, apperr.ExitErrorConfig, code)
	assert.Contains(t, stderr, "HOSTSTAT_CPU_INTERVAL")
}

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runArgs(t, "-version")
	assert.Equal(t, apperr.ExitSuccess, code)
	assert.Equal(t, "hoststat dev\n", stdout)
}

func TestRun_HashPassword(t *testing.T) {
	code, stdout, _ := runArgs(t, "-hash-password", "hunter2")
	require.Equal(t, apperr.ExitSuccess, code)

	hash := strings.TrimSpace(stdout)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
}

func TestRun_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	code, _, stderr := runArgs(t, "-gpu-device", "/nonexistent", fmt.Sprint(port))
	assert.Equal(t, apperr.ExitErrorGeneric, code)
	assert.Contains(t, stderr, "failed to listen")
}

func TestRun_CanceledContextShutsDown(t *testing.T) {
	code, _, stderr := runArgs(t, "-gpu-device", "/nonexistent", "0")
	assert.Equal(t, apperr.ExitSuccess, code)
	assert.Contains(t, stderr, "shutting down")
}

func TestRun_ServesSnapshots(t *testing.T) {
	dir := t.TempDir()
	device := filepath.Join(dir, "card1", "device")
	require.NoError(t, os.MkdirAll(device, 0o755))
	for name, value := range map[string]string{
		"uevent":              "DRIVER=amdgpu",
		"mem_info_vram_total": "4294967296",
		"mem_info_vram_used":  "1073741824",
		"gpu_busy_percent":    "50",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(device, name), []byte(value+"\n"), 0o644))
	}

	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	var stderr bytes.Buffer
	go func() {
		done <- run(ctx, []string{"-gpu-device", device, "-cpu-interval", "20ms", fmt.Sprint(port)}, &bytes.Buffer{}, &stderr)
	}()

	url := fmt.Sprintf("http://127.0.0.1:%d/", port)
	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get(url)
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 5*time.Second, 20*time.Millisecond)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body, 12)
	assert.Equal(t, "4.0 GiB", body["gpu_vram_total"])
	assert.Equal(t, "1.0 GiB", body["gpu_vram_used"])
	assert.Equal(t, 0.25, body["gpu_vram_usage"])
	assert.Equal(t, 0.5, body["gpu_usage"])

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, apperr.ExitSuccess, code)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
