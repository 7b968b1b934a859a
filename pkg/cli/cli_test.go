package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/stubd/pkg/config"
)

const helloDoc = `{
	"id": "hello",
	"request": {"matchers": [
		{"kind": "path", "type": "exact", "pattern": "/test"},
		{"kind": "method", "type": "exact", "pattern": "GET"}
	]},
	"response": {"status": 200, "body": "Hello world!"}
}`

const brokenDoc = `{"request": {"matchers": [{"kind": "path", "type": "regex", "pattern": "("}]}, "response": {}}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCommand(&out, &out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "stubd dev (commit none, built unknown)\n", out)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.json", helloDoc)
	writeFile(t, dir, "nested/todo.yaml", "request:\n  matchers: []\nresponse:\n  body: todo\n")

	out, err := execute(t, "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ok   "+filepath.Join(dir, "hello.json"))
	assert.Contains(t, out, "2 documents, 2 mappings, 0 invalid")

	bad := writeFile(t, t.TempDir(), "bad.json", brokenDoc)
	out, err = execute(t, "validate", bad, filepath.Join(dir, "hello.json"))
	assert.ErrorIs(t, err, errInvalidDocuments)
	assert.Contains(t, out, "FAIL "+bad)
	assert.Contains(t, out, "2 documents, 1 mappings, 1 invalid")

	_, err = execute(t, "validate", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	_, err = execute(t, "validate")
	assert.Error(t, err)
}

func TestBindFlags(t *testing.T) {
	v := config.NewViper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 1, "")
	fs.Bool("allow-partial", false, "")
	require.NoError(t, bindFlags(v, fs, map[string]string{"port": "port", "allow-partial": "allowPartialMapping"}))

	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 9091, cfg.Port, "unset flags keep the configured value")

	require.NoError(t, fs.Parse([]string{"--port", "8080", "--allow-partial"}))
	cfg, err = config.Load(v, "")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.AllowPartialMapping)

	assert.Error(t, bindFlags(v, fs, map[string]string{"nope": "nope"}))
}

func TestRunServe(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "hello.json", helloDoc)
	writeFile(t, dir, "broken.json", brokenDoc)

	cfg := config.Defaults()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.MappingsDir = dir
	cfg.WatchStaticMappings = true
	cfg.LogLevel = "error"

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, &cfg, func(addr string) { addrCh <- addr }) }()

	var base string
	select {
	case addr := <-addrCh:
		base = "http://" + addr
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	fetch := func(method, path, body string) (int, string) {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, base+path, r)
		if err != nil {
			return 0, ""
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return 0, ""
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(data)
	}

	status, body := fetch(http.MethodGet, "/test", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Hello world!", body)

	status, _ = fetch(http.MethodPost, "/test", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = fetch(http.MethodGet, "/__admin/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"status":"ok","mappings":1}`, body)

	status, _ = fetch(http.MethodPost, "/__admin/mappings",
		`{"id":"dyn","request":{"matchers":[{"kind":"path","type":"exact","pattern":"/dyn"}]},"response":{"body":"dynamic"}}`)
	assert.Equal(t, http.StatusCreated, status)
	status, body = fetch(http.MethodGet, "/dyn", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "dynamic", body)

	writeFile(t, dir, "later.json",
		`{"id":"later","request":{"matchers":[{"kind":"path","type":"exact","pattern":"/later"}]},"response":{"body":"watched"}}`)
	assert.Eventually(t, func() bool {
		status, body := fetch(http.MethodGet, "/later", "")
		return status == http.StatusOK && body == "watched"
	}, 5*time.Second, 50*time.Millisecond)

	status, body = fetch(http.MethodGet, "/__admin/metrics", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `stubd_mapping_hits_total{mapping_id="hello"} 1`)

	status, body = fetch(http.MethodGet, "/__admin/requests/unmatched", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"path":"/test"`)
	assert.Contains(t, body, `"method":"POST"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunServe_AdminDisabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.MappingsDir = filepath.Join(t.TempDir(), "absent")
	cfg.AdminEnabled = false
	cfg.NotFoundStatus = http.StatusTeapot
	cfg.LogLevel = "error"

	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, &cfg, func(addr string) { addrCh <- addr }) }()

	addr := <-addrCh
	resp, err := http.Get("http://" + addr + "/__admin/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	cancel()
	assert.NoError(t, <-done)
}
