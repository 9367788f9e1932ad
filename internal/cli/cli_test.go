package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"
)

func TestMain(m *testing.M) {
	keyring.MockInit()
	os.Exit(m.Run())
}

// modelServer answers every request with one final message and records
// the request bodies.
type modelServer struct {
	*httptest.Server
	mu       sync.Mutex
	bodies   []map[string]any
	authSeen []string
}

func newModelServer(t *testing.T, answer string) *modelServer {
	t.Helper()
	ms := &modelServer{}
	text, _ := json.Marshal(map[string]string{"response_text": answer})
	item, _ := json.Marshal(map[string]any{
		"id":     "msg_1",
		"type":   "message",
		"role":   "assistant",
		"status": "completed",
		"content": []map[string]any{{
			"type":        "output_text",
			"text":        string(text),
			"annotations": []any{},
		}},
	})
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		ms.mu.Lock()
		ms.bodies = append(ms.bodies, body)
		ms.authSeen = append(ms.authSeen, r.Header.Get("Authorization"))
		ms.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"resp_1","output":[`+string(item)+`]}`)
	}))
	t.Cleanup(ms.Close)
	return ms
}

// writeConfig writes an aido.json that keeps the test away from the
// user's cache and tools files.
func writeConfig(t *testing.T, baseURL, apiKey string) string {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AIDO_MODEL", "")
	dir := t.TempDir()
	cfg := map[string]any{
		"api_key":           apiKey,
		"default_model":     "o4mini",
		"base_url":          baseURL,
		"cache_path":        filepath.Join(dir, "cache.db3"),
		"custom_tools_path": filepath.Join(dir, "missing-tools.toml"),
	}
	data, _ := json.Marshal(cfg)
	path := filepath.Join(dir, "aido.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(cmd *cobra.Command, stdin string, args ...string) (code int, stdout, stderr string) {
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	code = Execute(cmd, args)
	return code, out.String(), errOut.String()
}

func TestAidoWithoutInstructionsExitsOne(t *testing.T) {
	code, _, stderr := execute(NewAidoCmd("test"), "")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Usage: aido") {
		t.Errorf("stderr = %q, want usage line", stderr)
	}
}

func TestAidoRunsSession(t *testing.T) {
	server := newModelServer(t, "all done")
	cfg := writeConfig(t, server.URL, "sk-test")

	code, stdout, stderr := execute(NewAidoCmd("test"), "", "-c", cfg, "say", "hello", "-x")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if strings.TrimSpace(stdout) != "all done" {
		t.Errorf("stdout = %q, want the answer", stdout)
	}

	if len(server.bodies) != 1 {
		t.Fatalf("requests = %d, want 1", len(server.bodies))
	}
	if got := server.authSeen[0]; got != "Bearer sk-test" {
		t.Errorf("Authorization = %q", got)
	}
	body := server.bodies[0]
	if body["model"] != "o4-mini" {
		t.Errorf("model = %v, want the expanded alias", body["model"])
	}
	input, _ := body["input"].([]any)
	if len(input) != 2 {
		t.Fatalf("input items = %d, want system and user", len(input))
	}
	user, _ := input[1].(map[string]any)
	if user["role"] != "user" || user["content"] != "say hello -x" {
		t.Errorf("user message = %v", user)
	}
	tools, _ := body["tools"].([]any)
	if len(tools) == 0 {
		t.Error("expected builtin tools in the request")
	}
}

func TestAidoModelFlagOverridesConfig(t *testing.T) {
	server := newModelServer(t, "ok")
	cfg := writeConfig(t, server.URL, "sk-test")

	code, _, stderr := execute(NewAidoCmd("test"), "", "-c", cfg, "--model", "4o", "hi")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if got := server.bodies[0]["model"]; got != "gpt-4o" {
		t.Errorf("model = %v, want gpt-4o", got)
	}
}

func TestAidoModelShorthand(t *testing.T) {
	server := newModelServer(t, "ok")
	cfg := writeConfig(t, server.URL, "sk-test")

	code, _, stderr := execute(NewAidoCmd("test"), "", "-c", cfg, "-m", "o3mini", "hi")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if got := server.bodies[0]["model"]; got != "o3-mini" {
		t.Errorf("model = %v, want o3-mini", got)
	}
}

func TestAidoTrailingModelArgIsNotInstruction(t *testing.T) {
	server := newModelServer(t, "ok")
	cfg := writeConfig(t, server.URL, "sk-test")

	code, _, stderr := execute(NewAidoCmd("test"), "", "-c", cfg, "list", "files", "--model=4omini")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	body := server.bodies[0]
	if body["model"] != "gpt-4o-mini" {
		t.Errorf("model = %v, want gpt-4o-mini", body["model"])
	}
	input, _ := body["input"].([]any)
	user, _ := input[len(input)-1].(map[string]any)
	if user["content"] != "list files" {
		t.Errorf("instruction = %v, want the words without the flag", user["content"])
	}
}

func TestTakeModelArgs(t *testing.T) {
	rest, model := takeModelArgs([]string{"--model=4o", "a", "--model=o4mini", "b"})
	if model != "o4mini" {
		t.Errorf("model = %q, want the last one", model)
	}
	if strings.Join(rest, " ") != "a b" {
		t.Errorf("rest = %q", rest)
	}
}

func TestAidoMissingKey(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1", "")

	code, _, stderr := execute(NewAidoCmd("test"), "", "-c", cfg, "hi")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "API key") {
		t.Errorf("stderr = %q, want the missing key error", stderr)
	}
}

func TestAidoListToolsJSON(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1", "")

	code, stdout, stderr := execute(NewAidoCmd("test"), "", "-c", cfg, "--list-tools")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	var descriptors []struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(stdout), &descriptors); err != nil {
		t.Fatalf("decode descriptors: %v\n%s", err, stdout)
	}
	if len(descriptors) == 0 || descriptors[0].Name != "pwd" || descriptors[0].Type != "function" {
		t.Errorf("descriptors = %+v, want pwd first", descriptors)
	}
}

func TestAidoListToolsYAML(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1", "")

	code, stdout, stderr := execute(NewAidoCmd("test"), "", "-c", cfg, "--list-tools", "--format", "yaml")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if !strings.Contains(stdout, "name: fetch_url") {
		t.Errorf("yaml output missing fetch_url:\n%s", stdout)
	}
}

func TestAidoListToolsBadFormat(t *testing.T) {
	cfg := writeConfig(t, "http://127.0.0.1:1", "")

	code, _, stderr := execute(NewAidoCmd("test"), "", "-c", cfg, "--list-tools", "--format", "xml")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "unknown format") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestAidoSurfacesProtocolErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()
	cfg := writeConfig(t, server.URL, "sk-wrong")

	code, stdout, stderr := execute(NewAidoCmd("test"), "", "-c", cfg, "hi")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want nothing", stdout)
	}
	if !strings.Contains(stderr, "bad key") {
		t.Errorf("stderr = %q, want the provider message", stderr)
	}
}

func TestAifixWithoutCommandExitsOne(t *testing.T) {
	code, _, stderr := execute(NewAifixCmd("test"), "")
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr, "Usage: aifix") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestAidoStoreKeyIsUsedBySessions(t *testing.T) {
	server := newModelServer(t, "ok")
	cfg := writeConfig(t, server.URL, "")
	t.Cleanup(func() { _ = keyring.Delete("aido", "openai_api_key") })

	code, stdout, stderr := execute(NewAidoCmd("test"), "sk-stored\n", "--store-key")
	if code != 0 {
		t.Fatalf("store-key exit code = %d, stderr = %q", code, stderr)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want nothing", stdout)
	}

	code, _, stderr = execute(NewAidoCmd("test"), "", "-c", cfg, "hi")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	if got := server.authSeen[0]; got != "Bearer sk-stored" {
		t.Errorf("Authorization = %q, want the stored key", got)
	}
}

func TestAidoForgetKey(t *testing.T) {
	if code, _, stderr := execute(NewAidoCmd("test"), "sk-stored\n", "--store-key"); code != 0 {
		t.Fatalf("store-key exit code = %d, stderr = %q", code, stderr)
	}
	if code, _, stderr := execute(NewAidoCmd("test"), "", "--forget-key"); code != 0 {
		t.Fatalf("forget-key exit code = %d, stderr = %q", code, stderr)
	}
	if _, err := keyring.Get("aido", "openai_api_key"); err != keyring.ErrNotFound {
		t.Errorf("keyring entry still present: %v", err)
	}
	// Forgetting twice is fine.
	if code, _, stderr := execute(NewAidoCmd("test"), "", "--forget-key"); code != 0 {
		t.Fatalf("second forget-key exit code = %d, stderr = %q", code, stderr)
	}
}

func TestAidoInitConfig(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")
	path := filepath.Join(t.TempDir(), "nested", "aido.json")

	code, _, stderr := execute(NewAidoCmd("test"), "", "-c", path, "--init-config")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg["default_model"] != "o4-mini" {
		t.Errorf("default_model = %v", cfg["default_model"])
	}
	if cfg["api_key"] != "" {
		t.Errorf("api_key = %v, env key must not be written", cfg["api_key"])
	}

	code, _, stderr = execute(NewAidoCmd("test"), "", "-c", path, "--init-config")
	if code != 1 || !strings.Contains(stderr, "already exists") {
		t.Errorf("second init: code = %d, stderr = %q", code, stderr)
	}
}
