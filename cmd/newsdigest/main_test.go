package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"newsdigest/internal/feed"
	"newsdigest/internal/testsupport"
)

const (
	testChatModel  = "test-chat"
	testEmbedModel = "test-embed"
	testVectorDims = 16
)

// fakeOllama serves the embedding, chat completion and model listing routes.
// Every distinct prompt gets its own one-hot vector so nothing deduplicates.
type fakeOllama struct {
	mu      sync.Mutex
	vectors map[string]int
}

func newFakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	fake := &fakeOllama{vectors: make(map[string]int)}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embeddings", fake.embeddings)
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, map[string]any{"models": []map[string]string{{"name": testEmbedModel + ":latest"}}})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeTestJSON(w, map[string]any{
			"object": "list",
			"data":   []map[string]string{{"id": testChatModel, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/chat/completions", fake.chat)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func (f *fakeOllama) embeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	slot, ok := f.vectors[req.Prompt]
	if !ok {
		slot = len(f.vectors) % testVectorDims
		f.vectors[req.Prompt] = slot
	}
	f.mu.Unlock()

	vec := make([]float32, testVectorDims)
	vec[slot] = 1
	writeTestJSON(w, map[string]any{"embedding": vec})
}

func (f *fakeOllama) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	content := testsupport.GenaiReply(80, true)
	if testsupport.IsProductPersona(req.Messages[0].Content) {
		content = testsupport.ProductReply(15, false)
	}
	writeTestJSON(w, map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 0,
		"model":   testChatModel,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type cliTestEnv struct {
	baseDir    string
	configPath string
	feedPath   string
	outDir     string
}

func setupCLITestEnv(t *testing.T, ollamaURL string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	env := &cliTestEnv{
		baseDir:    base,
		configPath: filepath.Join(base, "config.toml"),
		feedPath:   filepath.Join(base, "feed.json"),
		outDir:     filepath.Join(base, "out"),
	}
	content := fmt.Sprintf(`[paths]
data_dir = %q
out_dir = %q

[feed]
source = "file"
file_path = %q

[ollama]
base_url = %q
model = %q
embed_model = %q

[pipeline]
call_timeout_seconds = 5

[logging]
level = "warn"
file = %q
`,
		filepath.Join(base, "data"),
		env.outDir,
		env.feedPath,
		ollamaURL,
		testChatModel,
		testEmbedModel,
		filepath.Join(base, "logs", "run.log"),
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func (e *cliTestEnv) writeFeed(t *testing.T, records ...feed.Record) {
	t.Helper()
	testsupport.WriteJSON(t, e.feedPath, records)
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestConfigInitAndValidate(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "newsdigest", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected second init without --overwrite to fail")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, target)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "GENAI_NEWS")
}

func TestCLIRunAndInspect(t *testing.T) {
	server := newFakeOllama(t)
	env := setupCLITestEnv(t, server.URL)
	env.writeFeed(t,
		feed.Record{SourceID: "hn:1", Title: "Open weights model tops coding benchmark", URL: "https://example.com/1", Score: 120, Comments: 40},
		feed.Record{SourceID: "hn:2", Title: "Inference server adds speculative decoding", URL: "https://example.com/2", Score: 90, Comments: 12},
		feed.Record{SourceID: "hn:3", Title: "Ask HN: quiet thread", URL: "https://example.com/3", Score: 2},
	)

	out, _, err := runCLI(t, []string{"run", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var summary runSummaryJSON
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode run summary: %v\n%s", err, out)
	}
	if summary.Fetched != 3 || summary.PrefilteredOut != 1 || summary.Accepted != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.DigestItems != 2 || summary.DeliveredTo != "noop" {
		t.Fatalf("unexpected digest outcome %+v", summary)
	}
	if len(summary.Artifacts) == 0 {
		t.Fatal("expected artifacts to be written")
	}
	for _, path := range summary.Artifacts {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("artifact %s missing: %v", path, err)
		}
	}

	out, _, err = runCLI(t, []string{"digest", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("digest show: %v", err)
	}
	requireContains(t, out, summary.RunID)
	requireContains(t, out, "## GenAI News")
	requireContains(t, out, "Open weights model tops coding benchmark")

	out, _, err = runCLI(t, []string{"digest", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("digest list: %v", err)
	}
	requireContains(t, out, summary.RunID)

	out, _, err = runCLI(t, []string{"items", "list", "--status", "prefiltered_out"}, env.configPath)
	if err != nil {
		t.Fatalf("items list: %v", err)
	}
	requireContains(t, out, "Ask HN: quiet thread")
	if strings.Contains(out, "speculative decoding") {
		t.Fatalf("status filter ignored:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"index", "rebuild"}, env.configPath)
	if err != nil {
		t.Fatalf("index rebuild: %v", err)
	}
	requireContains(t, out, "Indexed 2 items")

	_, _, err = runCLI(t, []string{"digest", "send"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "no delivery target") {
		t.Fatalf("expected digest send to refuse without a target, got %v", err)
	}
}

func TestCLIRunIsIdempotent(t *testing.T) {
	server := newFakeOllama(t)
	env := setupCLITestEnv(t, server.URL)
	env.writeFeed(t, feed.Record{SourceID: "hn:7", Title: "Agents framework hits 1.0", URL: "https://example.com/7", Score: 75, Comments: 9})

	for i := 0; i < 2; i++ {
		if _, _, err := runCLI(t, []string{"run", "--json"}, env.configPath); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	out, _, err := runCLI(t, []string{"items", "list", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("items list: %v", err)
	}
	var items []map[string]any
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		t.Fatalf("decode items: %v\n%s", err, out)
	}
	if len(items) != 1 {
		t.Fatalf("expected one stored item after re-ingestion, got %d", len(items))
	}
}

func TestDoctorReportsHealthyStack(t *testing.T) {
	server := newFakeOllama(t)
	env := setupCLITestEnv(t, server.URL)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Chat model")
	requireContains(t, out, "[OK] "+testChatModel)
	requireContains(t, out, "[WARN] no target configured")
	requireContains(t, out, "All checks passed")
}

func TestDoctorFlagsUnreachableModel(t *testing.T) {
	server := newFakeOllama(t)
	url := server.URL
	server.Close()
	env := setupCLITestEnv(t, url)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err == nil {
		t.Fatalf("expected doctor to fail against a closed server\n%s", out)
	}
	requireContains(t, err.Error(), "problem(s)")
	requireContains(t, out, "[ERROR]")
}

func TestCLILogsFiltersByRun(t *testing.T) {
	server := newFakeOllama(t)
	env := setupCLITestEnv(t, server.URL)
	env.writeFeed(t, feed.Record{SourceID: "hn:9", Title: "Local inference on laptops", URL: "https://example.com/9", Score: 64})

	out, _, err := runCLI(t, []string{"--log-level", "info", "run", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var summary runSummaryJSON
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode run summary: %v", err)
	}

	out, _, err = runCLI(t, []string{"logs", "--run", summary.RunID, "-n", "500"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "event_type=run_complete")

	out, _, err = runCLI(t, []string{"logs", "--run", "no-such-run"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.TrimSpace(out) != "" {
		t.Fatalf("expected no lines for unknown run, got:\n%s", out)
	}
}
