package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCollectConcatenatesOllamaStream(t *testing.T) {
	var got ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprintln(w, `{"response":"<Person1>Hi ","done":false}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `{"response":"there</Person1>","done":true,"eval_count":4,"prompt_eval_count":9}`)
	}))
	defer srv.Close()

	gen := NewOllamaGenerator(srv.URL+"/", "")
	out, err := Collect(context.Background(), gen, Request{Prompt: "talk", System: "sys", Temperature: 0.5, MaxTokens: 64})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if out != "<Person1>Hi there</Person1>" {
		t.Fatalf("unexpected output %q", out)
	}
	if got.Model != defaultOllamaModel || got.System != "sys" || !got.Stream || got.Options.NumPredict != 64 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestOllamaStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := Collect(context.Background(), NewOllamaGenerator(srv.URL, "m"), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestOpenAIGenerator(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"<Person1>Hello</Person1>"}}],`+
			`"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`)
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator("sk-test", srv.URL, "gpt-test")
	var chunks []Chunk
	err := gen.Generate(context.Background(), Request{Prompt: "p", System: "s", Temperature: 1}, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "<Person1>Hello</Person1>" || chunks[0].CompletionTokens != 2 {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	if body["model"] != "gpt-test" {
		t.Fatalf("unexpected model %v", body["model"])
	}
	if msgs, ok := body["messages"].([]any); !ok || len(msgs) != 2 {
		t.Fatalf("expected system and user messages, got %v", body["messages"])
	}
}

func TestGeminiGenerator(t *testing.T) {
	var (
		body   map[string]any
		path   string
		apiKey string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		apiKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"index":0,"finishReason":"STOP","content":{"role":"model","parts":[{"text":"<Person1>Hi</Person1>"}]}}],`+
			`"usageMetadata":{"promptTokenCount":7,"candidatesTokenCount":3,"totalTokenCount":10}}`)
	}))
	defer srv.Close()

	gen, err := NewGeminiGenerator(context.Background(), "g-key", srv.URL, "gemini-test")
	if err != nil {
		t.Fatalf("new gemini generator: %v", err)
	}
	var chunks []Chunk
	err = gen.Generate(context.Background(), Request{Prompt: "p", System: "s", MaxTokens: 256, Temperature: 0.5, TraceID: "t1"}, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Content != "<Person1>Hi</Person1>" {
		t.Fatalf("unexpected chunks %+v", chunks)
	}
	if chunks[0].PromptTokens != 7 || chunks[0].CompletionTokens != 3 || chunks[0].TraceID != "t1" {
		t.Fatalf("unexpected usage %+v", chunks[0])
	}
	if !strings.HasSuffix(path, "models/gemini-test:generateContent") {
		t.Fatalf("unexpected path %s", path)
	}
	if apiKey != "g-key" {
		t.Fatalf("expected api key header, got %q", apiKey)
	}
	if _, ok := body["systemInstruction"]; !ok {
		t.Fatalf("expected system instruction, got %v", body)
	}
	genCfg, _ := body["generationConfig"].(map[string]any)
	if genCfg["maxOutputTokens"] != float64(256) {
		t.Fatalf("unexpected generation config %v", genCfg)
	}
}

func TestGeminiGeneratorRequiresKey(t *testing.T) {
	if _, err := NewGeminiGenerator(context.Background(), "", "", ""); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestExecGenerator(t *testing.T) {
	gen, err := NewExecGenerator(`sh -c 'cat >/dev/null; printf "{\"content\":\"<Speaker>ok</Speaker>\",\"completion_tokens\":1}"'`)
	if err != nil {
		t.Fatalf("new exec generator: %v", err)
	}
	out, err := Collect(context.Background(), gen, Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if out != "<Speaker>ok</Speaker>" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestExecGeneratorSendsPodcastParams(t *testing.T) {
	dir := t.TempDir()
	captured := filepath.Join(dir, "request.json")
	gen, err := NewExecGenerator(fmt.Sprintf(`sh -c 'cat > %s; echo "<Person1>Hi</Person1>"'`, captured))
	if err != nil {
		t.Fatalf("new exec generator: %v", err)
	}
	out, err := Collect(context.Background(), gen, Request{
		System:  "sys",
		Prompt:  "user",
		Model:   "local",
		TraceID: "trace-1",
		Params:  map[string]string{"podcast_name": "Loqa", "roles_person1": "host"},
	})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if out != "<Person1>Hi</Person1>" {
		t.Fatalf("plain stdout should be the transcript, got %q", out)
	}
	data, err := os.ReadFile(captured)
	if err != nil {
		t.Fatalf("read captured request: %v", err)
	}
	var sent execRequest
	if err := json.Unmarshal(data, &sent); err != nil {
		t.Fatalf("decode captured request: %v", err)
	}
	if sent.System != "sys" || sent.Prompt != "user" || sent.TraceID != "trace-1" {
		t.Fatalf("unexpected request %+v", sent)
	}
	if sent.Params["podcast_name"] != "Loqa" || sent.Params["roles_person1"] != "host" {
		t.Fatalf("params not forwarded: %v", sent.Params)
	}
}

func TestExecGeneratorReportsStderr(t *testing.T) {
	gen, err := NewExecGenerator(`sh -c 'echo quota exhausted >&2; exit 3'`)
	if err != nil {
		t.Fatalf("new exec generator: %v", err)
	}
	_, err = Collect(context.Background(), gen, Request{Prompt: "p"})
	if err == nil || !strings.Contains(err.Error(), "quota exhausted") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestExecGeneratorRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecGenerator("   "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestMockGeneratorHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Collect(ctx, NewMockGenerator(), Request{Prompt: "p"}); err == nil {
		t.Fatal("expected cancellation error")
	}
}
