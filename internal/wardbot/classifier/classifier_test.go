package classifier_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bdobrica/wardbot/internal/wardbot/classifier"
)

func chatResponse(content string) string {
	body := map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "test-model",
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
	}
	out, _ := json.Marshal(body)
	return string(out)
}

func TestClassifyAcceptsValidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse(`{"is_prohibited":true,"label":"gambling","confidence":0.91,"reason":"advertises a casino"}`))
	}))
	defer srv.Close()

	c, err := classifier.New("test-key", srv.URL, "test-model", 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := c.Classify(context.Background(), "come play at our casino", []string{"gambling", "fraud"})
	if d == nil {
		t.Fatal("Classify returned nil, want a decision")
	}
	if !d.IsProhibited || d.Label != "gambling" || d.Confidence != 0.91 {
		t.Fatalf("decision = %+v, unexpected fields", d)
	}
}

func TestClassifyRejectsInvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse(`not json at all`))
	}))
	defer srv.Close()

	c, err := classifier.New("test-key", srv.URL, "test-model", 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if d := c.Classify(context.Background(), "hello", nil); d != nil {
		t.Fatalf("Classify = %+v, want nil on malformed JSON", d)
	}
}

func TestClassifyRejectsSchemaViolation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// confidence out of [0,1] range and missing "label".
		fmt.Fprint(w, chatResponse(`{"is_prohibited":false,"confidence":3.2,"reason":"n/a"}`))
	}))
	defer srv.Close()

	c, err := classifier.New("test-key", srv.URL, "test-model", 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if d := c.Classify(context.Background(), "hello", nil); d != nil {
		t.Fatalf("Classify = %+v, want nil on schema violation", d)
	}
}

func TestClassifyClampsReason(t *testing.T) {
	longReason := strings.Repeat("x", 500)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse(fmt.Sprintf(`{"is_prohibited":true,"label":"spam","confidence":0.5,"reason":%q}`, longReason)))
	}))
	defer srv.Close()

	c, err := classifier.New("test-key", srv.URL, "test-model", 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := c.Classify(context.Background(), "hello", nil)
	if d == nil {
		t.Fatal("Classify returned nil")
	}
	if len(d.Reason) != 160 {
		t.Fatalf("Reason length = %d, want 160", len(d.Reason))
	}
}

func TestClassifyRetriesOnceOnTransportFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, chatResponse(`{"is_prohibited":false,"label":"none","confidence":0.1,"reason":"clean"}`))
	}))
	defer srv.Close()

	c, err := classifier.New("test-key", srv.URL, "test-model", 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d := c.Classify(context.Background(), "hello", nil)
	if d == nil {
		t.Fatal("Classify returned nil, want success on retry")
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2 (one retry)", got)
	}
}

func TestClassifyGivesUpAfterRetryExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := classifier.New("test-key", srv.URL, "test-model", 2*time.Second)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if d := c.Classify(context.Background(), "hello", nil); d != nil {
		t.Fatalf("Classify = %+v, want nil after retry exhaustion", d)
	}
}
