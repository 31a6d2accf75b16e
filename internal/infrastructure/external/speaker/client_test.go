package speaker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	"github.com/johnquangdev/meeting-transcriber/pkg/jobcontext"
)

var fastRetry = jobcontext.RetryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxRetries:      2,
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestDiarize(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/speaker/diarization" || r.Method != http.MethodPost {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("num_speakers") != "2" {
			t.Fatalf("num_speakers not forwarded: %q", r.FormValue("num_speakers"))
		}
		if _, _, err := r.FormFile("audio"); err != nil {
			t.Fatalf("missing audio: %v", err)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"num_speakers": 2,
				"segments": []map[string]interface{}{
					{"start_time": 0.0, "end_time": 4.5, "speaker_id": "speaker_0", "confidence": 0.9},
					{"start_time": 4.5, "end_time": 9.0, "speaker_id": "speaker_1", "confidence": 0.8},
				},
			},
		})
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := NewClient(ts.URL, time.Second, zap.NewNop()).WithRetryPolicy(fastRetry)
	segs, err := c.Diarize(context.Background(), path, 2)
	if err != nil {
		t.Fatalf("diarize failed: %v", err)
	}
	if len(segs) != 2 || segs[1].Label != "speaker_1" || segs[1].Start != 4.5 || segs[1].End != 9.0 {
		t.Fatalf("unexpected segments %+v", segs)
	}
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"success": false, "error": "model loading"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"embedding": []float64{0.1, 0.2, 0.3}, "dimension": 3},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, zap.NewNop()).WithRetryPolicy(fastRetry)
	emb, err := c.Embed(context.Background(), []byte("clip"))
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(emb) != 3 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 3-dim vector after one retry, got %v (calls=%d)", emb, calls)
	}
}

func TestEmbedClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"success": false, "error": "audio too short"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, zap.NewNop()).WithRetryPolicy(fastRetry)
	_, err := c.Embed(context.Background(), []byte("clip"))
	if !errors.Is(err, entities.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx must not be retried, calls=%d", calls)
	}
}

func TestEmbedUnsuccessfulEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "message": "no speech detected"})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, nil).WithRetryPolicy(fastRetry)
	if _, err := c.Embed(context.Background(), []byte("clip")); !errors.Is(err, entities.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable got %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		case "/api/speaker/embedding":
			w.WriteHeader(http.StatusMethodNotAllowed)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	if err := NewClient(ts.URL+"/", time.Second, nil).Health(context.Background()); err != nil {
		t.Fatalf("health failed: %v", err)
	}
	ts.Close()
	if err := NewClient(ts.URL, time.Second, nil).Health(context.Background()); !errors.Is(err, entities.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable got %v", err)
	}
}

func TestHealthReportsMissingEmbeddingRoute(t *testing.T) {
	// a service exposing only register/recognize/diarization/list/delete/health
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	err := NewClient(ts.URL, time.Second, nil).Health(context.Background())
	if !errors.Is(err, entities.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable got %v", err)
	}
	if !strings.Contains(err.Error(), "/api/speaker/embedding") {
		t.Fatalf("error should name the missing route: %v", err)
	}
}
