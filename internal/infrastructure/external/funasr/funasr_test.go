package funasr

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

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/engine"
	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
	"github.com/johnquangdev/meeting-transcriber/pkg/jobcontext"
)

var fastRetry = jobcontext.RetryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxRetries:      2,
}

func TestDecodeStreamMessage(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantFinal bool
		wantEnd   bool
		wantWords int
		wantFirst string
		wantErr   bool
	}{
		{
			name:      "online partial",
			payload:   `{"text":"hello","mode":"2pass-online","is_final":false}`,
			wantFinal: false,
		},
		{
			name:      "offline sentence with string timestamp",
			payload:   `{"text":"hello world","mode":"2pass-offline","is_final":false,"timestamp":"[[100,400],[450,900]]"}`,
			wantFinal: true,
			wantWords: 2,
			wantFirst: "hello",
		},
		{
			name:      "closing offline pass ends the stream",
			payload:   `{"text":"closing remarks","mode":"2pass-offline","is_final":true}`,
			wantFinal: true,
			wantEnd:   true,
		},
		{
			name:      "end of stream without text",
			payload:   `{"text":"","mode":"2pass-online","is_final":true}`,
			wantFinal: false,
			wantEnd:   true,
		},
		{
			name:      "triples",
			payload:   `{"text":"你好","mode":"offline","timestamp":[[0,200,"你"],[200,400,"好"]]}`,
			wantFinal: true,
			wantWords: 2,
			wantFirst: "你",
		},
		{
			name:      "pairs over unspaced text",
			payload:   `{"text":"你好","mode":"offline","timestamp":[[0,200],[200,400]]}`,
			wantFinal: true,
			wantWords: 2,
			wantFirst: "你",
		},
		{name: "engine error", payload: `{"error":"decoder crashed"}`, wantErr: true},
		{name: "garbage", payload: `not json`, wantErr: true},
		{name: "short timestamp row", payload: `{"text":"a","mode":"offline","timestamp":[[1]]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := decodeStreamMessage([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, entities.ErrProtocol) {
					t.Fatalf("expected ErrProtocol got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if res.IsFinal != tt.wantFinal || res.Partial == tt.wantFinal {
				t.Fatalf("final=%v partial=%v, want final=%v", res.IsFinal, res.Partial, tt.wantFinal)
			}
			if res.EndOfStream != tt.wantEnd {
				t.Fatalf("end of stream=%v, want %v", res.EndOfStream, tt.wantEnd)
			}
			if len(res.Words) != tt.wantWords {
				t.Fatalf("expected %d words got %+v", tt.wantWords, res.Words)
			}
			if tt.wantWords > 0 && res.Words[0].Word != tt.wantFirst {
				t.Fatalf("expected first word %q got %q", tt.wantFirst, res.Words[0].Word)
			}
		})
	}
}

func TestParseTimestampsConvertsMilliseconds(t *testing.T) {
	words, err := parseTimestamps(json.RawMessage(`[[1500,2250,"hi"]]`), "")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if words[0].Start != 1.5 || words[0].End != 2.25 {
		t.Fatalf("expected seconds, got %+v", words[0])
	}
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestTranscribeUsesWordStamps(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/recognize" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if r.FormValue("enable_timestamp") != "true" {
			t.Fatalf("timestamps not requested")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":   true,
			"text":      "good morning team",
			"duration":  3.2,
			"timestamp": [][]interface{}{{0, 400, "good"}, {450, 900, "morning"}, {2500, 3000, "team"}},
			"segments":  []map[string]interface{}{{"start": 0.0, "end": 0.4, "text": "good"}},
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, zap.NewNop()).WithRetryPolicy(fastRetry)
	tr, err := c.Transcribe(context.Background(), writeAudio(t), engine.TranscribeOptions{Language: "en"})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if len(tr.Words) != 3 || len(tr.Sentences) != 0 {
		t.Fatalf("expected 3 words and no sentences, got %+v", tr)
	}
	if tr.Words[2].Start != 2.5 || tr.Duration != 3.2 || tr.Language != "en" {
		t.Fatalf("unexpected transcript %+v", tr)
	}
}

func TestTranscribeFallsBackToSegments(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"success":  true,
			"text":     "mock transcript",
			"duration": 2.0,
			"segments": []map[string]interface{}{{"start": 0.0, "end": 2.0, "text": "mock transcript"}},
		})
	}))
	defer ts.Close()

	tr, err := NewClient(ts.URL, time.Second, nil).Transcribe(context.Background(), writeAudio(t), engine.TranscribeOptions{})
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if len(tr.Sentences) != 1 || tr.Sentences[0].End != 2.0 {
		t.Fatalf("expected one sentence got %+v", tr.Sentences)
	}
}

func TestTranscribeRetriesThenGivesUp(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, time.Second, zap.NewNop()).WithRetryPolicy(fastRetry)
	_, err := c.Transcribe(context.Background(), writeAudio(t), engine.TranscribeOptions{})
	if !errors.Is(err, entities.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 1 call plus 2 retries, got %d", got)
	}
}

// fakeEngine is a minimal FunASR websocket server
func fakeEngine(t *testing.T, handle func(conn *websocket.Conn, hs handshake)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var hs handshake
		if err := conn.ReadJSON(&hs); err != nil {
			t.Errorf("read handshake: %v", err)
			return
		}
		handle(conn, hs)
	}))
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestStreamRoundTrip(t *testing.T) {
	gotHandshake := make(chan handshake, 1)
	ts := fakeEngine(t, func(conn *websocket.Conn, hs handshake) {
		gotHandshake <- hs
		var audio int
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.BinaryMessage {
				audio += len(data)
				_ = conn.WriteJSON(map[string]interface{}{"text": "hel", "mode": "2pass-online", "is_final": false})
				continue
			}
			var end endMarker
			if err := json.Unmarshal(data, &end); err != nil || end.IsSpeaking {
				t.Errorf("expected end marker got %s", data)
				return
			}
			_ = conn.WriteJSON(map[string]interface{}{
				"text": "hello.", "mode": "2pass-offline", "is_final": true,
				"timestamp":   "[[0,500]]",
				"stamp_sents": []map[string]interface{}{{"text_seg": "hello", "punc": ".", "start": 0, "end": 500}},
			})
			if audio != 6 {
				t.Errorf("expected 6 audio bytes got %d", audio)
			}
		}
	})
	defer ts.Close()

	format := entities.DefaultAudioFormat()
	format.WavName = "meeting-1"
	format.Hotwords = "FunASR 20"
	s, err := NewDialer(wsURL(ts), zap.NewNop()).Dial(context.Background(), format)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer s.Close()

	hs := <-gotHandshake
	if !hs.IsSpeaking || hs.Mode != "2pass" || hs.AudioFS != 16000 || hs.WavName != "meeting-1" || hs.ChunkSize != [3]int{5, 10, 5} {
		t.Fatalf("unexpected handshake %+v", hs)
	}

	if err := s.SendAudio([]byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("send audio: %v", err)
	}
	partial, err := s.Recv()
	if err != nil || !partial.Partial || partial.EndOfStream || partial.Text != "hel" {
		t.Fatalf("expected partial got %+v %v", partial, err)
	}

	if err := s.SendEnd(); err != nil {
		t.Fatalf("send end: %v", err)
	}
	final, err := s.Recv()
	if err != nil {
		t.Fatalf("recv final: %v", err)
	}
	if !final.IsFinal || !final.EndOfStream || len(final.Sentences) != 1 || final.Sentences[0].Text != "hello." || final.Sentences[0].End != 0.5 {
		t.Fatalf("unexpected final %+v", final)
	}
}

func TestStreamProtocolErrorIsDistinct(t *testing.T) {
	ts := fakeEngine(t, func(conn *websocket.Conn, hs handshake) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unsupported sample rate"}`))
		_, _, _ = conn.ReadMessage()
	})
	defer ts.Close()

	s, err := NewDialer(wsURL(ts), nil).Dial(context.Background(), entities.DefaultAudioFormat())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Recv(); !errors.Is(err, entities.ErrProtocol) {
		t.Fatalf("expected ErrProtocol got %v", err)
	}
}

func TestStreamConnectionLossIsNotProtocolError(t *testing.T) {
	ts := fakeEngine(t, func(conn *websocket.Conn, hs handshake) {
		conn.Close()
	})
	defer ts.Close()

	s, err := NewDialer(wsURL(ts), nil).Dial(context.Background(), entities.DefaultAudioFormat())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer s.Close()

	_, err = s.Recv()
	if err == nil || errors.Is(err, entities.ErrProtocol) {
		t.Fatalf("expected a connection error got %v", err)
	}
}

func TestDialUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := wsURL(ts)
	ts.Close()

	if _, err := NewDialer(url, nil).Dial(context.Background(), entities.DefaultAudioFormat()); !errors.Is(err, entities.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable got %v", err)
	}
}
