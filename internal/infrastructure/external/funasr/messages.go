package funasr

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

// handshake is the first text frame of a stream
type handshake struct {
	Mode          string `json:"mode"`
	ChunkSize     [3]int `json:"chunk_size"`
	ChunkInterval int    `json:"chunk_interval"`
	WavName       string `json:"wav_name"`
	IsSpeaking    bool   `json:"is_speaking"`
	WavFormat     string `json:"wav_format"`
	AudioFS       int    `json:"audio_fs"`
	Hotwords      string `json:"hotwords,omitempty"`
}

func newHandshake(f entities.AudioFormat) handshake {
	return handshake{
		Mode:          f.Mode,
		ChunkSize:     f.ChunkSize,
		ChunkInterval: f.ChunkInterval,
		WavName:       f.WavName,
		IsSpeaking:    true,
		WavFormat:     f.Encoding,
		AudioFS:       f.SampleRate,
		Hotwords:      f.Hotwords,
	}
}

type endMarker struct {
	IsSpeaking bool `json:"is_speaking"`
}

type stampSentence struct {
	TextSeg string          `json:"text_seg"`
	Punc    string          `json:"punc"`
	Start   float64         `json:"start"`
	End     float64         `json:"end"`
	TSList  json.RawMessage `json:"ts_list"`
}

type streamMessage struct {
	Text       string          `json:"text"`
	Mode       string          `json:"mode"`
	IsFinal    bool            `json:"is_final"`
	WavName    string          `json:"wav_name"`
	Timestamp  json.RawMessage `json:"timestamp"`
	StampSents []stampSentence `json:"stamp_sents"`
	Error      string          `json:"error"`
}

// decodeStreamMessage turns one text frame into a StreamResult.
// Anything the engine should never send is reported as entities.ErrProtocol.
func decodeStreamMessage(data []byte) (*entities.StreamResult, error) {
	var msg streamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: undecodable result: %v", entities.ErrProtocol, err)
	}
	if msg.Error != "" {
		return nil, fmt.Errorf("%w: engine reported %q", entities.ErrProtocol, msg.Error)
	}

	words, err := parseTimestamps(msg.Timestamp, msg.Text)
	if err != nil {
		return nil, err
	}

	res := &entities.StreamResult{
		Text:        msg.Text,
		Mode:        msg.Mode,
		Words:       words,
		EndOfStream: msg.IsFinal,
	}
	switch msg.Mode {
	case "online", "2pass-online":
		res.Partial = true
	case "offline", "2pass-offline":
		res.Partial = false
	default:
		res.Partial = !msg.IsFinal
	}
	// offline passes are settled sentences even before the stream ends
	res.IsFinal = !res.Partial

	for _, s := range msg.StampSents {
		text := s.TextSeg + s.Punc
		if strings.TrimSpace(text) == "" {
			continue
		}
		res.Sentences = append(res.Sentences, entities.Sentence{
			Text:  strings.TrimSpace(text),
			Start: s.Start / 1000,
			End:   s.End / 1000,
		})
	}
	return res, nil
}

// parseTimestamps accepts [[start_ms,end_ms,word],...], [[start_ms,end_ms],...]
// or either of those encoded once more as a JSON string. Pairs take their
// words from text split on whitespace, or rune by rune for unspaced scripts.
func parseTimestamps(raw json.RawMessage, text string) ([]entities.WordTimestamp, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("%w: timestamp: %v", entities.ErrProtocol, err)
		}
		if strings.TrimSpace(inner) == "" {
			return nil, nil
		}
		raw = json.RawMessage(inner)
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", entities.ErrProtocol, err)
	}

	var tokens []string
	words := make([]entities.WordTimestamp, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%w: timestamp row %d has %d fields", entities.ErrProtocol, i, len(row))
		}
		var start, end float64
		if err := json.Unmarshal(row[0], &start); err != nil {
			return nil, fmt.Errorf("%w: timestamp row %d: %v", entities.ErrProtocol, i, err)
		}
		if err := json.Unmarshal(row[1], &end); err != nil {
			return nil, fmt.Errorf("%w: timestamp row %d: %v", entities.ErrProtocol, i, err)
		}

		var word string
		if len(row) >= 3 {
			_ = json.Unmarshal(row[2], &word)
		} else {
			if tokens == nil {
				tokens = tokenize(text)
			}
			if i < len(tokens) {
				word = tokens[i]
			}
		}
		words = append(words, entities.WordTimestamp{
			Word:  word,
			Start: start / 1000,
			End:   end / 1000,
		})
	}
	return words, nil
}

func tokenize(text string) []string {
	fields := strings.Fields(text)
	if len(fields) > 1 {
		return fields
	}
	out := make([]string, 0, len(text))
	for _, r := range strings.TrimSpace(text) {
		out = append(out, string(r))
	}
	return out
}
