package wav

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestParseCanonicalHeader(t *testing.T) {
	data := Silence(2.5, 16000)

	info, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("unexpected layout %+v", info)
	}
	if info.DataOffset != headerSize {
		t.Fatalf("expected data at %d got %d", headerSize, info.DataOffset)
	}
	if math.Abs(info.Duration()-2.5) > 1e-9 {
		t.Fatalf("expected 2.5s got %f", info.Duration())
	}
}

func TestParseSkipsUnknownChunks(t *testing.T) {
	base := Silence(1, 8000)
	// splice a LIST chunk between fmt and data
	list := []byte("LIST")
	list = binary.LittleEndian.AppendUint32(list, 3)
	list = append(list, 'a', 'b', 'c', 0)

	data := append([]byte{}, base[:36]...)
	data = append(data, list...)
	data = append(data, base[36:]...)

	info, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if info.DataOffset != headerSize+int64(len(list)) {
		t.Fatalf("unexpected data offset %d", info.DataOffset)
	}
	if math.Abs(info.Duration()-1) > 1e-9 {
		t.Fatalf("expected 1s got %f", info.Duration())
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("definitely not audio")); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV got %v", err)
	}
}

func TestParseRejectsOversizedFmtChunk(t *testing.T) {
	data := append([]byte{}, Silence(0, 16000)[:36]...)
	binary.LittleEndian.PutUint32(data[16:20], 0x7FFFFFF0)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := Parse(data)
	runtime.ReadMemStats(&after)

	if !errors.Is(err, ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV got %v", err)
	}
	if grew := after.TotalAlloc - before.TotalAlloc; grew > 1<<20 {
		t.Fatalf("header parse allocated %d bytes", grew)
	}
}

func TestParseExtensibleFmtChunk(t *testing.T) {
	base := Silence(1, 16000)
	fmtChunk := []byte("fmt ")
	fmtChunk = binary.LittleEndian.AppendUint32(fmtChunk, 40)
	fmtChunk = binary.LittleEndian.AppendUint16(fmtChunk, 0xFFFE)
	fmtChunk = append(fmtChunk, base[22:36]...)
	fmtChunk = append(fmtChunk, make([]byte, 24)...)

	data := append([]byte{}, base[:12]...)
	data = append(data, fmtChunk...)
	data = append(data, base[36:]...)

	info, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Fatalf("unexpected layout %+v", info)
	}
	if info.DataOffset != headerSize+24 {
		t.Fatalf("unexpected data offset %d", info.DataOffset)
	}
}

func TestSliceClampsRange(t *testing.T) {
	data := Silence(10, 16000)

	tests := []struct {
		name       string
		start, end float64
		want       float64
	}{
		{"inner", 2, 5, 3},
		{"past end", 8, 40, 2},
		{"negative start", -1, 1, 1},
		{"inverted", 5, 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Slice(data, tt.start, tt.end)
			if err != nil {
				t.Fatalf("slice failed: %v", err)
			}
			info, err := Parse(out)
			if err != nil {
				t.Fatalf("sliced output unreadable: %v", err)
			}
			if math.Abs(info.Duration()-tt.want) > 1e-6 {
				t.Fatalf("expected %fs got %fs", tt.want, info.Duration())
			}
		})
	}
}

func TestReadInfoFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(path, Silence(0.75, 16000), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, err := ReadInfo(path)
	if err != nil {
		t.Fatalf("read info: %v", err)
	}
	if math.Abs(info.Duration()-0.75) > 1e-9 {
		t.Fatalf("expected 0.75s got %f", info.Duration())
	}
}
