// Package wav reads RIFF/WAVE PCM headers and cuts time ranges out of PCM
// data. Only uncompressed PCM is supported; the pipeline assumes 16kHz mono
// input after resampling.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	headerSize = 44
	fmtSize    = 16
)

var (
	ErrNotWAV      = errors.New("not a RIFF/WAVE file")
	ErrUnsupported = errors.New("unsupported WAV encoding")
	ErrNoData      = errors.New("WAV file has no data chunk")
)

// Info describes the PCM layout of a WAV payload
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	DataOffset    int64
	DataSize      int64
}

// BlockAlign is the size in bytes of one frame (all channels)
func (i Info) BlockAlign() int {
	return i.Channels * i.BitsPerSample / 8
}

// ByteRate is the number of data bytes per second
func (i Info) ByteRate() int {
	return i.SampleRate * i.BlockAlign()
}

// Duration of the data chunk in seconds
func (i Info) Duration() float64 {
	if i.ByteRate() == 0 {
		return 0
	}
	return float64(i.DataSize) / float64(i.ByteRate())
}

// Parse walks the RIFF chunks of data and returns the PCM layout
func Parse(data []byte) (*Info, error) {
	return parse(bytes.NewReader(data), int64(len(data)))
}

// ReadInfo parses the header of the WAV file at path
func ReadInfo(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return parse(f, st.Size())
}

func parse(r io.ReadSeeker, size int64) (*Info, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, ErrNotWAV
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	info := &Info{}
	var haveFmt bool
	offset := int64(12)
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, ErrNoData
		}
		id := string(hdr[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		offset += 8

		switch id {
		case "fmt ":
			if chunkSize < fmtSize {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupported)
			}
			if chunkSize > size-offset {
				return nil, fmt.Errorf("%w: fmt chunk of %d bytes overruns file", ErrNotWAV, chunkSize)
			}
			var buf [fmtSize]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			format := binary.LittleEndian.Uint16(buf[0:2])
			// 0xFFFE is WAVE_FORMAT_EXTENSIBLE, which ffmpeg emits for plain PCM too
			if format != 1 && format != 0xFFFE {
				return nil, fmt.Errorf("%w: format tag %d", ErrUnsupported, format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(buf[14:16]))
			haveFmt = true
			// extensible headers carry 24 more bytes we do not need
			if rest := chunkSize - fmtSize + chunkSize%2; rest > 0 {
				if _, err := r.Seek(rest, io.SeekCurrent); err != nil {
					return nil, ErrNoData
				}
			}
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data before fmt", ErrUnsupported)
			}
			info.DataOffset = offset
			info.DataSize = chunkSize
			// streaming writers leave the size at 0 or 0xFFFFFFFF
			if chunkSize == 0 || offset+chunkSize > size {
				info.DataSize = size - offset
			}
			if info.BlockAlign() == 0 {
				return nil, fmt.Errorf("%w: zero block align", ErrUnsupported)
			}
			return info, nil
		default:
			if _, err := r.Seek(chunkSize+chunkSize%2, io.SeekCurrent); err != nil {
				return nil, ErrNoData
			}
		}
		offset += chunkSize + chunkSize%2
	}
}

// Slice returns a standalone WAV holding [start, end) seconds of data.
// The range is clamped to the available audio.
func Slice(data []byte, start, end float64) ([]byte, error) {
	info, err := Parse(data)
	if err != nil {
		return nil, err
	}
	pcm := data[info.DataOffset : info.DataOffset+info.DataSize]
	from, to := info.byteRange(start, end)
	return Encode(pcm[from:to], info.SampleRate, info.Channels, info.BitsPerSample), nil
}

// SliceFile cuts [start, end) seconds out of the WAV file at path
func SliceFile(path string, start, end float64) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Slice(data, start, end)
}

func (i Info) byteRange(start, end float64) (int64, int64) {
	align := int64(i.BlockAlign())
	toByte := func(t float64) int64 {
		if t <= 0 {
			return 0
		}
		frames := int64(math.Floor(t * float64(i.SampleRate)))
		b := frames * align
		if b > i.DataSize {
			b = i.DataSize - i.DataSize%align
		}
		return b
	}
	from, to := toByte(start), toByte(end)
	if to < from {
		to = from
	}
	return from, to
}

// Encode wraps raw little-endian PCM in a canonical 44-byte header
func Encode(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// Silence returns a mono 16-bit WAV of the given length, used by health checks and tests
func Silence(seconds float64, sampleRate int) []byte {
	frames := int(seconds * float64(sampleRate))
	return Encode(make([]byte, frames*2), sampleRate, 1, 16)
}
