package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	wavHeaderSize = 44
	formatPCM     = 1
)

var (
	ErrNotWAV    = errors.New("not a valid WAV file")
	ErrNotPCM    = errors.New("only PCM WAV is supported")
	ErrNoWAVData = errors.New("WAV file has no data chunk")
)

// Format describes raw PCM audio.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is 16 kHz 16-bit mono.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

// BytesPerSecond returns the PCM data rate.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// Duration returns how long n bytes of PCM last.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// ReadWAVHeader validates a RIFF/WAVE stream and positions r at the start of
// the PCM data. Chunks other than "fmt " and "data" are skipped.
func ReadWAVHeader(r io.Reader) (Format, error) {
	riff := make([]byte, 12)
	if _, err := io.ReadFull(r, riff); err != nil {
		return Format{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Format{}, ErrNotWAV
	}

	var (
		f      Format
		hasFmt bool
		hdr    = make([]byte, 8)
	)
	for {
		if _, err := io.ReadFull(r, hdr); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Format{}, ErrNoWAVData
			}
			return Format{}, fmt.Errorf("read WAV chunk: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, fmt.Errorf("read WAV fmt chunk: %w", err)
			}
			if len(body) < 16 {
				return Format{}, ErrNotWAV
			}
			if binary.LittleEndian.Uint16(body[0:2]) != formatPCM {
				return Format{}, ErrNotPCM
			}
			f = Format{
				Channels:      int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate:    int(binary.LittleEndian.Uint32(body[4:8])),
				BitsPerSample: int(binary.LittleEndian.Uint16(body[14:16])),
			}
			hasFmt = true
		case "data":
			if !hasFmt {
				return Format{}, ErrNotWAV
			}
			return f, nil
		default:
			// chunks are word aligned
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return Format{}, fmt.Errorf("skip WAV chunk %q: %w", id, err)
			}
		}
	}
}

// EncodeWAV wraps PCM data in a canonical 44 byte WAV header.
func EncodeWAV(f Format, pcm []byte) []byte {
	out := make([]byte, wavHeaderSize+len(pcm))
	blockAlign := f.Channels * f.BitsPerSample / 8

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], formatPCM)
	binary.LittleEndian.PutUint16(out[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(f.BytesPerSecond()))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(f.BitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)

	return out
}
