package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	f := Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}

	wav := EncodeWAV(f, pcm)

	if len(wav) != wavHeaderSize+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", wavHeaderSize+len(pcm), len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 16000 {
		t.Errorf("expected byte rate 16000, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 4 {
		t.Errorf("expected data size 4, got %d", got)
	}

	parsed, err := ReadWAVHeader(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != f {
		t.Errorf("expected %+v, got %+v", f, parsed)
	}
}

func TestReadWAVHeader_SkipsExtraChunks(t *testing.T) {
	wav := EncodeWAV(DefaultFormat, []byte{9, 9})

	// insert a LIST chunk with an odd size between fmt and data
	var buf bytes.Buffer
	buf.Write(wav[:36])
	buf.WriteString("LIST")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(3))
	buf.Write([]byte{'a', 'b', 'c', 0})
	buf.Write(wav[36:])

	r := bytes.NewReader(buf.Bytes())
	f, err := ReadWAVHeader(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != DefaultFormat {
		t.Errorf("unexpected format %+v", f)
	}
	rest := make([]byte, 2)
	if _, err := r.Read(rest); err != nil || rest[0] != 9 {
		t.Errorf("expected reader positioned at PCM data, got %v err=%v", rest, err)
	}
}

func TestReadWAVHeader_Rejects(t *testing.T) {
	notPCM := EncodeWAV(DefaultFormat, nil)
	binary.LittleEndian.PutUint16(notPCM[20:22], 3) // IEEE float

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"mp3", []byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00"), ErrNotWAV},
		{"not pcm", notPCM, ErrNotPCM},
		{"no data chunk", EncodeWAV(DefaultFormat, nil)[:36], ErrNoWAVData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadWAVHeader(bytes.NewReader(tt.data))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFormat_Duration(t *testing.T) {
	if got := DefaultFormat.Duration(32000); got != time.Second {
		t.Errorf("expected 1s for 32000 bytes at 16kHz mono 16-bit, got %v", got)
	}
	if got := (Format{}).Duration(100); got != 0 {
		t.Errorf("expected 0 for empty format, got %v", got)
	}
}

func TestWAVMicrophone_StreamsFile(t *testing.T) {
	pcm := make([]byte, 10)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "answer.wav")
	if err := os.WriteFile(path, EncodeWAV(DefaultFormat, pcm), 0o600); err != nil {
		t.Fatalf("write wav: %v", err)
	}

	mic := &WAVMicrophone{Path: path, ChunkBytes: 4}
	stream, err := mic.Open(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stream.Format() != DefaultFormat {
		t.Errorf("unexpected format %+v", stream.Format())
	}

	var got []byte
	for len(got) < len(pcm) {
		select {
		case chunk := <-stream.Chunks():
			got = append(got, chunk...)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d bytes", len(got))
		}
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("expected %v, got %v", pcm, got)
	}

	stream.Close()
	select {
	case _, ok := <-stream.Chunks():
		if ok {
			t.Error("expected no more chunks after close")
		}
	case <-time.After(time.Second):
		t.Error("expected chunks channel closed after Close")
	}
}

func TestWAVMicrophone_OpenFailures(t *testing.T) {
	dir := t.TempDir()
	mp3 := filepath.Join(dir, "reply.mp3")
	if err := os.WriteFile(mp3, []byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"no path", ""},
		{"missing file", filepath.Join(dir, "missing.wav")},
		{"not wav", mp3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&WAVMicrophone{Path: tt.path}).Open(context.Background())
			var permErr *PermissionError
			if !errors.As(err, &permErr) {
				t.Errorf("expected PermissionError, got %v", err)
			}
		})
	}
}
