// Package audio provides file-backed PCM sources and WAV helpers.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Source is a pull-based PCM byte provider. A zero-byte read means the
// source is exhausted.
type Source interface {
	io.Reader
	io.Closer
}

// Format describes PCM parameters declared by a WAV header.
type Format struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// Matches reports whether the format is 16-bit linear PCM at the given rate and channel count.
func (f Format) Matches(sampleRate int, channels int) bool {
	return f.AudioFormat == wavFormatPCM &&
		f.BitsPerSample == 16 &&
		int(f.SampleRate) == sampleRate &&
		int(f.Channels) == channels
}

// FileSource reads PCM from a raw file or from the data chunk of a WAV file.
type FileSource struct {
	file   *os.File
	reader io.Reader

	// Format is set when the file carried a WAV header.
	Format *Format
}

const (
	wavFormatPCM     = 1
	wavUnknownLength = 0xFFFFFFFF
)

// Open opens path for reading. RIFF/WAVE files are positioned at their data
// chunk. Anything else, including a RIFF header whose chunks cannot be
// walked to "data", is treated as headerless PCM from byte 0.
func Open(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio source %q: %w", path, err)
	}

	src := &FileSource{file: f, reader: f}
	format, data, err := locateWAVData(f)
	if err == nil && data != nil {
		src.Format = format
		src.reader = data
		return src, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rewind audio source %q: %w", path, err)
	}
	return src, nil
}

// Read reads up to len(p) bytes from the PCM payload.
func (s *FileSource) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}

// locateWAVData walks RIFF chunks up to "data". It returns a nil reader when
// the file is not RIFF/WAVE.
func locateWAVData(f *os.File) (*Format, io.Reader, error) {
	var riff [12]byte
	n, err := io.ReadFull(f, riff[:])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if n < len(riff) || !bytes.Equal(riff[0:4], []byte("RIFF")) || !bytes.Equal(riff[8:12], []byte("WAVE")) {
		return nil, nil, nil
	}

	var format *Format
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			return nil, nil, fmt.Errorf("missing data chunk: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "data":
			if size == wavUnknownLength {
				return format, f, nil
			}
			return format, io.LimitReader(f, int64(size)), nil
		case "fmt ":
			if size < 16 {
				return nil, nil, fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			var body [16]byte
			if _, err := io.ReadFull(f, body[:]); err != nil {
				return nil, nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			format = &Format{
				AudioFormat:   binary.LittleEndian.Uint16(body[0:2]),
				Channels:      binary.LittleEndian.Uint16(body[2:4]),
				SampleRate:    binary.LittleEndian.Uint32(body[4:8]),
				BitsPerSample: binary.LittleEndian.Uint16(body[14:16]),
			}
			if err := skip(f, int64(size)-16+int64(size%2)); err != nil {
				return nil, nil, err
			}
		default:
			if err := skip(f, int64(size)+int64(size%2)); err != nil {
				return nil, nil, err
			}
		}
	}
}

func skip(f *os.File, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := f.Seek(n, io.SeekCurrent); err != nil {
		return fmt.Errorf("skip wav chunk: %w", err)
	}
	return nil
}
