package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Source is anything that can produce the raw transaction table. Identity
// must change whenever the underlying content may have changed.
type Source interface {
	Identity() (string, error)
	Load(ctx context.Context) (Table, error)
}

type FileSource struct {
	Path     string
	Encoding Encoding
}

func (s FileSource) Identity() (string, error) {
	abs, err := filepath.Abs(s.Path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat file: %w", err)
	}
	return fmt.Sprintf("file:%s:%d:%d:%s", abs, info.Size(), info.ModTime().UnixNano(), s.Encoding), nil
}

func (s FileSource) Load(ctx context.Context) (Table, error) {
	if err := ctx.Err(); err != nil {
		return Table{}, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return Table{}, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return ReadCSV(f, s.Encoding)
}

// ReaderSource wraps already-open content, for example an uploaded file.
// Name is its identity, so callers should derive it from the content.
type ReaderSource struct {
	Name     string
	Reader   io.Reader
	Encoding Encoding
}

func (s ReaderSource) Identity() (string, error) {
	if s.Name == "" {
		return "", fmt.Errorf("reader source needs a name")
	}
	return "reader:" + s.Name, nil
}

func (s ReaderSource) Load(ctx context.Context) (Table, error) {
	if err := ctx.Err(); err != nil {
		return Table{}, err
	}
	return ReadCSV(s.Reader, s.Encoding)
}

// BytesSource is a ReaderSource that can be loaded more than once.
func BytesSource(name string, data []byte, enc Encoding) Source {
	return bytesSource{name: name, data: data, enc: enc}
}

type bytesSource struct {
	name string
	data []byte
	enc  Encoding
}

func (s bytesSource) Identity() (string, error) {
	return ReaderSource{Name: s.name}.Identity()
}

func (s bytesSource) Load(ctx context.Context) (Table, error) {
	return ReaderSource{Name: s.name, Reader: bytes.NewReader(s.data), Encoding: s.enc}.Load(ctx)
}

type MemorySource struct {
	Name  string
	Table Table
}

func (s MemorySource) Identity() (string, error) {
	return "memory:" + s.Name, nil
}

func (s MemorySource) Load(ctx context.Context) (Table, error) {
	return s.Table, ctx.Err()
}
