package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// tagReader delivers one trimmed line per tag read. After a tag is handed
// over, further lines are dropped until done is called, so taps made during
// a login never start another one.
type tagReader struct {
	source string // FIFO or device path; empty means stdin
	busy   atomic.Bool
}

func newTagReader(source string) *tagReader {
	return &tagReader{source: source}
}

func (r *tagReader) name() string {
	if r.source == "" {
		return "stdin"
	}
	return r.source
}

// done marks the last delivered tag as handled.
func (r *tagReader) done() {
	r.busy.Store(false)
}

// run reads tags until ctx is done or stdin ends. A named source is reopened
// when its writer goes away.
func (r *tagReader) run(ctx context.Context, tags chan<- string) {
	defer close(tags)

	for {
		src, closeFn, err := r.open()
		if err != nil {
			log.Error().Err(err).Str("source", r.name()).Msg("failed to open tag source")
			return
		}

		err = r.scan(ctx, src, tags)
		closeFn()
		if ctx.Err() != nil || r.source == "" {
			return
		}
		if err != nil && !errors.Is(err, io.EOF) {
			log.Warn().Err(err).Msg("tag source read failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (r *tagReader) open() (io.Reader, func(), error) {
	if r.source == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(r.source)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func (r *tagReader) scan(ctx context.Context, src io.Reader, tags chan<- string) error {
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		if r.busy.Load() {
			log.Debug().Msg("ignoring tag read during login")
			continue
		}

		r.busy.Store(true)
		select {
		case tags <- strings.TrimSpace(scanner.Text()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
