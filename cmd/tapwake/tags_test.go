package main

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAsync(ctx context.Context, r *tagReader, src io.Reader, tags chan<- string) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- r.scan(ctx, src, tags) }()
	return errCh
}

func receiveTag(t *testing.T, tags <-chan string) string {
	t.Helper()
	select {
	case tag := <-tags:
		return tag
	case <-time.After(2 * time.Second):
		t.Fatal("no tag delivered")
		return ""
	}
}

func TestTagReader_DropsTagsWhileBusy(t *testing.T) {
	r := newTagReader("")
	tags := make(chan string, 8)

	errCh := scanAsync(context.Background(), r, strings.NewReader("tag1\ntag2\ntag3\ntag4\n"), tags)

	assert.Equal(t, "tag1", receiveTag(t, tags))
	require.NoError(t, <-errCh)
	assert.Empty(t, tags, "tags read before done must be dropped")
}

func TestTagReader_DeliversAgainAfterDone(t *testing.T) {
	r := newTagReader("")
	tags := make(chan string, 8)

	require.NoError(t, <-scanAsync(context.Background(), r, strings.NewReader(" tag1 \ntag2\n"), tags))
	assert.Equal(t, "tag1", receiveTag(t, tags))
	assert.Empty(t, tags)

	r.done()

	require.NoError(t, <-scanAsync(context.Background(), r, strings.NewReader("tag3\ntag4\n"), tags))
	assert.Equal(t, "tag3", receiveTag(t, tags))
	assert.Empty(t, tags)
}

func TestTagReader_SlowLoginDropsLaterTaps(t *testing.T) {
	r := newTagReader("")
	tags := make(chan string, 8)
	pr, pw := io.Pipe()
	defer func() { _ = pw.Close() }()

	errCh := scanAsync(context.Background(), r, pr, tags)

	_, err := io.WriteString(pw, "tag1\n")
	require.NoError(t, err)
	assert.Equal(t, "tag1", receiveTag(t, tags))

	// Taps during the login.
	_, err = io.WriteString(pw, "tag2\ntag3\n")
	require.NoError(t, err)
	_, err = io.WriteString(pw, "tag4\n")
	require.NoError(t, err)

	// The pipe hands data over only once the previous write is consumed, so
	// the scanner has seen tag2 and tag3 by now; close to let it finish tag4.
	require.NoError(t, pw.Close())
	require.NoError(t, <-errCh)

	assert.Empty(t, tags, "taps during the login must be dropped")
}

func TestTagReader_EmptyLineIsDelivered(t *testing.T) {
	r := newTagReader("")
	tags := make(chan string, 1)

	require.NoError(t, <-scanAsync(context.Background(), r, strings.NewReader("\n"), tags))
	assert.Equal(t, "", receiveTag(t, tags))
}

func TestTagReader_StopsOnCancel(t *testing.T) {
	r := newTagReader("")
	tags := make(chan string)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := scanAsync(ctx, r, strings.NewReader("tag1\n"), tags)
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestTagReader_Name(t *testing.T) {
	assert.Equal(t, "stdin", newTagReader("").name())
	assert.Equal(t, "/run/tapwake/tags", newTagReader("/run/tapwake/tags").name())
}
