package archive_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/illmade-knight/go-payflow/pkg/archive"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcher_FlushesOnSize(t *testing.T) {
	// Arrange
	writer := &MockWriter{}
	batcher, err := archive.NewBatcher(archive.BatcherConfig{BatchSize: 3, FlushInterval: time.Hour}, writer, zerolog.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batcher.Start(ctx)

	// Act
	for i := 0; i < 3; i++ {
		batcher.Archive(enrichedRecord(fmt.Sprintf("p-%d", i), "queue1", time.Now()))
	}

	// Assert
	require.Eventually(t, func() bool { return writer.GetCallCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, writer.RecordCount())
	require.NoError(t, batcher.Stop(context.Background()))
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	writer := &MockWriter{}
	batcher, err := archive.NewBatcher(archive.BatcherConfig{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, writer, zerolog.Nop())
	require.NoError(t, err)
	batcher.Start(context.Background())
	defer func() { _ = batcher.Stop(context.Background()) }()

	batcher.Archive(enrichedRecord("p-1", "queue1", time.Now()))

	require.Eventually(t, func() bool { return writer.RecordCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_StopFlushesAndCloses(t *testing.T) {
	writer := &MockWriter{}
	batcher, err := archive.NewBatcher(archive.BatcherConfig{BatchSize: 100, FlushInterval: time.Hour}, writer, zerolog.Nop())
	require.NoError(t, err)
	batcher.Start(context.Background())

	batcher.Archive(enrichedRecord("p-1", "queue1", time.Now()))
	batcher.Archive(enrichedRecord("p-2", "queue2", time.Now()))
	require.NoError(t, batcher.Stop(context.Background()))

	assert.Equal(t, 2, writer.RecordCount())
	assert.True(t, writer.closed)

	// Archiving after stop is dropped rather than panicking.
	assert.NotPanics(t, func() { batcher.Archive(enrichedRecord("p-3", "queue1", time.Now())) })
	assert.NoError(t, batcher.Stop(context.Background()))
}

func TestBatcher_ArchiveDoesNotBlockWhenFull(t *testing.T) {
	writer := &MockWriter{}
	// Not started: nothing drains the buffer.
	batcher, err := archive.NewBatcher(archive.BatcherConfig{BatchSize: 1, BufferSize: 1}, writer, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			batcher.Archive(enrichedRecord(fmt.Sprintf("p-%d", i), "queue1", time.Now()))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Archive blocked on a full buffer")
	}
}

func TestBatcher_WriteFailureIsSurvivable(t *testing.T) {
	writer := &MockWriter{err: errors.New("quota exceeded")}
	batcher, err := archive.NewBatcher(archive.BatcherConfig{BatchSize: 1, FlushInterval: time.Hour}, writer, zerolog.Nop())
	require.NoError(t, err)
	batcher.Start(context.Background())

	batcher.Archive(enrichedRecord("p-1", "queue1", time.Now()))
	require.NoError(t, batcher.Stop(context.Background()))
	assert.Equal(t, 0, writer.RecordCount())
}

func TestNewBatcher_NilWriter(t *testing.T) {
	_, err := archive.NewBatcher(archive.BatcherConfig{}, nil, zerolog.Nop())
	assert.Error(t, err)
}
