package flight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/hugr-lab/spice-go/internal/recovery"
)

// StreamOptions configures NewBatchStream. The zero value is usable.
type StreamOptions struct {
	// Allocator for decoded batches.
	// OPTIONAL: Uses memory.DefaultAllocator if nil.
	Allocator memory.Allocator

	// Logger for stream events.
	// OPTIONAL: Uses slog.Default() if nil.
	Logger *slog.Logger

	// Cancel is called when the stream ends or is closed, tearing down the
	// underlying call. It is not called when NewBatchStream fails.
	// OPTIONAL.
	Cancel context.CancelFunc
}

// BatchStream lazily decodes the record batches of one fetch.
//
// Batches are decoded one at a time as Next is called; nothing is buffered
// ahead. The first failure is reported once, after which the stream is
// finished and Next returns io.EOF. BatchStream is not safe for concurrent use.
type BatchStream struct {
	ctx    context.Context
	reader *flight.Reader
	schema *arrow.Schema
	cancel context.CancelFunc
	logger *slog.Logger

	batches int
	rows    int64
	err     error
	done    bool

	closeOnce sync.Once
}

// NewBatchStream opens a stream over r, reading the schema message eagerly.
//
// An RPC failure while opening is classified like a planning failure
// (ErrUnauthenticated, ErrTimeout or ErrTransport); a malformed schema
// message wraps ErrDecode.
func NewBatchStream(ctx context.Context, r flight.DataStreamReader, opts StreamOptions) (*BatchStream, error) {
	alloc := opts.Allocator
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reader, err := recovery.RecoverToValue(logger, "open stream", func() (*flight.Reader, error) {
		return flight.NewRecordReader(r, ipc.WithAllocator(alloc))
	})
	if err != nil {
		if !errors.Is(err, recovery.ErrPanic) && isRPCError(ctx, err) {
			return nil, classify(ctx, "fetch", err)
		}
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	return &BatchStream{
		ctx:    ctx,
		reader: reader,
		schema: reader.Schema(),
		cancel: opts.Cancel,
		logger: logger,
	}, nil
}

// Schema returns the schema shared by every batch.
func (s *BatchStream) Schema() *arrow.Schema {
	return s.schema
}

// Next returns the next batch. The caller owns one reference and must
// Release it. Returns io.EOF when the stream is exhausted, failed earlier,
// or was closed.
func (s *BatchStream) Next() (arrow.RecordBatch, error) {
	if s.done {
		return nil, io.EOF
	}

	batch, err := recovery.RecoverToValue(s.logger, "decode batch", func() (arrow.RecordBatch, error) {
		if s.reader.Next() {
			batch := s.reader.RecordBatch()
			batch.Retain()
			return batch, nil
		}
		if err := s.reader.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	})

	switch {
	case err == nil:
		s.batches++
		s.rows += batch.NumRows()
		return batch, nil
	case errors.Is(err, io.EOF):
		s.logger.Debug("Stream complete",
			"batches", s.batches,
			"rows", s.rows,
		)
		s.finish()
		return nil, io.EOF
	default:
		s.err = s.streamError(err)
		s.logger.Debug("Stream failed",
			"batches", s.batches,
			"rows", s.rows,
			"error", err,
		)
		s.finish()
		return nil, s.err
	}
}

// All returns a lazy sequence over the remaining batches. A failure is
// yielded once as the final element. Breaking out of the loop closes the
// stream. Each yielded batch must be released by the caller.
func (s *BatchStream) All() iter.Seq2[arrow.RecordBatch, error] {
	return func(yield func(arrow.RecordBatch, error) bool) {
		defer s.Close()
		for {
			batch, err := s.Next()
			if err == io.EOF { //nolint:errorlint // Next returns the bare sentinel
				return
			}
			if !yield(batch, err) || err != nil {
				return
			}
		}
	}
}

// Err returns the failure that ended the stream, if any.
func (s *BatchStream) Err() error {
	return s.err
}

// Stats returns the number of batches and rows yielded so far.
func (s *BatchStream) Stats() (batches int, rows int64) {
	return s.batches, s.rows
}

// Close stops the stream and releases its resources. Batches already
// returned stay valid. Safe to call more than once.
func (s *BatchStream) Close() {
	s.finish()
}

func (s *BatchStream) finish() {
	s.done = true
	s.closeOnce.Do(func() {
		recovery.Recover(s.logger, "release stream", s.reader.Release)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *BatchStream) streamError(err error) error {
	if timedOut(s.ctx, err) {
		return fmt.Errorf("%w: %w: %w", ErrDecode, ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrDecode, err)
}
