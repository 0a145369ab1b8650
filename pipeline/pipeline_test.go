package pipeline

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.Book
	closed      bool
	writeErr    error
	validateErr error
}

func (mw *mockWriter) Write(books []*models.Book) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	if mw.writeErr != nil {
		return mw.writeErr
	}
	copyBatch := make([]*models.Book, len(books))
	copy(copyBatch, books)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) written() []*models.Book {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	var all []*models.Book
	for _, batch := range mw.batches {
		all = append(all, batch...)
	}
	return all
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

func (mw *mockWriter) isClosed() bool {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.closed
}

type blockingWriter struct {
	blockCh chan struct{}
	closed  bool
}

func (bw *blockingWriter) Write(books []*models.Book) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	bw.closed = true
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

func testBook(i int) *models.Book {
	return &models.Book{
		DetailURL:      "http://example.test/catalogue/book_" + strconv.Itoa(i) + "/index.html",
		UPC:            "upc-" + strconv.Itoa(i),
		Title:          "Book " + strconv.Itoa(i),
		PriceInclTax:   "£12.00",
		PriceExclTax:   "£10.00",
		AvailableCount: 3,
		Category:       "Poetry",
		Rating:         3,
	}
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	valid := testBook(1)
	invalid := testBook(2)
	invalid.DetailURL = ""
	outOfRange := testBook(3)
	outOfRange.Rating = 9
	duplicate := testBook(1)

	if err := p.Process(valid, invalid, outOfRange, duplicate); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := len(writer.written()); got != 1 {
		t.Fatalf("written books = %d, want 1", got)
	}
	if p.Processed() != 1 {
		t.Fatalf("processed = %d, want 1", p.Processed())
	}
	if p.Written() != 1 {
		t.Fatalf("written = %d, want 1", p.Written())
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] != 2 {
		t.Fatalf("invalid_record = %d, want 2", validation["invalid_record"])
	}
	if validation["duplicate_url"] != 1 {
		t.Fatalf("duplicate_url = %d, want 1", validation["duplicate_url"])
	}
}

func TestPipelinePreservesOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 7
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 50; i++ {
		if err := p.Process(testBook(i)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	books := writer.written()
	if len(books) != 50 {
		t.Fatalf("written = %d, want 50", len(books))
	}
	for i, book := range books {
		if book.UPC != "upc-"+strconv.Itoa(i) {
			t.Fatalf("book %d = %s, out of order", i, book.UPC)
		}
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 64
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 65; i++ {
		if err := p.Process(testBook(i)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	for i := 0; i < 100; i++ {
		if err := p.Process(testBook(i + 200)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := len(writer.written()); got != 100 {
		t.Fatalf("written books = %d, want 100", got)
	}
	if !writer.isClosed() {
		t.Fatal("writer not closed")
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, config.DefaultConfig())
	p.Start(1)

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process(testBook(1)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestPipelineWriteError(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1
	writer := &mockWriter{writeErr: errors.New("disk full")}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	_ = p.Process(testBook(1))

	err := p.Close()
	if err == nil {
		t.Fatal("expected write error from close")
	}
	if !errors.Is(err, writer.writeErr) {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
	if !writer.isClosed() {
		t.Fatal("writer should still be closed after a write error")
	}
	if p.Processed() != 1 || p.Written() != 0 {
		t.Fatalf("processed = %d, written = %d, want 1 and 0", p.Processed(), p.Written())
	}
}

func TestPipelineValidateError(t *testing.T) {
	writer := &mockWriter{validateErr: errors.New("short file")}
	p := NewPipeline(context.Background(), writer, config.DefaultConfig())
	p.Start(1)

	if err := p.Process(testBook(1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); !errors.Is(err, writer.validateErr) {
		t.Fatalf("expected validate error, got %v", err)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	if err := p.Process(testBook(1)); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
	if writer.closed {
		t.Fatal("writer must not be closed while a write is in flight")
	}
}

func TestPipelineProcessHonoursContext(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PipelineBufferSize = 1
	cfg.BatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	t.Cleanup(func() { close(writer.blockCh) })

	ctx, cancel := context.WithCancel(context.Background())
	p := NewPipeline(ctx, writer, cfg)
	p.Start(1)

	// The worker blocks on the first record and the second fills the buffer.
	_ = p.Process(testBook(1))
	_ = p.Process(testBook(2))

	done := make(chan error, 1)
	go func() { done <- p.Process(testBook(3)) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("process did not return after cancellation")
	}
}
