package video_fetcher

import (
	"context"
	"fmt"
	"io"

	"github.com/alanbriolat/video-fetcher/download"
)

const DefaultChunkSize = 8192

type Download interface {
	// AddDownloadedBytes increases how many bytes have been successfully downloaded so far.
	AddDownloadedBytes(n int)

	// SetExpectedBytes records the expected size of the download, or -1 if unknown.
	SetExpectedBytes(n int64)

	// Cancel the Download, stopping any in-progress I/O activity.
	Cancel()

	// Context is the cancellable context of this Download.
	Context() context.Context

	// Progress returns the downloaded and expected bytes of the download.
	Progress() (int64, int64)

	// SaveStream copies the stream in fixed-size chunks into a temporary file of state, calling AddDownloadedBytes as
	// it goes, then commits it as filename. Returns the final path.
	SaveStream(state *download.DownloadState, filename string, stream io.Reader) (string, error)

	// Write will ignore the data but will send the byte count to AddDownloadedBytes. Allows progress tracking using
	// io.MultiWriter (but ensure the Download is the last writer to avoid counting failed writes).
	Write(p []byte) (n int, err error)
}

type streamDownload struct {
	ctx              context.Context
	cancel           context.CancelFunc
	progressCallback ProgressFunc
	chunkSize        int
	expectedBytes    int64
	downloadedBytes  int64
}

func (d *streamDownload) AddDownloadedBytes(n int) {
	d.downloadedBytes += int64(n)
	d.notify()
}

func (d *streamDownload) SetExpectedBytes(n int64) {
	d.expectedBytes = n
	d.notify()
}

func (d *streamDownload) Cancel() {
	d.cancel()
}

func (d *streamDownload) Context() context.Context {
	return d.ctx
}

func (d *streamDownload) Progress() (int64, int64) {
	return d.downloadedBytes, d.expectedBytes
}

func (d *streamDownload) SaveStream(state *download.DownloadState, filename string, stream io.Reader) (string, error) {
	f, err := state.CreateTemp()
	if err != nil {
		return "", fmt.Errorf("failed to open temporary file: %w", err)
	}
	buf := make([]byte, d.chunkSize)
	if _, err = io.CopyBuffer(io.MultiWriter(f, d), NewContextReader(d.ctx, stream), buf); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to save stream: %w", err)
	}
	return state.Commit(f, filename)
}

func (d *streamDownload) Write(p []byte) (n int, err error) {
	n = len(p)
	d.AddDownloadedBytes(n)
	return n, nil
}

func (d *streamDownload) notify() {
	if d.progressCallback != nil {
		d.progressCallback(d.Progress())
	}
}

type DownloadBuilder interface {
	Build() Download
	WithContext(ctx context.Context) DownloadBuilder
	WithProgressCallback(f ProgressFunc) DownloadBuilder
	WithChunkSize(n int) DownloadBuilder
}

type downloadBuilder struct {
	ctx              context.Context
	progressCallback ProgressFunc
	chunkSize        int
}

func NewDownloadBuilder() DownloadBuilder {
	return &downloadBuilder{
		ctx:       context.Background(),
		chunkSize: DefaultChunkSize,
	}
}

func (b *downloadBuilder) Build() Download {
	d := streamDownload{expectedBytes: -1}
	d.ctx, d.cancel = context.WithCancel(b.ctx)
	d.progressCallback = b.progressCallback
	d.chunkSize = b.chunkSize
	return &d
}

func (b *downloadBuilder) WithContext(ctx context.Context) DownloadBuilder {
	b.ctx = ctx
	return b
}

func (b *downloadBuilder) WithProgressCallback(f ProgressFunc) DownloadBuilder {
	b.progressCallback = f
	return b
}

func (b *downloadBuilder) WithChunkSize(n int) DownloadBuilder {
	if n > 0 {
		b.chunkSize = n
	}
	return b
}
