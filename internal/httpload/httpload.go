// Package httpload is a minimal net/http-backed implementation of
// imagepipe.DataLoading, the kind of concrete transport a repo
// implementing this system ships so the demo binary runs end-to-end.
// Transport semantics (redirects, retries, connection pooling policy) are
// explicitly out of scope; this wraps whatever *http.Client it is given.
package httpload

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"imagepipe/internal/imagepipe"
)

// Loader implements imagepipe.DataLoading over a plain *http.Client.
type Loader struct {
	client *http.Client
}

// New returns a Loader. A nil client uses http.DefaultClient.
func New(client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{client: client}
}

// Load issues a GET for req.URL on its own goroutine, honoring req.Timeout
// when set and the returned Cancellable's Cancel method, and invokes
// completion exactly once.
func (l *Loader) Load(req imagepipe.Request, progress func(completed, total int64), completion func(imagepipe.LoadResult)) imagepipe.Cancellable {
	ctx, cancel := context.WithCancel(context.Background())
	if req.Timeout > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, req.Timeout)
		prevCancel := cancel
		cancel = func() {
			timeoutCancel()
			prevCancel()
		}
	}

	go func() {
		defer cancel()
		result := l.fetch(ctx, req, progress)
		completion(result)
	}()

	return imagepipe.CancelFunc(cancel)
}

func (l *Loader) fetch(ctx context.Context, req imagepipe.Request, progress func(completed, total int64)) imagepipe.LoadResult {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return imagepipe.LoadResult{Err: fmt.Errorf("httpload: build request: %w", err)}
	}

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return imagepipe.LoadResult{Err: fmt.Errorf("httpload: do request: %w", err)}
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	var data []byte
	if total > 0 {
		data = make([]byte, 0, total)
	}
	buf := make([]byte, 32*1024)
	var completed int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			completed += int64(n)
			if progress != nil {
				progress(completed, total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return imagepipe.LoadResult{Err: fmt.Errorf("httpload: read body: %w", readErr)}
		}
		if ctx.Err() != nil {
			return imagepipe.LoadResult{Err: imagepipe.ErrCancelled}
		}
	}

	return imagepipe.LoadResult{
		Data: data,
		Response: imagepipe.Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
		},
	}
}
