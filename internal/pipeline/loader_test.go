package pipeline

import (
	"errors"
	stdimage "image"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"imagepipe/internal/imagepipe"
)

type stubLoader struct {
	calls   int
	block   chan struct{}
	data    []byte
	loadErr error
}

func (s *stubLoader) Load(req imagepipe.Request, progress func(completed, total int64), completion func(imagepipe.LoadResult)) imagepipe.Cancellable {
	s.calls++
	go func() {
		if s.block != nil {
			<-s.block
		}
		if progress != nil {
			progress(50, 100)
			progress(100, 100)
		}
		if s.loadErr != nil {
			completion(imagepipe.LoadResult{Err: s.loadErr})
		} else {
			completion(imagepipe.LoadResult{Data: s.data})
		}
	}()
	return imagepipe.CancelFunc(func() {})
}

type stubDecoder struct{ img stdimage.Image }

func (d stubDecoder) Decode(data []byte, resp imagepipe.Response) (imagepipe.Image, bool) {
	if d.img == nil {
		return imagepipe.Image{}, false
	}
	return imagepipe.Image{Img: d.img}, true
}

func newTestLoader(dl imagepipe.DataLoading, dec imagepipe.DataDecoding, cache imagepipe.DataCaching) *Loader {
	return NewLoader(NewDefaultExecutors(), dl, dec, cache, nil)
}

func TestLoader_Success(t *testing.T) {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 2, 2))
	l := newTestLoader(&stubLoader{data: []byte("bytes")}, stubDecoder{img: img}, nil)

	done := make(chan struct {
		img imagepipe.Image
		err error
	}, 1)
	l.Load(imagepipe.NewRequest("http://t/1"), nil, func(i imagepipe.Image, err error) {
		done <- struct {
			img imagepipe.Image
			err error
		}{i, err}
	})

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Equal(t, img, res.img.Img)
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
}

func TestLoader_LoadingFailed(t *testing.T) {
	cause := errors.New("connection reset")
	l := newTestLoader(&stubLoader{loadErr: cause}, stubDecoder{}, nil)

	done := make(chan error, 1)
	l.Load(imagepipe.NewRequest("http://t/1"), nil, func(_ imagepipe.Image, err error) {
		done <- err
	})

	select {
	case err := <-done:
		require.Error(t, err)
		require.ErrorIs(t, err, cause)
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
}

func TestLoader_DecodingFailed(t *testing.T) {
	l := newTestLoader(&stubLoader{data: []byte("bytes")}, stubDecoder{}, nil)

	done := make(chan error, 1)
	l.Load(imagepipe.NewRequest("http://t/1"), nil, func(_ imagepipe.Image, err error) {
		done <- err
	})

	select {
	case err := <-done:
		require.ErrorIs(t, err, imagepipe.ErrDecodingFailed)
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
}

func TestLoader_ProcessingFailed(t *testing.T) {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 2, 2))
	l := newTestLoader(&stubLoader{data: []byte("bytes")}, stubDecoder{img: img}, nil)

	req := imagepipe.NewRequest("http://t/1").WithProcessors(alwaysFailProcessor{})
	done := make(chan error, 1)
	l.Load(req, nil, func(_ imagepipe.Image, err error) {
		done <- err
	})

	select {
	case err := <-done:
		require.ErrorIs(t, err, imagepipe.ErrProcessingFailed)
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
}

func TestLoader_CancelBeforeStart_DropsCompletion(t *testing.T) {
	block := make(chan struct{})
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 2, 2))
	l := newTestLoader(&stubLoader{block: block, data: []byte("bytes")}, stubDecoder{img: img}, nil)

	fired := false
	c := l.Load(imagepipe.NewRequest("http://t/1"), nil, func(imagepipe.Image, error) {
		fired = true
	})
	c.Cancel()
	close(block)

	time.Sleep(50 * time.Millisecond)
	require.False(t, fired, "Loader must drop completion once the run is cancelled")
}

func TestLoader_DiskCacheHit_SkipsNetworkLoad(t *testing.T) {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 2, 2))
	netLoader := &stubLoader{data: []byte("network-bytes")}
	cache := &stubDiskCache{hitData: []byte("cached-bytes")}
	l := newTestLoader(netLoader, stubDecoder{img: img}, cache)

	done := make(chan error, 1)
	l.Load(imagepipe.NewRequest("http://t/1"), nil, func(_ imagepipe.Image, err error) {
		done <- err
	})

	select {
	case err := <-done:
		require.NoError(t, err)
		require.Equal(t, 0, netLoader.calls, "disk-cache hit must not fall through to the network loader")
	case <-time.After(time.Second):
		t.Fatal("completion never fired")
	}
}

type stubDiskCache struct {
	hitData []byte
	puts    int
}

func (c *stubDiskCache) Get(req imagepipe.Request) ([]byte, imagepipe.Response, bool) {
	if c.hitData == nil {
		return nil, imagepipe.Response{}, false
	}
	return c.hitData, imagepipe.Response{}, true
}

func (c *stubDiskCache) Put(req imagepipe.Request, data []byte, resp imagepipe.Response) {
	c.puts++
}

type alwaysFailProcessor struct{ imagepipe.NeverEqual }

func (alwaysFailProcessor) Name() string { return "always-fail" }
func (alwaysFailProcessor) Apply(imagepipe.Image) (imagepipe.Image, error) {
	return imagepipe.Image{}, errors.New("boom")
}
