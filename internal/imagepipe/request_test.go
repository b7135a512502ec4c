package imagepipe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type nameOnlyProcessor struct {
	name string
}

func (p nameOnlyProcessor) Name() string                  { return p.name }
func (p nameOnlyProcessor) Apply(img Image) (Image, error) { return img, nil }
func (p nameOnlyProcessor) Equal(other Processor) bool {
	o, ok := other.(nameOnlyProcessor)
	return ok && o.name == p.name
}

func TestRequest_LoadingEquivalent(t *testing.T) {
	base := NewRequest("https://example.com/a.jpg")
	base.Timeout = 5 * time.Second

	same := base
	same.UserInfo = "irrelevant"
	require.True(t, base.LoadingEquivalent(same), "UserInfo must not affect loading equivalence")

	diffURL := base
	diffURL.URL = "https://example.com/b.jpg"
	require.False(t, base.LoadingEquivalent(diffURL))

	diffTimeout := base
	diffTimeout.Timeout = 10 * time.Second
	require.False(t, base.LoadingEquivalent(diffTimeout), "timeout participates in loading equivalence")

	diffProcessors := base.WithProcessors(nameOnlyProcessor{name: "resize"})
	require.False(t, base.LoadingEquivalent(diffProcessors))
}

func TestRequest_CachingEquivalent(t *testing.T) {
	base := NewRequest("https://example.com/a.jpg")
	base.Timeout = 5 * time.Second
	base.CachePolicy = CachePolicyReloadIgnoringCache

	diffTransport := base
	diffTransport.Timeout = 30 * time.Second
	diffTransport.CachePolicy = CachePolicyDefault
	require.True(t, base.CachingEquivalent(diffTransport), "transport hints must not affect caching equivalence")

	diffProcessors := base.WithProcessors(nameOnlyProcessor{name: "resize"})
	require.False(t, base.CachingEquivalent(diffProcessors))
}

func TestProcessorChain_Apply_StopsOnFirstError(t *testing.T) {
	chain := ProcessorChain{
		nameOnlyProcessor{name: "first"},
		failingProcessor{},
		nameOnlyProcessor{name: "never-runs"},
	}
	_, err := chain.Apply(Image{})
	require.ErrorIs(t, err, ErrProcessingFailed)
}

func TestProcessorChain_Apply_RecordsTrace(t *testing.T) {
	chain := ProcessorChain{
		nameOnlyProcessor{name: "resize"},
		nameOnlyProcessor{name: "grayscale"},
	}
	out, err := chain.Apply(Image{})
	require.NoError(t, err)
	require.Equal(t, []string{"resize", "grayscale"}, out.Trace)
}

type failingProcessor struct{ NeverEqual }

func (failingProcessor) Name() string                  { return "failing" }
func (failingProcessor) Apply(Image) (Image, error)     { return Image{}, ErrDecodingFailed }
