// Command imagepipe-fetch is a demo CLI wiring the pipeline core together
// end-to-end: disk-free Manager + Deduplicator + Loader + memory cache,
// a net/http data loader and a standard-library image decoder.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"imagepipe/internal/dedup"
	"imagepipe/internal/httpload"
	"imagepipe/internal/imagedecode"
	"imagepipe/internal/imagepipe"
	"imagepipe/internal/manager"
	"imagepipe/internal/memcache"
	"imagepipe/internal/pipeline"
	"imagepipe/internal/prefetch"
	"imagepipe/internal/stageexec"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type flags struct {
	url                string
	processors         []string
	preheat            []string
	concurrencyLoading int64
	concurrencyDecode  int64
	concurrencyProcess int64
	maxPreheat         int
	logLevel           string
}

func newRootCommand() *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "imagepipe-fetch",
		Short: "Fetch, decode and process an image through the pipeline core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.url, "url", "", "image URL to fetch (required)")
	cmd.Flags().StringArrayVar(&f.processors, "processor", nil, "processor to apply, repeatable (grayscale, resize:WIDTHxHEIGHT)")
	cmd.Flags().StringArrayVar(&f.preheat, "preheat", nil, "additional URL to prefetch in the background, repeatable")
	cmd.Flags().Int64Var(&f.concurrencyLoading, "concurrency-loading", pipeline.DefaultLoadingConcurrency, "max concurrent network loads")
	cmd.Flags().Int64Var(&f.concurrencyDecode, "concurrency-decode", pipeline.DefaultDecodingConcurrency, "max concurrent decodes")
	cmd.Flags().Int64Var(&f.concurrencyProcess, "concurrency-process", pipeline.DefaultProcessingConcurrency, "max concurrent processing passes")
	cmd.Flags().IntVar(&f.maxPreheat, "max-preheat", prefetch.DefaultMaxConcurrentPreheatTasks, "max concurrently running preheat tasks")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "warn", "logrus level (debug, info, warn, error)")

	_ = cmd.MarkFlagRequired("url")
	return cmd
}

func run(cmd *cobra.Command, f *flags) error {
	level, err := logrus.ParseLevel(f.logLevel)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := logrus.New()
	logger.SetLevel(level)
	log := logrus.NewEntry(logger)

	processors, err := parseProcessors(f.processors)
	if err != nil {
		return err
	}

	executors := pipeline.Executors{
		Caching:    stageexec.NewExecutor(pipeline.DefaultCachingConcurrency),
		Loading:    stageexec.NewExecutor(f.concurrencyLoading),
		Decoding:   stageexec.NewExecutor(f.concurrencyDecode),
		Processing: stageexec.NewExecutor(f.concurrencyProcess),
	}
	loader := pipeline.NewLoader(executors, httpload.New(nil), imagedecode.New(), nil, log)
	deduplicator := dedup.New(loader)
	defer deduplicator.Close()

	cache := memcache.NewCache(memcache.DefaultCostLimit(), log)

	mgr := manager.NewManager(deduplicator, cache, log)
	defer mgr.Close()

	var pf *prefetch.Prefetcher
	if len(f.preheat) > 0 {
		pf = prefetch.New(mgr, f.maxPreheat)
		defer pf.Close()
		pf.StartPreheating(buildRequests(f.preheat, nil))
	}

	req := imagepipe.NewRequest(f.url).WithProcessors(processors...)
	done := make(chan error, 1)
	out := cmd.OutOrStdout()

	task := mgr.MakeTask(req,
		func(completed, total int64) {
			fmt.Fprintf(out, "progress: %d/%d\n", completed, total)
		},
		func(img imagepipe.Image, err error) {
			if err != nil {
				done <- err
				return
			}
			b := img.Img.Bounds()
			fmt.Fprintf(out, "done: %dx%d, trace=%s\n", b.Dx(), b.Dy(), strings.Join(img.Trace, ","))
			done <- nil
		},
	)
	task.Resume()

	select {
	case err := <-done:
		return err
	case <-time.After(30 * time.Second):
		task.Cancel()
		return fmt.Errorf("imagepipe-fetch: timed out waiting for %s", f.url)
	}
}

func buildRequests(urls []string, processors imagepipe.ProcessorChain) []imagepipe.Request {
	out := make([]imagepipe.Request, len(urls))
	for i, u := range urls {
		out[i] = imagepipe.NewRequest(u).WithProcessors(processors...)
	}
	return out
}
