package media

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/time/rate"

	"github.com/IshaanNene/postharvest/internal/config"
	"github.com/IshaanNene/postharvest/internal/observability"
	"github.com/IshaanNene/postharvest/internal/types"
)

// Job is one image download with its file name already fixed.
type Job struct {
	URL  string
	Name string
}

// Result is the outcome of one Job. Err is nil when the file was written.
type Result struct {
	Job  Job
	Size int64
	Err  error
}

var unsafeChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// createTemp opens the partial file a download is streamed into.
var createTemp = os.CreateTemp

// SafeName replaces characters that are not allowed in file names.
func SafeName(s string) string {
	return unsafeChars.ReplaceAllString(s, "_")
}

// FileName returns the deterministic name of the n-th image of a prefix.
func FileName(prefix string, n int) string {
	return fmt.Sprintf("%s_%d.jpg", prefix, n)
}

// Assign numbers candidates in order starting at first. Names are fixed here,
// before anything is dispatched, so completion order never affects them.
func Assign(candidates []types.MediaCandidate, prefix string, first int) []Job {
	jobs := make([]Job, len(candidates))
	for i, c := range candidates {
		jobs[i] = Job{URL: string(c), Name: FileName(prefix, first+i)}
	}
	return jobs
}

// Fetcher downloads images through a shared worker pool.
type Fetcher struct {
	client    *http.Client
	pool      *Pool
	limiter   *rate.Limiter
	timeout   time.Duration
	maxSize   int64
	userAgent string
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher and starts its worker pool. Call Close when done.
func NewFetcher(cfg config.MediaConfig, metrics *observability.Metrics, logger *slog.Logger) *Fetcher {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: cfg.Workers,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true, // decoded in decompressReader, including brotli
	}

	pool := NewPool(cfg.Workers, logger)
	pool.Start()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), pool.Workers())
	}

	return &Fetcher{
		client:    &http.Client{Transport: transport},
		pool:      pool,
		limiter:   limiter,
		timeout:   cfg.Timeout,
		maxSize:   cfg.MaxSize,
		userAgent: cfg.UserAgent,
		metrics:   metrics,
		logger:    logger.With("component", "media_fetcher"),
	}
}

// Close stops the worker pool after in-flight downloads finish.
func (f *Fetcher) Close() {
	f.pool.Stop()
}

// FetchAll downloads candidates into dir as prefix_1.jpg, prefix_2.jpg and so on.
// It returns the names that were written, in candidate order.
func (f *Fetcher) FetchAll(ctx context.Context, candidates []types.MediaCandidate, dir, prefix string) ([]string, error) {
	results, err := f.FetchJobs(ctx, Assign(candidates, prefix, 1), dir)
	return Written(results), err
}

// Written returns the names of successful results, in order.
func Written(results []Result) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			names = append(names, r.Job.Name)
		}
	}
	return names
}

// FetchJobs runs every job on the pool and waits for the batch. Results are
// aligned with jobs. A failed job is logged and skipped; the returned error is
// non-nil only when the destination cannot be written at all, such as a full disk.
func (f *Fetcher) FetchJobs(ctx context.Context, jobs []Job, dir string) ([]Result, error) {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return results, &types.StorageError{Backend: "media", Err: err}
	}

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		fatalMu  sync.Mutex
		fatalErr error
	)

	for i := range jobs {
		results[i].Job = jobs[i]
		wg.Add(1)
		err := f.pool.Submit(batchCtx, func() {
			defer wg.Done()
			size, err := f.fetchOne(batchCtx, jobs[i], dir)
			results[i].Size = size
			results[i].Err = err
			if err != nil && types.IsResourceExhausted(err) {
				fatalMu.Lock()
				if fatalErr == nil {
					fatalErr = &types.StorageError{Backend: "media", Err: err}
				}
				fatalMu.Unlock()
				cancel()
			}
		})
		if err != nil {
			wg.Done()
			results[i].Err = err
		}
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			f.metrics.MediaSkipped.Add(1)
			f.logger.Warn("image skipped", "url", r.Job.URL, "name", r.Job.Name, "error", r.Err)
		}
	}

	return results, fatalErr
}

// fetchOne downloads a single job under its own timeout and writes it atomically.
func (f *Fetcher) fetchOne(ctx context.Context, job Job, dir string) (int64, error) {
	f.metrics.ActiveDownloads.Add(1)
	defer f.metrics.ActiveDownloads.Add(-1)

	if err := f.limiter.Wait(ctx); err != nil {
		return 0, &types.TransportError{URL: job.URL, Err: err}
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.URL, nil)
	if err != nil {
		return 0, &types.TransportError{URL: job.URL, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, &types.TransportError{URL: job.URL, Err: err}
	}
	defer resp.Body.Close()

	if !acceptableStatus(resp.StatusCode) {
		return 0, &types.TransportError{URL: job.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	if ct := resp.Header.Get("Content-Type"); !acceptableType(ct) {
		return 0, &types.TransportError{URL: job.URL, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %s", types.ErrUnexpectedType, ct)}
	}
	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return 0, &types.TransportError{URL: job.URL, Err: fmt.Errorf("%w: %d bytes", types.ErrTooLarge, resp.ContentLength)}
	}

	body, err := decompressReader(resp, resp.Body)
	if err != nil {
		return 0, &types.TransportError{URL: job.URL, Err: err}
	}

	size, err := f.writeAtomic(body, filepath.Join(dir, job.Name))
	if err != nil {
		if types.IsResourceExhausted(err) {
			return 0, err
		}
		return 0, &types.TransportError{URL: job.URL, Err: err}
	}

	f.metrics.MediaDownloaded.Add(1)
	f.metrics.BytesDownloaded.Add(size)
	f.logger.Debug("image saved", "name", job.Name, "size", size, "duration", time.Since(start))
	return size, nil
}

// writeAtomic streams r into a temporary file next to dest and renames it into
// place. Nothing is left at dest, or in dir, when the copy fails.
func (f *Fetcher) writeAtomic(r io.Reader, dest string) (int64, error) {
	tmp, err := createTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	src := r
	if f.maxSize > 0 {
		src = io.LimitReader(r, f.maxSize+1)
	}
	size, err := io.Copy(tmp, src)
	if err != nil {
		return 0, err
	}
	if f.maxSize > 0 && size > f.maxSize {
		return 0, fmt.Errorf("%w: more than %d bytes", types.ErrTooLarge, f.maxSize)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return 0, err
	}
	committed = true
	return size, nil
}

// acceptableStatus accepts any 2xx except empty and partial bodies.
func acceptableStatus(code int) bool {
	if code == http.StatusNoContent || code == http.StatusPartialContent {
		return false
	}
	return code >= 200 && code < 300
}

// acceptableType gates downloads on the declared content type. Image CDNs
// sometimes omit it or send a generic binary type.
func acceptableType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case ct == "":
		return true
	case strings.HasPrefix(ct, "image/"):
		return true
	case strings.HasPrefix(ct, "application/octet-stream"):
		return true
	default:
		return false
	}
}

// decompressReader wraps a reader with the decoder for the response encoding.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}
