package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/jzx17/cropflow/internal/logging"
	"github.com/jzx17/cropflow/pkg/limiter"
	"github.com/jzx17/cropflow/pkg/retry"
	"github.com/jzx17/cropflow/pkg/transform"
	"github.com/jzx17/cropflow/pkg/types"
	"github.com/jzx17/cropflow/pkg/worker"
)

// Stage names a pipeline stage
type Stage string

const (
	StageLoad      Stage = "load"
	StageTransform Stage = "transform"
	StagePersist   Stage = "persist"
)

// Loader fetches encoded source bytes
type Loader interface {
	Load(ctx context.Context, uri string) ([]byte, error)
}

// Persister stores a rendered blob under key and returns where it can be found
type Persister interface {
	Persist(ctx context.Context, key string, blob transform.Blob) (string, error)
}

// Job is one crop of one source
type Job struct {
	ID     string           `json:"id" mapstructure:"id"`
	Source string           `json:"source" mapstructure:"source"`
	Key    string           `json:"key" mapstructure:"key"`
	Params transform.Params `json:"params" mapstructure:"params"`
}

// Output is a persisted result
type Output struct {
	JobID  string
	Key    string
	URL    string
	Width  int
	Height int
	Size   int
}

// Failure records the stage a job was dropped at
type Failure struct {
	JobID string
	Stage Stage
}

// Report summarizes a batch
type Report struct {
	BatchID     string
	Attempted   int
	Loaded      int
	Transformed int
	Succeeded   int
	Outputs     []Output
	Failures    []Failure
	Duration    time.Duration
}

// Config defines configuration for Pipeline
type Config struct {
	// LoadLimit caps concurrent source loads
	LoadLimit int

	// TransformLimit caps tasks submitted to the pool at once; 0 means the pool size
	TransformLimit int

	// PersistLimit caps concurrent uploads
	PersistLimit int

	// LoadRate limits source loads per second; 0 disables throttling
	LoadRate float64

	// Retry is applied to load and persist; nil disables retries
	Retry retry.RetryPolicy

	// OnJobDone is called once per job when it is persisted or dropped.
	// It may be called concurrently.
	OnJobDone func(jobID string, ok bool)

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// Logger (optional, defaults to slog.Default())
	Logger *slog.Logger
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		LoadLimit:    8,
		PersistLimit: 4,
		Retry: retry.NewExponentialBackoffRetry(3, 200*time.Millisecond,
			retry.WithMaxDelay(5*time.Second),
			retry.WithPolicyOptions(retry.WithJitter(true, 0.2))),
		Clock: types.NewRealClock(),
	}
}

// Pipeline wires a loader, a worker pool and a persister into batch runs
type Pipeline struct {
	pool      *worker.Pool
	loader    Loader
	persister Persister
	config    *Config
	retrier   *retry.RetryExecutor
	clock     types.Clock
	logger    *slog.Logger
}

// New creates a Pipeline; nil config uses defaults
func New(pool *worker.Pool, loader Loader, persister Persister, config *Config) (*Pipeline, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", types.ErrInvalidInput)
	}
	if loader == nil {
		return nil, fmt.Errorf("%w: nil loader", types.ErrInvalidInput)
	}
	if persister == nil {
		return nil, fmt.Errorf("%w: nil persister", types.ErrInvalidInput)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.LoadLimit < 0 || config.TransformLimit < 0 || config.PersistLimit < 0 {
		return nil, fmt.Errorf("%w: stage limits must not be negative", types.ErrInvalidInput)
	}
	if config.TransformLimit == 0 {
		config.TransformLimit = pool.Size()
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pipeline")

	p := &Pipeline{
		pool:      pool,
		loader:    loader,
		persister: persister,
		config:    config,
		clock:     config.Clock,
		logger:    logger,
	}
	if config.Retry != nil {
		p.retrier = retry.NewRetryExecutor(config.Retry,
			retry.WithClock(config.Clock),
			retry.WithEventHandler(retry.NewLogEventHandler(logger)))
	}
	return p, nil
}

type loadedJob struct {
	job    Job
	bitmap *transform.Bitmap
}

type renderedJob struct {
	job  Job
	blob transform.Blob
}

// Run executes the batch. It never fails as a whole: the report lists what
// got through and where the rest was dropped.
func (p *Pipeline) Run(ctx context.Context, jobs []Job) Report {
	start := p.clock.Now()
	batchID := uuid.NewString()
	ctx = logging.WithBatchID(ctx, batchID)

	jobs = normalizeJobs(jobs)
	report := Report{BatchID: batchID, Attempted: len(jobs)}
	p.logger.InfoContext(ctx, "batch started", "jobs", len(jobs))

	// stage 1: every distinct source is loaded once
	sources, sourceOf := distinctSources(jobs)
	load := WithRetry(p.load, p.retrier, string(StageLoad))
	loadOpts := p.stageOptions(StageLoad)
	if p.config.LoadRate > 0 {
		loadOpts = append(loadOpts, limiter.WithRateLimit(p.config.LoadRate, max(1, p.config.LoadLimit)))
	}
	bitmaps := limiter.RunBounded(ctx, sources, p.config.LoadLimit,
		func(ctx context.Context, uri string, _ int) (*transform.Bitmap, error) {
			return load(ctx, uri)
		}, loadOpts...)

	loaded := make([]loadedJob, 0, len(jobs))
	for i, job := range jobs {
		b := bitmaps[sourceOf[i]]
		if b == nil {
			report.Failures = append(report.Failures, p.drop(job, StageLoad))
			continue
		}
		loaded = append(loaded, loadedJob{job: job, bitmap: *b})
	}
	report.Loaded = len(loaded)

	// stage 2: the pool bounds parallelism, the limiter bounds queued tasks
	blobs := limiter.RunBounded(ctx, loaded, p.config.TransformLimit,
		func(ctx context.Context, lj loadedJob, _ int) (transform.Blob, error) {
			task := worker.Task{ID: lj.job.ID, Source: lj.bitmap, Params: lj.job.Params}
			return p.pool.Submit(task).GetWithContext(ctx)
		}, p.stageOptions(StageTransform)...)

	rendered := make([]renderedJob, 0, len(loaded))
	for i, lj := range loaded {
		if blobs[i] == nil {
			report.Failures = append(report.Failures, p.drop(lj.job, StageTransform))
			continue
		}
		rendered = append(rendered, renderedJob{job: lj.job, blob: *blobs[i]})
	}
	report.Transformed = len(rendered)

	// stage 3
	persist := WithRetry(p.persist, p.retrier, string(StagePersist))
	// successes report progress as they land; failures and skipped jobs are dropped below
	persistOpts := append(p.stageOptions(StagePersist), limiter.WithOnSettle(func(i int, ok bool) {
		if ok {
			p.jobDone(rendered[i].job.ID, true)
		}
	}))
	outputs := limiter.RunBounded(ctx, rendered, p.config.PersistLimit,
		func(ctx context.Context, rj renderedJob, _ int) (Output, error) {
			return persist(ctx, rj)
		}, persistOpts...)

	for i, rj := range rendered {
		if outputs[i] == nil {
			report.Failures = append(report.Failures, p.drop(rj.job, StagePersist))
		}
	}
	report.Outputs = limiter.Compact(outputs)
	report.Succeeded = len(report.Outputs)
	report.Duration = p.clock.Since(start)

	p.logger.InfoContext(ctx, "batch finished",
		"attempted", report.Attempted,
		"loaded", report.Loaded,
		"transformed", report.Transformed,
		"succeeded", report.Succeeded,
		"duration", report.Duration,
	)
	return report
}

// Crop renders a single source through the pool
func (p *Pipeline) Crop(ctx context.Context, source transform.Source, params transform.Params) (transform.Blob, error) {
	return p.pool.Crop(ctx, source, params)
}

// TransformAll submits every task to pool with at most limit outstanding.
// Position i of the result holds the blob of tasks[i] or nil.
func TransformAll(ctx context.Context, pool *worker.Pool, tasks []worker.Task, limit int, opts ...limiter.Option) []*transform.Blob {
	return limiter.RunBounded(ctx, tasks, limit, func(ctx context.Context, task worker.Task, _ int) (transform.Blob, error) {
		return pool.Submit(task).GetWithContext(ctx)
	}, append([]limiter.Option{limiter.WithName(string(StageTransform))}, opts...)...)
}

func (p *Pipeline) load(ctx context.Context, uri string) (*transform.Bitmap, error) {
	data, err := p.loader.Load(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", uri, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("load %s: %w: empty body", uri, types.ErrInvalidInput)
	}
	return transform.NewBitmap(data), nil
}

func (p *Pipeline) persist(ctx context.Context, rj renderedJob) (Output, error) {
	key := OutputKey(rj.job, rj.blob.ContentType)
	url, err := p.persister.Persist(ctx, key, rj.blob)
	if err != nil {
		return Output{}, fmt.Errorf("persist %s: %w", key, err)
	}
	return Output{
		JobID:  rj.job.ID,
		Key:    key,
		URL:    url,
		Width:  rj.blob.Width,
		Height: rj.blob.Height,
		Size:   rj.blob.Size(),
	}, nil
}

func (p *Pipeline) stageOptions(stage Stage) []limiter.Option {
	return []limiter.Option{
		limiter.WithName(string(stage)),
		limiter.WithLogger(p.logger),
	}
}

func (p *Pipeline) drop(job Job, stage Stage) Failure {
	p.jobDone(job.ID, false)
	return Failure{JobID: job.ID, Stage: stage}
}

func (p *Pipeline) jobDone(jobID string, ok bool) {
	if p.config.OnJobDone != nil {
		p.config.OnJobDone(jobID, ok)
	}
}

// OutputKey returns the storage key of a job's result. A key without an
// extension gets the one matching contentType.
func OutputKey(job Job, contentType string) string {
	key := job.Key
	if key == "" {
		key = job.ID
	}
	if path.Ext(key) != "" {
		return key
	}
	ext := ".bin"
	if m := mimetype.Lookup(contentType); m != nil && m.Extension() != "" {
		ext = m.Extension()
	}
	return key + ext
}

func normalizeJobs(jobs []Job) []Job {
	out := make([]Job, len(jobs))
	for i, job := range jobs {
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		out[i] = job
	}
	return out
}

// distinctSources returns the unique sources in first-seen order and, for
// every job, the index of its source
func distinctSources(jobs []Job) ([]string, []int) {
	seen := make(map[string]int, len(jobs))
	sources := make([]string, 0, len(jobs))
	sourceOf := make([]int, len(jobs))
	for i, job := range jobs {
		idx, ok := seen[job.Source]
		if !ok {
			idx = len(sources)
			seen[job.Source] = idx
			sources = append(sources, job.Source)
		}
		sourceOf[i] = idx
	}
	return sources, sourceOf
}

