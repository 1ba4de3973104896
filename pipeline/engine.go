// Package pipeline orchestrates analysis jobs end to end: acquisition,
// speech-audio extraction, transcription, the three-modality analysis,
// clip selection and encoding. Jobs are strictly serialized behind a FIFO
// queue with a single worker; a retention sweep reclaims old jobs and
// their files.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	gocache "github.com/patrickmn/go-cache"
	"github.com/reelforge/clip-engine/ai"
	"github.com/reelforge/clip-engine/analyzer"
	"github.com/reelforge/clip-engine/cache"
	"github.com/reelforge/clip-engine/clients"
	"github.com/reelforge/clip-engine/config"
	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/log"
	"github.com/reelforge/clip-engine/metrics"
	"github.com/reelforge/clip-engine/transcribe"
	"github.com/reelforge/clip-engine/video"
)

// Clock is swapped out in tests that control job timestamps and the
// retention sweep.
var Clock = clock.New()

const (
	defaultQueueCapacity = 100
	defaultSweepInterval = 24 * time.Hour
	probeCacheExpiration = 5 * time.Minute

	// orphanAge is how old a file under uploads/ or processing/ must be,
	// with no live job owning it, before the startup cleanup removes it.
	orphanAge = 6 * time.Hour
)

// SegmentAnalyzer scores a transcript against its media files.
type SegmentAnalyzer interface {
	Analyze(ctx context.Context, jobID, videoPath, audioPath string, transcript *transcribe.Result) ([]analyzer.AnalyzedSegment, error)
}

// ClipEncoder cuts the selected windows out of the source and reports
// encode progress back onto the job.
type ClipEncoder interface {
	EncodeClips(ctx context.Context, job *Job, defs []analyzer.ClipDefinition) ([]GeneratedClip, error)
}

// Stages overrides individual pipeline stages; nil fields keep the real
// implementation. Used by tests.
type Stages struct {
	Probe video.Prober
	// Acquirer serves every source type when set.
	Acquirer     clients.Acquirer
	ExtractAudio func(ctx context.Context, videoPath, outPath string) error
	Transcriber  transcribe.Transcriber
	Analyzer     SegmentAnalyzer
	Encoder      ClipEncoder
}

// Engine owns the job map, the queue and the single worker. It is the only
// entry point callers use: submit, poll, list, delete, probe, shutdown.
type Engine struct {
	cfg config.Cli

	probe        video.Prober
	acquirers    map[clients.SourceType]clients.Acquirer
	hosted       *clients.HostedDownloader
	extractAudio func(ctx context.Context, videoPath, outPath string) error
	transcriber  transcribe.Transcriber
	analyzer     SegmentAnalyzer
	encoder      ClipEncoder

	Jobs       *cache.Cache[*Job]
	queue      chan *Job
	probeCache *gocache.Cache

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	sweepDone chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
}

// New builds an engine with the real stage implementations. Call Start to
// launch the worker and the sweeper.
func New(cfg config.Cli) (*Engine, error) {
	return NewWithStages(cfg, Stages{})
}

func NewWithStages(cfg config.Cli, stages Stages) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	wordLists, err := config.LoadWordLists(cfg.WordListsFile)
	if err != nil {
		return nil, err
	}

	hosted := clients.NewHostedDownloader(cfg.ExtractorBin, cfg.HostedCookiesFile, cfg.UploadsDir(), cfg.MaxFileSize)
	acquirers := map[clients.SourceType]clients.Acquirer{
		clients.SourceHostedURL: hosted,
		clients.SourceHTTPURL:   clients.NewHTTPDownloader(cfg.HTTPContentTypes, cfg.MaxFileSize, cfg.UploadsDir()),
		clients.SourceUpload:    clients.NewUploadCopier(cfg.UploadsDir()),
	}
	if stages.Acquirer != nil {
		for sourceType := range acquirers {
			acquirers[sourceType] = stages.Acquirer
		}
	}

	// the analyzers accept a nil co-processor and keep every AI-backed
	// score neutral
	var completer analyzer.Completer
	var visioner analyzer.Visioner
	if cfg.AIEnabled {
		client := ai.NewClient(ai.Config{
			BaseURL:     cfg.AIBaseURL,
			APIKey:      cfg.AIAPIKey,
			Model:       cfg.AIModel,
			BackupModel: cfg.AIBackupModel,
			VisionModel: cfg.AIVisionModel,
			RateLimit:   cfg.AIRateLimit,
			Timeout:     cfg.AIRequestTimeout,
		})
		completer = client
		visioner = client
	}

	probe := stages.Probe
	if probe == nil {
		probe = video.Probe{}
	}
	extractAudio := stages.ExtractAudio
	if extractAudio == nil {
		extractAudio = video.ExtractSpeechAudio
	}
	transcriber := stages.Transcriber
	if transcriber == nil {
		transcriber = transcribe.NewWhisper(cfg.TranscriberBin, cfg.TranscriberModel)
	}
	segmentAnalyzer := stages.Analyzer
	if segmentAnalyzer == nil {
		segmentAnalyzer = analyzer.New(
			analyzer.NewTextAnalyzer(wordLists),
			analyzer.NewAudioAnalyzer(completer),
			analyzer.NewVisualAnalyzer(visioner, cfg.FramesDir(), cfg.SceneFilter),
			analyzer.Weights{Text: cfg.TextWeight, Audio: cfg.AudioWeight, Visual: cfg.VisualWeight},
		)
	}
	clipEncoder := stages.Encoder
	if clipEncoder == nil {
		clipEncoder = newEncoder(cfg, probe)
	}

	queueCapacity := cfg.QueueCapacity
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:          cfg,
		probe:        probe,
		acquirers:    acquirers,
		hosted:       hosted,
		extractAudio: extractAudio,
		transcriber:  transcriber,
		analyzer:     segmentAnalyzer,
		encoder:      clipEncoder,
		Jobs:         cache.New[*Job](),
		queue:        make(chan *Job, queueCapacity),
		probeCache:   gocache.New(probeCacheExpiration, 10*time.Minute),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		sweepDone:    make(chan struct{}),
	}, nil
}

// Start launches the worker and the retention sweeper. It also clears
// leftover files from earlier runs. Call Shutdown to stop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.cleanupOrphans()
	go e.runWorker()
	go e.runSweeper()
}

// Submit validates the request, stores the job as pending and enqueues it.
// The job is visible to status polls before Submit returns.
func (e *Engine) Submit(req AnalysisRequest) (JobStatus, error) {
	if err := req.Source.Validate(); err != nil {
		return JobStatus{}, err
	}
	opts, err := req.Options.resolved()
	if err != nil {
		return JobStatus{}, err
	}

	now := Clock.Now().UTC()
	job := &Job{
		ID:        config.NewJobID(),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Request:   req,
		Metadata: JobMetadata{
			SourceType: req.Source.Type,
			SourceURL:  log.RedactURL(req.Source.URL),
		},
		opts: opts,
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return JobStatus{}, fmt.Errorf("engine is shut down")
	}
	select {
	case e.queue <- job:
	default:
		e.mu.Unlock()
		return JobStatus{}, fmt.Errorf("job queue is full (capacity %d)", cap(e.queue))
	}
	e.Jobs.Store(job.ID, job)
	e.mu.Unlock()

	metrics.Metrics.JobsSubmittedCount.WithLabelValues(string(req.Source.Type)).Inc()
	metrics.Metrics.QueueLength.Set(float64(len(e.queue)))
	log.AddContext(job.ID, "source_type", req.Source.Type)
	log.Log(job.ID, "job submitted", "source", log.RedactURL(req.Source.URL), "queued", len(e.queue))
	return job.Snapshot(), nil
}

func (e *Engine) runWorker() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			return
		case job := <-e.queue:
			metrics.Metrics.QueueLength.Set(float64(len(e.queue)))
			if job.isTombstoned() {
				log.Log(job.ID, "skipping deleted job")
				continue
			}
			e.runJob(job)
		}
	}
}

func (e *Engine) runJob(job *Job) {
	start := Clock.Now()
	// the job id rides on the stage context so outgoing requests can be
	// attributed without threading it through every client
	ctx := log.WithLogValues(e.ctx, "job_id", job.ID)
	_, err := recovered(func() (interface{}, error) {
		return nil, e.process(ctx, job)
	})
	e.finishJob(job, err, start)
}

// process runs the job through every stage. Any returned error moves the
// job to failed.
func (e *Engine) process(ctx context.Context, job *Job) error {
	job.setStatus(StatusDownloading, 10)
	var md video.Metadata
	err := e.stage(job, "download", func() error {
		acquirer := e.acquirers[job.Request.Source.Type]
		if acquirer == nil {
			return cerrors.Newf(cerrors.CodeInvalidInput, "no acquirer for source type %q", job.Request.Source.Type)
		}
		sourcePath, err := acquirer.Acquire(ctx, job.ID, job.Request.Source)
		if err != nil {
			return err
		}
		md, err = e.probe.ValidateFile(job.ID, sourcePath, e.cfg.MaxDuration, e.cfg.MaxFileSize)
		if err != nil {
			return err
		}
		job.setSourceInfo(sourcePath, md)

		audioPath := filepath.Join(e.cfg.ProcessingDir(), job.ID+".wav")
		if err := e.extractAudio(ctx, sourcePath, audioPath); err != nil {
			return cerrors.Wrap(cerrors.CodeTranscriptionFailed, "error extracting speech audio", err)
		}
		job.setAudioPath(audioPath)
		return nil
	})
	if err != nil {
		return err
	}

	job.setStatus(StatusTranscribing, 20)
	var transcript *transcribe.Result
	err = e.stage(job, "transcribe", func() error {
		var err error
		transcript, err = e.transcriber.Transcribe(ctx, job.ID, job.AudioPath, md.Duration)
		return err
	})
	if err != nil {
		return err
	}

	job.setStatus(StatusAnalyzing, 50)
	var segments []analyzer.AnalyzedSegment
	err = e.stage(job, "analyze", func() error {
		var err error
		segments, err = e.analyzer.Analyze(ctx, job.ID, job.SourcePath, job.AudioPath, transcript)
		return err
	})
	if err != nil {
		return err
	}
	if len(segments) > 0 {
		// Analyze returns segments sorted by combined score
		job.setTopScore(segments[0].Scores.Combined)
	}

	job.setStatus(StatusGenerating, 70)
	return e.stage(job, "generate", func() error {
		defs, err := analyzer.SelectClips(segments, job.opts.MinScore, job.opts.ClipCount, float64(job.opts.ClipDuration), md.Duration)
		if err != nil {
			return err
		}
		job.setProgressFraction(0.75)
		clips, err := e.encoder.EncodeClips(ctx, job, defs)
		if err != nil {
			return err
		}
		job.setClips(clips)
		return nil
	})
}

// stage times one pipeline stage and records its duration metric.
func (e *Engine) stage(job *Job, name string, fn func() error) error {
	start := Clock.Now()
	err := fn()
	duration := Clock.Since(start)
	metrics.Metrics.StageDurationSec.WithLabelValues(name, strconv.FormatBool(err == nil)).Observe(duration.Seconds())
	if err != nil {
		return err
	}
	log.Log(job.ID, "stage complete", "stage", name, "duration", duration)
	return nil
}

func (e *Engine) finishJob(job *Job, err error, start time.Time) {
	duration := Clock.Since(start)
	success := err == nil
	errorCode := cerrors.Code("")
	if err != nil {
		job.fail(err)
		errorCode = cerrors.CodeOf(err)
		log.LogError(job.ID, "job failed", err, "code", errorCode, "duration", duration)
	} else {
		job.setStatus(StatusCompleted, 100)
		log.Log(job.ID, "job completed", "clips", len(job.Clips), "duration", duration)
	}
	metrics.Metrics.JobDurationSec.WithLabelValues(strconv.FormatBool(success), string(errorCode)).Observe(duration.Seconds())

	// the WAV is transient in every outcome; the acquired source stays
	// around for inspection until the sweep or an explicit delete
	if audioPath := job.AudioPath; audioPath != "" {
		if err := os.Remove(audioPath); err != nil && !os.IsNotExist(err) {
			log.LogError(job.ID, "error removing speech audio", err)
		}
	}

	// a job deleted mid-flight was already dropped from the map, the
	// worker drops its files at this terminal transition
	if job.isTombstoned() {
		e.removeJobFiles(job)
		log.Log(job.ID, "dropped outputs of deleted job")
	}
}

// JobStatus returns the status snapshot of one job.
func (e *Engine) JobStatus(id string) (JobStatus, error) {
	job := e.Jobs.Get(id)
	if job == nil {
		return JobStatus{}, cerrors.Newf(cerrors.CodeJobNotFound, "job %s not found", id)
	}
	return job.Snapshot(), nil
}

// ListJobs returns a snapshot of every live job, newest first.
func (e *Engine) ListJobs() []JobStatus {
	all := e.Jobs.GetAll()
	statuses := make([]JobStatus, 0, len(all))
	for _, job := range all {
		statuses = append(statuses, job.Snapshot())
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].CreatedAt.Equal(statuses[j].CreatedAt) {
			return statuses[i].JobID > statuses[j].JobID
		}
		return statuses[i].CreatedAt.After(statuses[j].CreatedAt)
	})
	return statuses
}

// JobClips returns the clip list of one job. Jobs that have not completed
// yet return an empty list.
func (e *Engine) JobClips(id string) ([]ClipInfo, error) {
	job := e.Jobs.Get(id)
	if job == nil {
		return nil, cerrors.Newf(cerrors.CodeJobNotFound, "job %s not found", id)
	}
	return job.clipInfos(e.cfg.DownloadURLBase), nil
}

// Clip returns one generated clip, including its local file path so
// callers can serve the bytes.
func (e *Engine) Clip(jobID, clipID string) (GeneratedClip, error) {
	job := e.Jobs.Get(jobID)
	if job == nil {
		return GeneratedClip{}, cerrors.Newf(cerrors.CodeJobNotFound, "job %s not found", jobID)
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	for _, clip := range job.Clips {
		if clip.ClipID == clipID {
			return clip, nil
		}
	}
	return GeneratedClip{}, cerrors.Newf(cerrors.CodeClipNotFound, "clip %s not found in job %s", clipID, jobID)
}

// DeleteJob removes a job. Finished jobs lose their files immediately; a
// queued or running job is tombstoned and the worker drops its outputs
// when it reaches a terminal state.
func (e *Engine) DeleteJob(id string) (DeleteResult, error) {
	job := e.Jobs.Get(id)
	if job == nil {
		return DeleteResult{}, cerrors.Newf(cerrors.CodeJobNotFound, "job %s not found", id)
	}
	e.Jobs.Remove(id)
	metrics.Metrics.JobsDeletedCount.WithLabelValues("request").Inc()

	if job.tombstone() {
		log.Log(id, "job deleted while live, outputs dropped at the terminal transition")
		return DeleteResult{}, nil
	}
	result := e.removeJobFiles(job)
	log.Log(id, "job deleted", "deleted_clips", result.DeletedClips, "freed_space", result.FreedSpace)
	return result, nil
}

// removeJobFiles drops every on-disk artifact of a job and reports what it
// reclaimed.
func (e *Engine) removeJobFiles(job *Job) DeleteResult {
	job.mu.Lock()
	paths := []string{job.SourcePath, job.AudioPath}
	clips := make([]GeneratedClip, len(job.Clips))
	copy(clips, job.Clips)
	job.mu.Unlock()

	var result DeleteResult
	for _, clip := range clips {
		result.FreedSpace += removeFile(job.ID, clip.FilePath)
		result.DeletedClips++
	}
	for _, path := range paths {
		result.FreedSpace += removeFile(job.ID, path)
	}
	return result
}

// removeFile removes one file and returns how many bytes it freed.
func removeFile(jobID, path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if err := os.Remove(path); err != nil {
		log.LogError(jobID, "error removing file", err, "file", path)
		return 0
	}
	return info.Size()
}

func (e *Engine) runSweeper() {
	defer close(e.sweepDone)
	interval := e.cfg.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := Clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.Sweep()
		}
	}
}

// Sweep deletes finished jobs older than the retention window together
// with their files. It never fails; problems are logged and skipped.
func (e *Engine) Sweep() {
	cutoff := Clock.Now().Add(-time.Duration(e.cfg.RetentionDays) * 24 * time.Hour)
	swept := 0
	for id, job := range e.Jobs.GetAll() {
		if !job.terminal() || job.CreatedAt.After(cutoff) {
			continue
		}
		e.Jobs.Remove(id)
		result := e.removeJobFiles(job)
		metrics.Metrics.JobsDeletedCount.WithLabelValues("retention").Inc()
		log.Log(id, "retention sweep deleted job", "deleted_clips", result.DeletedClips, "freed_space", result.FreedSpace)
		swept++
	}
	if swept > 0 {
		log.LogNoJobID("retention sweep finished", "deleted_jobs", swept)
	}
}

// cleanupOrphans removes stale files under uploads/ and processing/ that
// no live job owns, typically left behind by a crash mid-job.
func (e *Engine) cleanupOrphans() {
	cutoff := Clock.Now().Add(-orphanAge)
	removed := 0
	for _, dir := range []string{e.cfg.UploadsDir(), e.cfg.ProcessingDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.LogNoJobID("error reading dir during orphan cleanup", "dir", dir, "err", err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			jobID := strings.SplitN(entry.Name(), ".", 2)[0]
			if e.Jobs.Get(jobID) != nil {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				log.LogNoJobID("error removing orphaned file", "file", entry.Name(), "err", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		log.LogNoJobID("removed orphaned files", "count", removed)
	}
}

// ProbeSource fetches source metadata from the hosted extractor without
// starting a job. Results are cached briefly, pre-flight UI checks tend to
// repeat.
func (e *Engine) ProbeSource(ctx context.Context, url string) (*clients.HostedMetadata, error) {
	if cached, ok := e.probeCache.Get(url); ok {
		return cached.(*clients.HostedMetadata), nil
	}
	md, err := e.hosted.ProbeMetadata(ctx, url)
	if err != nil {
		return nil, err
	}
	e.probeCache.Set(url, md, gocache.DefaultExpiration)
	return md, nil
}

// Shutdown refuses new submissions, cancels the in-flight stage and waits
// for the worker and sweeper to stop, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	started := e.started
	e.mu.Unlock()
	e.cancel()
	if !started {
		return nil
	}
	for _, ch := range []<-chan struct{}{e.done, e.sweepDone} {
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func recovered[T any](f func() (T, error)) (t T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.LogNoJobID("panic in pipeline worker, recovering", "err", rec)
			err = fmt.Errorf("panic in pipeline worker: %v", rec)
		}
	}()
	return f()
}
