package steps

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/reelforge/clip-engine/ai"
	"github.com/reelforge/clip-engine/clients"
	"github.com/reelforge/clip-engine/config"
	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/pipeline"
)

// StepContext shares the engine under test and the jobs a scenario submitted
// between the steps of that scenario.
type StepContext struct {
	engine *pipeline.Engine
	cfg    config.Cli

	// non-nil when the scenario controls time
	mock *clock.Mock
	// non-nil when the scenario drives a dead co-processor endpoint
	aiClient *ai.Client

	mu       sync.Mutex
	ran      []string
	barrier  chan struct{}
	released bool

	assetDuration float64
	segmentCount  int

	jobs       []pipeline.JobStatus
	deleted    string
	sweptFiles []string
}

func NewStepContext() *StepContext {
	return &StepContext{}
}

func (s *StepContext) StartEngine() error {
	cfg, err := s.defaultConfig()
	if err != nil {
		return err
	}
	return s.startEngine(cfg)
}

func (s *StepContext) StartEngineWithMaxDuration(maxDuration int) error {
	cfg, err := s.defaultConfig()
	if err != nil {
		return err
	}
	cfg.MaxDuration = int64(maxDuration)
	return s.startEngine(cfg)
}

// StartEngineWithDeadAI configures the co-processor against a port that
// refuses connections, so every model call fails and the analysis has to
// complete on heuristics alone.
func (s *StepContext) StartEngineWithDeadAI() error {
	cfg, err := s.defaultConfig()
	if err != nil {
		return err
	}
	baseURL, err := unreachableEndpoint()
	if err != nil {
		return err
	}
	cfg.AIEnabled = true
	cfg.AIBaseURL = baseURL
	cfg.AIModel = "clip-scorer"
	cfg.AIRateLimit = 100
	cfg.AIRequestTimeout = time.Second
	s.aiClient = ai.NewClient(ai.Config{
		BaseURL:   cfg.AIBaseURL,
		Model:     cfg.AIModel,
		RateLimit: cfg.AIRateLimit,
		Timeout:   cfg.AIRequestTimeout,
	})
	return s.startEngine(cfg)
}

// StartEngineWithRetention swaps the pipeline clock for a mock so a later
// step can move time past the retention window.
func (s *StepContext) StartEngineWithRetention(days int) error {
	cfg, err := s.defaultConfig()
	if err != nil {
		return err
	}
	cfg.RetentionDays = days
	s.mock = clock.NewMock()
	pipeline.Clock = s.mock
	return s.startEngine(cfg)
}

func (s *StepContext) startEngine(cfg config.Cli) error {
	s.cfg = cfg
	engine, err := pipeline.NewWithStages(cfg, s.stubStages())
	if err != nil {
		return err
	}
	engine.Start()
	s.engine = engine
	return nil
}

func (s *StepContext) defaultConfig() (config.Cli, error) {
	storageDir, err := os.MkdirTemp("", "clip-engine-cucumber-*")
	if err != nil {
		return config.Cli{}, err
	}
	return config.Cli{
		StorageDir:         storageDir,
		MaxDuration:        7200,
		MaxFileSize:        2 << 30,
		RetentionDays:      30,
		QueueCapacity:      10,
		TextWeight:         0.4,
		AudioWeight:        0.3,
		VisualWeight:       0.3,
		MaxConcurrentClips: 3,
		DownloadURLBase:    "http://127.0.0.1:8989/api/clips",
	}, nil
}

func (s *StepContext) SetSourceDuration(seconds float64) error {
	s.assetDuration = seconds
	return nil
}

func (s *StepContext) SetSegmentCount(count int) error {
	s.segmentCount = count
	return nil
}

func (s *StepContext) GateAcquisition() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.barrier = make(chan struct{})
	return nil
}

func (s *StepContext) ReleaseAcquisition() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.barrier == nil {
		return fmt.Errorf("the acquisition stage was never gated")
	}
	if !s.released {
		close(s.barrier)
		s.released = true
	}
	return nil
}

func (s *StepContext) SubmitHosted(sourceURL string) error {
	return s.submit(clients.Source{Type: clients.SourceHostedURL, URL: sourceURL}, pipeline.Options{})
}

func (s *StepContext) SubmitHostedWithMinScore(sourceURL string, minScore float64) error {
	return s.submit(clients.Source{Type: clients.SourceHostedURL, URL: sourceURL}, pipeline.Options{MinScore: &minScore})
}

func (s *StepContext) SubmitHTTP(sourceURL string) error {
	return s.submit(clients.Source{Type: clients.SourceHTTPURL, URL: sourceURL}, pipeline.Options{})
}

func (s *StepContext) SubmitUploadWithMinScore(minScore float64) error {
	path := filepath.Join(s.cfg.StorageDir, "local-source.mp4")
	if err := os.WriteFile(path, []byte("local source bytes"), 0644); err != nil {
		return err
	}
	return s.submit(clients.Source{Type: clients.SourceUpload, Path: path}, pipeline.Options{MinScore: &minScore})
}

func (s *StepContext) submit(src clients.Source, opts pipeline.Options) error {
	status, err := s.engine.Submit(pipeline.AnalysisRequest{Source: src, Options: opts})
	if err != nil {
		return err
	}
	s.jobs = append(s.jobs, status)
	return nil
}

func (s *StepContext) JobCompletes(seconds, progress int) error {
	status, err := s.waitForStatus(s.latestJobID(), pipeline.StatusCompleted, time.Duration(seconds)*time.Second)
	if err != nil {
		return err
	}
	if status.Progress != progress {
		return fmt.Errorf("job completed with progress %d, want %d", status.Progress, progress)
	}
	return nil
}

func (s *StepContext) FirstJobCompletes(seconds int) error {
	if len(s.jobs) == 0 {
		return fmt.Errorf("no job was submitted")
	}
	_, err := s.waitForStatus(s.jobs[0].JobID, pipeline.StatusCompleted, time.Duration(seconds)*time.Second)
	return err
}

func (s *StepContext) JobFails(seconds int, code string) error {
	id := s.latestJobID()
	status, err := s.waitForStatus(id, pipeline.StatusFailed, time.Duration(seconds)*time.Second)
	if err != nil {
		return err
	}
	if status.Error == "" {
		return fmt.Errorf("failed job carries no error message")
	}
	// the job is terminal, its record is settled
	job := s.engine.Jobs.Get(id)
	if job == nil {
		return fmt.Errorf("job %s disappeared after failing", id)
	}
	if string(job.ErrorCode) != code {
		return fmt.Errorf("job failed with code %q, want %q (%s)", job.ErrorCode, code, job.Error)
	}
	return nil
}

func (s *StepContext) JobProducedClips(count int) error {
	id := s.latestJobID()
	status, err := s.engine.JobStatus(id)
	if err != nil {
		return err
	}
	if status.Metadata.ClipsGenerated != count {
		return fmt.Errorf("job reports %d generated clips, want %d", status.Metadata.ClipsGenerated, count)
	}
	clips, err := s.engine.JobClips(id)
	if err != nil {
		return err
	}
	if len(clips) != count {
		return fmt.Errorf("job lists %d clips, want %d", len(clips), count)
	}
	return nil
}

func (s *StepContext) ClipFilesExist() error {
	id := s.latestJobID()
	clips, err := s.engine.JobClips(id)
	if err != nil {
		return err
	}
	if len(clips) == 0 {
		return fmt.Errorf("job %s has no clips", id)
	}
	for _, info := range clips {
		clip, err := s.engine.Clip(id, info.ClipID)
		if err != nil {
			return err
		}
		if _, err := os.Stat(clip.FilePath); err != nil {
			return fmt.Errorf("clip %s has no file on disk: %w", info.ClipID, err)
		}
	}
	return nil
}

func (s *StepContext) ClipsNoLongerThan(seconds float64) error {
	clips, err := s.engine.JobClips(s.latestJobID())
	if err != nil {
		return err
	}
	for _, clip := range clips {
		if clip.Duration > seconds+0.001 {
			return fmt.Errorf("clip %s is %.3fs long, want at most %.0fs", clip.ClipID, clip.Duration, seconds)
		}
	}
	return nil
}

func (s *StepContext) ClipScoresWithin(lo, hi float64) error {
	clips, err := s.engine.JobClips(s.latestJobID())
	if err != nil {
		return err
	}
	if len(clips) == 0 {
		return fmt.Errorf("job produced no clips to check")
	}
	for _, clip := range clips {
		for name, score := range map[string]float64{
			"combined": clip.Score,
			"text":     clip.Scores.Text,
			"audio":    clip.Scores.Audio,
			"visual":   clip.Scores.Visual,
		} {
			if score < lo || score > hi {
				return fmt.Errorf("clip %s %s score %v is outside [%v, %v]", clip.ClipID, name, score, lo, hi)
			}
		}
	}
	return nil
}

func (s *StepContext) WorkDirsEmpty() error {
	for _, dir := range []string{s.cfg.ProcessingDir(), s.cfg.ClipsDir()} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return fmt.Errorf("%s should be empty, found %d entries", dir, len(entries))
		}
	}
	return nil
}

// DaysPass advances the mock clock and runs the sweep the elapsed ticks
// would have triggered. The files the job owns are remembered first so a
// later step can check they are gone.
func (s *StepContext) DaysPass(days int) error {
	if s.mock == nil {
		return fmt.Errorf("this scenario does not control the clock")
	}
	id := s.latestJobID()
	job := s.engine.Jobs.Get(id)
	if job == nil {
		return fmt.Errorf("job %s is already gone", id)
	}
	s.sweptFiles = append(s.sweptFiles, job.SourcePath)
	clips, err := s.engine.JobClips(id)
	if err != nil {
		return err
	}
	for _, info := range clips {
		clip, err := s.engine.Clip(id, info.ClipID)
		if err != nil {
			return err
		}
		s.sweptFiles = append(s.sweptFiles, clip.FilePath)
	}

	s.mock.Add(time.Duration(days) * 24 * time.Hour)
	s.engine.Sweep()
	return nil
}

func (s *StepContext) JobGone() error {
	return s.jobGone(s.latestJobID())
}

func (s *StepContext) JobFilesGone() error {
	for _, path := range s.sweptFiles {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			return fmt.Errorf("%s should be gone, stat returned %v", path, err)
		}
	}
	return nil
}

// DeleteLatestJob deletes the most recently submitted job. The job has not
// reached a terminal state in any scenario using this step, so the delete
// must report nothing reclaimed yet.
func (s *StepContext) DeleteLatestJob() error {
	id := s.latestJobID()
	result, err := s.engine.DeleteJob(id)
	if err != nil {
		return err
	}
	if result.DeletedClips != 0 || result.FreedSpace != 0 {
		return fmt.Errorf("deleting an unfinished job reclaimed %d clips and %d bytes, want zero", result.DeletedClips, result.FreedSpace)
	}
	s.deleted = id
	return nil
}

func (s *StepContext) DeletedJobNeverRan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.ran {
		if id == s.deleted {
			return fmt.Errorf("job %s was deleted while queued but its pipeline ran anyway", id)
		}
	}
	return nil
}

func (s *StepContext) DeletedJobGone() error {
	if s.deleted == "" {
		return fmt.Errorf("no job was deleted")
	}
	return s.jobGone(s.deleted)
}

func (s *StepContext) jobGone(id string) error {
	_, err := s.engine.JobStatus(id)
	if err == nil {
		return fmt.Errorf("job %s is still known", id)
	}
	if !cerrors.IsCode(err, cerrors.CodeJobNotFound) {
		return fmt.Errorf("expected job %s to be unknown, got %v", id, err)
	}
	return nil
}

func (s *StepContext) latestJobID() string {
	if len(s.jobs) == 0 {
		return ""
	}
	return s.jobs[len(s.jobs)-1].JobID
}

func (s *StepContext) waitForStatus(id string, want pipeline.Status, timeout time.Duration) (pipeline.JobStatus, error) {
	deadline := time.Now().Add(timeout)
	for {
		status, err := s.engine.JobStatus(id)
		if err != nil {
			return pipeline.JobStatus{}, err
		}
		if status.Status == want {
			return status, nil
		}
		if status.Status.Terminal() {
			return status, fmt.Errorf("job %s reached %s instead of %s: %s", id, status.Status, want, status.Error)
		}
		if time.Now().After(deadline) {
			return status, fmt.Errorf("job %s is still %s after %s", id, status.Status, timeout)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// Close tears the scenario down: the engine is stopped, the mock clock is
// swapped back out and the scenario's storage is removed.
func (s *StepContext) Close(ctx context.Context) error {
	var err error
	if s.engine != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		err = s.engine.Shutdown(shutdownCtx)
	}
	if s.mock != nil {
		pipeline.Clock = clock.New()
	}
	if s.cfg.StorageDir != "" {
		_ = os.RemoveAll(s.cfg.StorageDir)
	}
	return err
}

// unreachableEndpoint returns a localhost URL whose port refuses
// connections.
func unreachableEndpoint() (*url.URL, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	addr := listener.Addr().String()
	if err := listener.Close(); err != nil {
		return nil, err
	}
	return url.Parse("http://" + addr)
}
