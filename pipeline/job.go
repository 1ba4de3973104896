package pipeline

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/reelforge/clip-engine/analyzer"
	"github.com/reelforge/clip-engine/clients"
	"github.com/reelforge/clip-engine/config"
	cerrors "github.com/reelforge/clip-engine/errors"
	"github.com/reelforge/clip-engine/video"
)

// Status is the lifecycle state of a job. The worker moves every job from
// pending through the processing states into exactly one terminal state.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusAnalyzing    Status = "analyzing"
	StatusGenerating   Status = "generating"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Options are the per-request selection and encoding options. Zero fields
// mean "use the default"; MinScore is a pointer so that an explicit zero
// survives JSON decoding.
type Options struct {
	ClipDuration int      `json:"clipDuration,omitempty"`
	ClipCount    int      `json:"clipCount,omitempty"`
	MinScore     *float64 `json:"minScore,omitempty"`
	Orientation  string   `json:"orientation,omitempty"`
}

// clipOptions is Options with defaults applied and the orientation parsed.
type clipOptions struct {
	ClipDuration int
	ClipCount    int
	MinScore     float64
	Orientation  video.Orientation
}

func (o Options) resolved() (clipOptions, error) {
	opts := clipOptions{
		ClipDuration: config.DefaultClipDuration,
		ClipCount:    config.DefaultClipCount,
		MinScore:     config.DefaultMinScore,
		Orientation:  video.OrientationPortrait,
	}
	if o.ClipDuration != 0 {
		if o.ClipDuration < 30 || o.ClipDuration > 180 {
			return opts, cerrors.Newf(cerrors.CodeInvalidInput, "clipDuration must be between 30 and 180, got %d", o.ClipDuration)
		}
		opts.ClipDuration = o.ClipDuration
	}
	if o.ClipCount != 0 {
		if o.ClipCount < 1 || o.ClipCount > 20 {
			return opts, cerrors.Newf(cerrors.CodeInvalidInput, "clipCount must be between 1 and 20, got %d", o.ClipCount)
		}
		opts.ClipCount = o.ClipCount
	}
	if o.MinScore != nil {
		if *o.MinScore < 0 || *o.MinScore > 1 {
			return opts, cerrors.Newf(cerrors.CodeInvalidInput, "minScore must be between 0 and 1, got %v", *o.MinScore)
		}
		opts.MinScore = *o.MinScore
	}
	if o.Orientation != "" {
		orientation, err := video.ParseOrientation(o.Orientation)
		if err != nil {
			return opts, cerrors.Wrap(cerrors.CodeInvalidInput, "invalid options", err)
		}
		opts.Orientation = orientation
	}
	return opts, nil
}

// AnalysisRequest is the immutable input of one job.
type AnalysisRequest struct {
	Source  clients.Source `json:"source"`
	Options Options        `json:"options"`
}

// Job is the mutable process-local record of one analysis request. Only the
// worker running the job mutates it; every mutation and read goes through
// the mutex so status polls observe a consistent snapshot.
type Job struct {
	mu sync.Mutex

	ID          string
	Status      Status
	Progress    int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt time.Time
	Request     AnalysisRequest
	Metadata    JobMetadata
	Error       string
	ErrorCode   cerrors.Code
	Clips       []GeneratedClip

	SourcePath string
	AudioPath  string

	opts       clipOptions
	tombstoned bool
}

func (j *Job) setStatus(status Status, progress int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Progress = progress
	j.UpdatedAt = Clock.Now().UTC()
	if status.Terminal() {
		j.CompletedAt = j.UpdatedAt
	}
}

// setProgressFraction maps an encode fraction in [0, 1] onto the integer
// progress scale. Progress never moves backwards and stays below 100 until
// the completed transition.
func (j *Job) setProgressFraction(fraction float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	progress := int(math.Round(fraction * 100))
	if progress > 99 {
		progress = 99
	}
	if progress <= j.Progress {
		return
	}
	j.Progress = progress
	j.UpdatedAt = Clock.Now().UTC()
}

// fail moves the job to the failed state, leaving progress where it was.
func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = StatusFailed
	j.Error = err.Error()
	j.ErrorCode = cerrors.CodeOf(err)
	j.UpdatedAt = Clock.Now().UTC()
	j.CompletedAt = j.UpdatedAt
}

func (j *Job) setSourceInfo(path string, md video.Metadata) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.SourcePath = path
	j.Metadata.Duration = md.Duration
	j.Metadata.FileSize = md.SizeBytes
}

func (j *Job) setAudioPath(path string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.AudioPath = path
}

func (j *Job) setTopScore(score float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Metadata.TopScore = score
}

func (j *Job) setClips(clips []GeneratedClip) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Clips = clips
	j.Metadata.ClipsGenerated = len(clips)
}

// tombstone marks a live job deleted. It reports whether the job was still
// non-terminal, in which case the worker owns dropping its outputs at the
// terminal transition.
func (j *Job) tombstone() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return false
	}
	j.tombstoned = true
	return true
}

func (j *Job) isTombstoned() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tombstoned
}

func (j *Job) terminal() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status.Terminal()
}

// Snapshot returns the caller-facing view of the job.
func (j *Job) Snapshot() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	status := JobStatus{
		JobID:     j.ID,
		Status:    j.Status,
		Progress:  j.Progress,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
		Error:     j.Error,
		Metadata:  j.Metadata,
	}
	if !j.CompletedAt.IsZero() {
		completedAt := j.CompletedAt
		status.CompletedAt = &completedAt
	}
	return status
}

func (j *Job) clipInfos(downloadBase string) []ClipInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	infos := make([]ClipInfo, len(j.Clips))
	for i, clip := range j.Clips {
		infos[i] = clip.Info(downloadBase)
	}
	return infos
}

// JobStatus is the status-poll DTO.
type JobStatus struct {
	JobID       string      `json:"jobId"`
	Status      Status      `json:"status"`
	Progress    int         `json:"progress"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	Error       string      `json:"error,omitempty"`
	Metadata    JobMetadata `json:"metadata"`
}

type JobMetadata struct {
	Duration       float64            `json:"duration,omitempty"`
	FileSize       int64              `json:"fileSize,omitempty"`
	SourceType     clients.SourceType `json:"sourceType"`
	SourceURL      string             `json:"sourceUrl,omitempty"`
	TopScore       float64            `json:"topScore,omitempty"`
	ClipsGenerated int                `json:"clipsGenerated,omitempty"`
}

// VideoInfo is the probe summary of an encoded clip.
type VideoInfo struct {
	Width   int64   `json:"width"`
	Height  int64   `json:"height"`
	FPS     float64 `json:"fps"`
	Codec   string  `json:"codec"`
	BitRate int64   `json:"bitrate,omitempty"`
}

// GeneratedClip is a ClipDefinition realized as an encoded file on disk.
type GeneratedClip struct {
	analyzer.ClipDefinition
	JobID     string    `json:"jobId"`
	FilePath  string    `json:"filePath"`
	FileSize  int64     `json:"fileSize"`
	VideoInfo VideoInfo `json:"videoInfo"`
	CreatedAt time.Time `json:"createdAt"`
}

// Info is the caller-facing view of the clip.
func (c GeneratedClip) Info(downloadBase string) ClipInfo {
	return ClipInfo{
		ClipID:      c.ClipID,
		Duration:    c.Duration,
		Score:       c.Score,
		Transcript:  truncateTranscript(c.Text, 100),
		Scores:      c.Scores,
		DownloadURL: fmt.Sprintf("%s/%s/%s", strings.TrimRight(downloadBase, "/"), c.JobID, c.ClipID),
		CreatedAt:   c.CreatedAt,
		VideoInfo:   c.VideoInfo,
	}
}

// ClipInfo is the clip-listing DTO. Transcript carries only the first 100
// characters of the provenance text.
type ClipInfo struct {
	ClipID      string          `json:"clipId"`
	Duration    float64         `json:"duration"`
	Score       float64         `json:"score"`
	Transcript  string          `json:"transcript"`
	Scores      analyzer.Scores `json:"scores"`
	DownloadURL string          `json:"downloadUrl"`
	CreatedAt   time.Time       `json:"createdAt"`
	VideoInfo   VideoInfo       `json:"videoInfo"`
}

// DeleteResult reports what an explicit delete reclaimed. Deleting a job
// that has not finished yet reports zero, the worker reclaims it later.
type DeleteResult struct {
	DeletedClips int   `json:"deletedClips"`
	FreedSpace   int64 `json:"freedSpace"`
}

func truncateTranscript(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}
