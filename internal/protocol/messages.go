package protocol

import "time"

// PodcastRequest asks the service to produce an episode from source files or
// inline text.
type PodcastRequest struct {
	JobID          string   `json:"job_id,omitempty"`
	Sources        []string `json:"sources,omitempty"`
	Text           string   `json:"text,omitempty"`
	Longform       *bool    `json:"longform,omitempty"`
	TranscriptOnly bool     `json:"transcript_only,omitempty"`
	Style          string   `json:"style,omitempty"`
	Name           string   `json:"name,omitempty"`
}

// PodcastAck is the reply to a PodcastRequest. Error is set when the request
// was rejected before a job started.
type PodcastAck struct {
	JobID string `json:"job_id,omitempty"`
	Error string `json:"error,omitempty"`
}

// PodcastProgress reports a pipeline stage transition.
type PodcastProgress struct {
	JobID     string    `json:"job_id"`
	Stage     string    `json:"stage"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PodcastDone is published once an episode has been written.
type PodcastDone struct {
	JobID          string    `json:"job_id"`
	TranscriptPath string    `json:"transcript_path"`
	AudioPath      string    `json:"audio_path,omitempty"`
	Fragments      int       `json:"fragments"`
	Skipped        []int     `json:"skipped,omitempty"`
	Degraded       bool      `json:"degraded,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	Timestamp      time.Time `json:"timestamp"`
}

// PodcastFailed is published when a job stops with an error.
type PodcastFailed struct {
	JobID     string    `json:"job_id"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectPodcastRequest  = "podcast.request"
	SubjectPodcastProgress = "podcast.progress"
	SubjectPodcastDone     = "podcast.done"
	SubjectPodcastFailed   = "podcast.failed"

	// QueuePodcastWorkers load-balances requests across daemons.
	QueuePodcastWorkers = "podcast-workers"

	// StreamPodcastJobs retains job outcomes for clients that were offline.
	StreamPodcastJobs = "PODCAST_JOBS"
)

// JobEventSubjects are captured by StreamPodcastJobs.
var JobEventSubjects = []string{SubjectPodcastProgress, SubjectPodcastDone, SubjectPodcastFailed}
