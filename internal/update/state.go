package update

import (
	"sync"
	"time"
)

// Snapshot is a consistent read of the freshness state: every field comes
// from the same commit.
type Snapshot struct {
	LastAttachmentURL string
	LastSentAt        time.Time
	ImagePath         string
	ThumbnailPath     string
	CaptionBucket     Bucket
	CaptionWord       string
}

// State is the process-wide freshness record. It is created empty at
// startup, mutated only by the orchestrator's commit step, and read by the
// web front end and the reminder check. All access goes through the lock;
// there is no persistence across restarts.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewState() *State {
	return &State{}
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Commit atomically records a completed update. Only after Commit returns
// are the new paths eligible to be served.
func (s *State) Commit(attachmentURL string, sentAt time.Time, imagePath, thumbnailPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastAttachmentURL = attachmentURL
	s.snap.LastSentAt = sentAt
	s.snap.ImagePath = imagePath
	s.snap.ThumbnailPath = thumbnailPath
}

// Caption returns the freshness word for the current bucket, drawing a new
// word only when the bucket has changed since the last call. Before the
// first commit it returns BucketUnknown and an empty word.
func (s *State) Caption(now time.Time) (string, Bucket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.LastSentAt.IsZero() {
		return "", BucketUnknown
	}

	bucket := bucketFor(now.Sub(s.snap.LastSentAt))
	if bucket != s.snap.CaptionBucket || s.snap.CaptionWord == "" {
		s.snap.CaptionBucket = bucket
		s.snap.CaptionWord = wordFor(bucket)
	}
	return s.snap.CaptionWord, bucket
}
