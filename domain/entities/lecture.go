package entities

import "time"

// LectureStatus represents the processing status of a lecture. Statuses are
// monotonic through the pipeline stages; failed is reachable from any stage.
type LectureStatus string

const (
	LectureStatusUploading    LectureStatus = "uploading"
	LectureStatusProcessing   LectureStatus = "processing"
	LectureStatusTranscribing LectureStatus = "transcribing"
	LectureStatusCleaning     LectureStatus = "cleaning"
	LectureStatusCompleted    LectureStatus = "completed"
	LectureStatusFailed       LectureStatus = "failed"
)

var lectureStatusRank = map[LectureStatus]int{
	LectureStatusUploading:    0,
	LectureStatusProcessing:   1,
	LectureStatusTranscribing: 2,
	LectureStatusCleaning:     3,
	LectureStatusCompleted:    4,
}

// CanAdvance reports whether moving to the given status keeps the pipeline
// ordering monotonic.
func (s LectureStatus) CanAdvance(to LectureStatus) bool {
	if to == LectureStatusFailed {
		return true
	}
	from, ok := lectureStatusRank[s]
	if !ok {
		return false
	}
	next, ok := lectureStatusRank[to]
	if !ok {
		return false
	}
	return next >= from
}

// Lecture is the metadata-store record tracked for a recording session. Field
// names follow the external metadata contract.
type Lecture struct {
	SessionID         string        `bson:"sessionId" json:"sessionId"`
	UserID            string        `bson:"userId" json:"userId"`
	Status            LectureStatus `bson:"status" json:"status"`
	TotalChunks       int           `bson:"totalChunks" json:"totalChunks"`
	TranscribedChunks int           `bson:"transcribedChunks" json:"transcribedChunks"`
	TranscriptRaw     string        `bson:"transcriptRaw,omitempty" json:"transcriptRaw,omitempty"`
	TranscriptClean   string        `bson:"transcriptClean,omitempty" json:"transcriptClean,omitempty"`
	Notes             string        `bson:"notes,omitempty" json:"notes,omitempty"`
	TopicAnalysis     string        `bson:"topicAnalysis,omitempty" json:"topicAnalysis,omitempty"`
	Duration          float64       `bson:"duration,omitempty" json:"duration,omitempty"`
	Error             string        `bson:"error,omitempty" json:"error,omitempty"`
	Title             string        `bson:"title,omitempty" json:"title,omitempty"`
	FolderID          *string       `bson:"folderId,omitempty" json:"folderId,omitempty"`
	StartedAt         *time.Time    `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt       *time.Time    `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	FailedAt          *time.Time    `bson:"failedAt,omitempty" json:"failedAt,omitempty"`
}

// LectureUpdate is a merge-update for a lecture record. Only non-nil fields
// are written, so concurrently-read fields such as title and folder
// assignment are preserved.
type LectureUpdate struct {
	Status            *LectureStatus
	TotalChunks       *int
	TranscribedChunks *int
	TranscriptRaw     *string
	TranscriptClean   *string
	Notes             *string
	TopicAnalysis     *string
	Duration          *float64
	Error             *string
	Title             *string
	StartedAt         *time.Time
	CompletedAt       *time.Time
	FailedAt          *time.Time
}

// Fields returns the set fields keyed by their external metadata names.
func (u LectureUpdate) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	if u.Status != nil {
		fields["status"] = *u.Status
	}
	if u.TotalChunks != nil {
		fields["totalChunks"] = *u.TotalChunks
	}
	if u.TranscribedChunks != nil {
		fields["transcribedChunks"] = *u.TranscribedChunks
	}
	if u.TranscriptRaw != nil {
		fields["transcriptRaw"] = *u.TranscriptRaw
	}
	if u.TranscriptClean != nil {
		fields["transcriptClean"] = *u.TranscriptClean
	}
	if u.Notes != nil {
		fields["notes"] = *u.Notes
	}
	if u.TopicAnalysis != nil {
		fields["topicAnalysis"] = *u.TopicAnalysis
	}
	if u.Duration != nil {
		fields["duration"] = *u.Duration
	}
	if u.Error != nil {
		fields["error"] = *u.Error
	}
	if u.Title != nil {
		fields["title"] = *u.Title
	}
	if u.StartedAt != nil {
		fields["startedAt"] = *u.StartedAt
	}
	if u.CompletedAt != nil {
		fields["completedAt"] = *u.CompletedAt
	}
	if u.FailedAt != nil {
		fields["failedAt"] = *u.FailedAt
	}
	return fields
}
