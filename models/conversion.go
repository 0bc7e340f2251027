package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Status is the lifecycle state of a conversion job. Transitions are
// forward-only: PENDING -> PROCESSING -> UPLOADING -> COMPLETED, with
// FAILED reachable from PROCESSING or UPLOADING.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusUploading  Status = "UPLOADING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// predecessors lists the statuses a job must currently hold for a
// transition into the keyed status to be legal.
var predecessors = map[Status][]Status{
	StatusProcessing: {StatusPending},
	StatusUploading:  {StatusProcessing},
	StatusCompleted:  {StatusUploading},
	StatusFailed:     {StatusProcessing, StatusUploading},
}

// Predecessors returns the legal prior statuses for a transition into s.
// An empty slice means s is never a transition target (only an initial state).
func (s Status) Predecessors() []Status {
	return predecessors[s]
}

// CanFollow reports whether a transition from prev into s is legal.
func (s Status) CanFollow(prev Status) bool {
	for _, p := range predecessors[s] {
		if p == prev {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobExpiry is how long a conversion record stays relevant. Purging
// expired records is the document store's job via a TTL index on expiryAt.
const JobExpiry = 24 * time.Hour

// ConversionJob is the persisted record for one conversion request.
type ConversionJob struct {
	ID             bson.ObjectID `bson:"_id,omitempty" json:"conversion_id"`
	S3Bucket       string        `bson:"s3_bucket" json:"s3_bucket,omitempty"`
	Status         Status        `bson:"status" json:"status"`
	OrganizationID string        `bson:"organization_id" json:"organization_id"`
	OutputFile     string        `bson:"output_file" json:"output_file"`
	ExpiryAt       time.Time     `bson:"expiryAt" json:"expiry_at"`
	Error          *string       `bson:"error" json:"error"`
	S3Link         *string       `bson:"s3_link" json:"s3_download_link"`
	CreatedAt      time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updated_at"`
}

// Mesh is a tessellated model as returned by the kernel: vertex
// coordinates plus faces as zero-based vertex index lists.
type Mesh struct {
	Vertices [][3]float64 `json:"vertices"`
	Faces    [][]int      `json:"faces"`
}
