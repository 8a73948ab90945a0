package models

import (
	"image"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "faceledger/pkg/domain-errors"
)

// BoundingBox locates a face within a frame. Width and Height are always
// non-negative for detections produced by a Detector.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the box area in pixels.
func (b BoundingBox) Area() int { return b.Width * b.Height }

// Rect converts the box to an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Pad grows the box symmetrically by px on every side, clamped to bounds.
func (b BoundingBox) Pad(px int, bounds image.Rectangle) BoundingBox {
	r := image.Rect(b.X-px, b.Y-px, b.X+b.Width+px, b.Y+b.Height+px).Intersect(bounds)
	return BoundingBox{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Detection is one face found in a frame by the external detector.
type Detection struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
}

// Validate enforces the detection invariants at the engine boundary.
func (d Detection) Validate() error {
	if d.Box.Width <= 0 || d.Box.Height <= 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "detection box must have positive size")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return dErrors.New(dErrors.CodeInvariantViolation, "detection confidence must be within [0,1]")
	}
	return nil
}

// QualityBreakdown exposes the sub-scores behind a quality value so capture
// events can explain why a frame was rejected.
type QualityBreakdown struct {
	Sharpness  float64 `json:"sharpness"`
	Brightness float64 `json:"brightness"`
	Size       float64 `json:"size"`
	Overall    float64 `json:"overall"`
}

// EnrollmentRecord is one stored embedding with its owner and capture
// metadata. Immutable after creation except for the metadata fields, which
// change only through an explicit update.
type EnrollmentRecord struct {
	ID                  uuid.UUID  `json:"id"`
	OwnerID             string     `json:"owner_id"`
	OwnerName           string     `json:"owner_name"`
	Embedding           Embedding  `json:"embedding"`
	QualityScore        float64    `json:"quality_score"`
	DetectionConfidence float64    `json:"detection_confidence"`
	ConsentGiven        bool       `json:"consent_given"`
	RetentionExpiresAt  *time.Time `json:"retention_expires_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// EnrollmentMetadata is the mutable subset of an EnrollmentRecord. Nil fields
// are left unchanged by an update.
type EnrollmentMetadata struct {
	QualityScore        *float64   `json:"quality_score,omitempty"`
	DetectionConfidence *float64   `json:"detection_confidence,omitempty"`
	ConsentGiven        *bool      `json:"consent_given,omitempty"`
	RetentionExpiresAt  *time.Time `json:"retention_expires_at,omitempty"`
}

// ConfidenceTier is the human-facing label attached to duplicate-search hits.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
)

// TierFor maps a similarity to its confidence tier.
func TierFor(similarity float64) ConfidenceTier {
	if similarity >= 0.9 {
		return TierHigh
	}
	return TierMedium
}

// MatchResult is one scored candidate from a verification or similarity
// search. Produced fresh per query; never persisted.
type MatchResult struct {
	OwnerID    string         `json:"owner_id"`
	OwnerName  string         `json:"owner_name"`
	Similarity float64        `json:"similarity"`
	Rank       uint           `json:"rank"`
	Confidence ConfidenceTier `json:"confidence,omitempty"`
}

// VerificationResult is the outcome of a 1:N verification scan.
//
// StoreChecked distinguishes "no match found" from "could not check": when the
// store is unreachable the result carries Matched=false and StoreChecked=false
// and must never be treated as a real non-match.
type VerificationResult struct {
	Matched      bool          `json:"matched"`
	Best         *MatchResult  `json:"best,omitempty"`
	TopMatches   []MatchResult `json:"top_matches,omitempty"`
	Diagnostic   []MatchResult `json:"diagnostic,omitempty"`
	StoreChecked bool          `json:"store_checked"`
	Candidates   int           `json:"candidates"`
}

// OwnerFilter restricts a verification scan before scoring. Zero value
// matches every candidate.
type OwnerFilter struct {
	OwnerID      string `json:"owner_id,omitempty"`
	NameContains string `json:"name_contains,omitempty"`
}

// Matches reports whether a record passes the filter. Name matching is a
// case-insensitive substring test.
func (f OwnerFilter) Matches(r EnrollmentRecord) bool {
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if f.NameContains != "" && !strings.Contains(strings.ToLower(r.OwnerName), strings.ToLower(f.NameContains)) {
		return false
	}
	return true
}

// IsZero reports whether the filter restricts anything.
func (f OwnerFilter) IsZero() bool {
	return f.OwnerID == "" && f.NameContains == ""
}
