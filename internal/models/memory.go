package models

import "time"

// VisualPromptRecord is the metadata for one remembered object.
// Records are immutable once created; a new save always yields a new MemoryID.
// The embedding artifact itself is stored next to the metadata as an opaque file.
type VisualPromptRecord struct {
	MemoryID           string              `json:"memory_id"`
	ObjectName         string              `json:"object_name"`
	BoundingBoxes      []BoundingBox       `json:"bounding_boxes"`
	ClassID            int                 `json:"class_id"`
	ReferenceImagePath string              `json:"reference_image_path"`
	EmbeddingPath      string              `json:"embedding_artifact_path"`
	Coordinates        *SpatialCoordinates `json:"spatial_coordinates,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
}
