// Package dataset - Annotation and vocabulary collaborators backing the
// evaluation pipeline.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/groundvision/go-coloc/localization"
)

// MissingAnnotationError reports an identifier with no ground-truth entry.
// It must reach the caller rather than be scored as 0, since a silent zero
// biases aggregate statistics.
type MissingAnnotationError struct {
	ID string
}

func (e *MissingAnnotationError) Error() string {
	return fmt.Sprintf("no annotation for identifier %q", e.ID)
}

// Annotation is the ground truth for one caption identifier.
type Annotation struct {
	// Tokens is the tokenized caption without sentinels.
	Tokens []string `json:"tokens"`
	// PhraseGroups lists token-index groups, one per phrase. Positions
	// refer to the clipped caption. May be empty when phrase mode is not
	// used.
	PhraseGroups [][]int `json:"phrase_groups,omitempty"`
	// Boxes are the ground-truth regions in source-image pixel coordinates.
	// In phrase mode the boxes are parallel to PhraseGroups; otherwise the
	// first box covers the whole caption. Present-but-empty is distinct from
	// absent. Scoring compares boxes against maps at the canonical
	// resolution, so callers convert with ScaleBoxes before evaluating.
	Boxes []localization.BoundingBox `json:"boxes"`
}

// ScaleBoxes converts the boxes from source-image pixels into another
// coordinate space, typically the canonical map resolution the scorer
// operates in.
func (a *Annotation) ScaleBoxes(sx, sy float32) {
	for i := range a.Boxes {
		a.Boxes[i] = a.Boxes[i].Scale(sx, sy)
	}
}

// CaptionLength reports the token count including the start and end
// sentinels.
func (a *Annotation) CaptionLength() int {
	return len(a.Tokens) + 2
}

// AnnotationStore is a read-only identifier-to-annotation lookup.
type AnnotationStore struct {
	entries map[string]*Annotation
}

// NewAnnotationStore wraps an already-parsed annotation map.
func NewAnnotationStore(entries map[string]*Annotation) *AnnotationStore {
	if entries == nil {
		entries = make(map[string]*Annotation)
	}
	return &AnnotationStore{entries: entries}
}

// LoadAnnotations reads an annotation JSON document mapping identifier to
// annotation entry.
func LoadAnnotations(path string) (*AnnotationStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read annotations %q", path)
	}
	entries := make(map[string]*Annotation)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrapf(err, "parse annotations %q", path)
	}
	return &AnnotationStore{entries: entries}, nil
}

// Len reports the number of annotated identifiers.
func (s *AnnotationStore) Len() int { return len(s.entries) }

// Lookup returns the annotation for id.
//
// Returns:
//   - *Annotation: the entry, possibly with empty boxes (present-but-empty
//     is a valid state, distinct from absent).
//   - error: *MissingAnnotationError when id has no entry.
func (s *AnnotationStore) Lookup(id string) (*Annotation, error) {
	ann, ok := s.entries[id]
	if !ok {
		return nil, &MissingAnnotationError{ID: id}
	}
	return ann, nil
}
