// Package events defines the content-change events delivered by the CMS
// and the source abstraction that feeds them to the dispatcher.
package events

// ChangeEvent kinds.
const (
	KindPostTransition  = "post_transition"
	KindTaxonomyChanged = "taxonomy_changed"
)

// Taxonomy actions.
const (
	TaxonomyCreated = "created"
	TaxonomyEdited  = "edited"
	TaxonomyDeleted = "deleted"
)

// ChangeEvent is a typed content-change event. Kind selects which of the
// payload fields is set; the CMS creates events and the dispatcher
// consumes each one exactly once.
type ChangeEvent struct {
	Kind      string           `json:"kind"`
	Post      *PostTransition  `json:"post,omitempty"`
	Taxonomy  *TaxonomyChanged `json:"taxonomy,omitempty"`
	Timestamp string           `json:"timestamp,omitempty"`
}

// PostTransition describes an entity status transition (publish, update,
// trash, ...).
type PostTransition struct {
	ContentType string `json:"contentType"`
	Slug        string `json:"slug"`
	OldStatus   string `json:"oldStatus"`
	NewStatus   string `json:"newStatus"`
	// Background marks transitions made during an automated save context
	// (autosave or scheduled task) rather than an editor action.
	Background bool `json:"background,omitempty"`
}

// TaxonomyChanged describes a taxonomy term change. The listing page is
// invalidated conservatively regardless of which term changed.
type TaxonomyChanged struct {
	Action     string `json:"action"`
	TaxonomyID string `json:"taxonomyId,omitempty"`
}

// NewPostTransition builds a post-transition event.
func NewPostTransition(contentType, slug, oldStatus, newStatus string, background bool) *ChangeEvent {
	return &ChangeEvent{
		Kind: KindPostTransition,
		Post: &PostTransition{
			ContentType: contentType,
			Slug:        slug,
			OldStatus:   oldStatus,
			NewStatus:   newStatus,
			Background:  background,
		},
	}
}

// NewTaxonomyChanged builds a taxonomy-change event.
func NewTaxonomyChanged(action, taxonomyID string) *ChangeEvent {
	return &ChangeEvent{
		Kind:     KindTaxonomyChanged,
		Taxonomy: &TaxonomyChanged{Action: action, TaxonomyID: taxonomyID},
	}
}
