package revalidate

import (
	"github.com/morezero/revalidation-dispatch/pkg/events"
)

// Entity statuses with routing significance.
const (
	statusDraft = "draft"
	// statusInherit marks entities that are not independently routable
	// (revisions, attachments).
	statusInherit = "inherit"
)

// Mapper converts change events into the set of affected page slugs. It
// is pure and stateless so classification is testable without any
// network behavior.
type Mapper struct {
	routes *RouteTable
}

// NewMapper creates a Mapper over the given route table. A nil table
// uses the default.
func NewMapper(routes *RouteTable) *Mapper {
	if routes == nil {
		routes = DefaultRouteTable()
	}
	return &Mapper{routes: routes}
}

// MapEvent returns the targets affected by event. An empty slice means
// no action is required.
func (m *Mapper) MapEvent(event *events.ChangeEvent) []Target {
	if event == nil {
		return nil
	}

	switch event.Kind {
	case events.KindPostTransition:
		return m.mapPostTransition(event.Post)
	case events.KindTaxonomyChanged:
		if event.Taxonomy == nil {
			return nil
		}
		// Any term change invalidates the aggregate listing.
		return []Target{m.routes.ListingSlug}
	default:
		return nil
	}
}

func (m *Mapper) mapPostTransition(post *events.PostTransition) []Target {
	if post == nil || post.Slug == "" {
		return nil
	}
	// Automated background saves never reflect a reader-visible change.
	if post.Background {
		return nil
	}
	// Draft-to-draft edits touch nothing published.
	if post.OldStatus == statusDraft && post.NewStatus == statusDraft {
		return nil
	}
	// Inherited entities have no page of their own.
	if post.NewStatus == statusInherit {
		return nil
	}
	return []Target{m.routes.TargetFor(post.ContentType, post.Slug)}
}
