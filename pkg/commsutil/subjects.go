package commsutil

import "fmt"

// Default COMMS subjects.
const (
	// SubjectContentChangedAll matches every CMS content-change subject;
	// the server subscribes here.
	SubjectContentChangedAll = "cms.content.changed.>"
	// SubjectControl carries operator revalidation requests (request/reply).
	SubjectControl = "revalidate.control.v1"
)

// BuildContentSubject builds the content-change subject one event kind
// is published on (e.g. "cms.content.changed.post").
func BuildContentSubject(kind string) string {
	return fmt.Sprintf("cms.content.changed.%s", kind)
}
