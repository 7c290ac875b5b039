package revalidate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const routesLogPrefix = "revalidate:routes"

// RouteTable maps content types to frontend path prefixes and holds the
// slugs that are not derived from a single entity.
type RouteTable struct {
	// Prefixes maps a content type to the path prefix its entities live
	// under (e.g. "post" -> "/blog"). Types not listed map to "/" (the
	// slug token directly under the site root).
	Prefixes map[string]string `json:"prefixes"`
	// ListingSlug is the aggregate listing page invalidated by taxonomy
	// changes.
	ListingSlug Target `json:"listingSlug"`
	// CommonSlugs is the fixed set of well-known pages cleared by a
	// "revalidate all" control request.
	CommonSlugs []Target `json:"commonSlugs"`
}

// DefaultRouteTable returns the embedded fallback routing configuration.
func DefaultRouteTable() *RouteTable {
	return &RouteTable{
		Prefixes:    map[string]string{"post": "/blog"},
		ListingSlug: "/blog",
		CommonSlugs: []Target{"/", "/blog"},
	}
}

// LoadRouteTable loads the route table from file paths or environment.
// It tries paths in order: any paths passed in, then REVALIDATE_ROUTES_FILE,
// then defaults, falling back to the embedded table when none parses.
func LoadRouteTable(paths ...string) *RouteTable {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("REVALIDATE_ROUTES_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/routes.json", "routes.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		var rt RouteTable
		if err := json.Unmarshal(data, &rt); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse routes file %s: %v", routesLogPrefix, p, err))
			continue
		}
		rt.normalize()

		slog.Info(fmt.Sprintf("%s - Loaded route table from %s (%d prefixes)", routesLogPrefix, p, len(rt.Prefixes)))
		return &rt
	}

	slog.Info(fmt.Sprintf("%s - Using default route table", routesLogPrefix))
	return DefaultRouteTable()
}

// normalize fills gaps so a sparse routes file still behaves.
func (rt *RouteTable) normalize() {
	if rt.Prefixes == nil {
		rt.Prefixes = DefaultRouteTable().Prefixes
	}
	if rt.ListingSlug == "" {
		rt.ListingSlug = DefaultRouteTable().ListingSlug
	}
	if len(rt.CommonSlugs) == 0 {
		rt.CommonSlugs = DefaultRouteTable().CommonSlugs
	}
}

// TargetFor builds the slug for an entity of the given content type.
func (rt *RouteTable) TargetFor(contentType, slugToken string) Target {
	prefix := rt.Prefixes[contentType]
	return Target(strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(slugToken, "/"))
}
