package revalidate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRouteTable_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.json")
	content := `{
		"prefixes": {"post": "/blog", "doc": "/docs"},
		"listingSlug": "/blog",
		"commonSlugs": ["/", "/blog", "/docs"]
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write routes file: %v", err)
	}

	rt := LoadRouteTable(path)
	if rt.Prefixes["doc"] != "/docs" {
		t.Errorf("Prefixes[doc] = %q, want /docs", rt.Prefixes["doc"])
	}
	if rt.ListingSlug != "/blog" {
		t.Errorf("ListingSlug = %q, want /blog", rt.ListingSlug)
	}
	if len(rt.CommonSlugs) != 3 {
		t.Errorf("CommonSlugs = %v, want 3 entries", rt.CommonSlugs)
	}
}

func TestLoadRouteTable_MissingFileFallsBack(t *testing.T) {
	rt := LoadRouteTable(filepath.Join(t.TempDir(), "nope.json"))
	if rt.Prefixes["post"] != "/blog" {
		t.Errorf("expected default prefixes, got %v", rt.Prefixes)
	}
	if rt.ListingSlug != "/blog" {
		t.Errorf("expected default listing slug, got %s", rt.ListingSlug)
	}
}

func TestLoadRouteTable_SparseFileNormalized(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.json")
	if err := os.WriteFile(path, []byte(`{"prefixes": {"post": "/articles"}}`), 0644); err != nil {
		t.Fatalf("write routes file: %v", err)
	}

	rt := LoadRouteTable(path)
	if rt.Prefixes["post"] != "/articles" {
		t.Errorf("Prefixes[post] = %q, want /articles", rt.Prefixes["post"])
	}
	if rt.ListingSlug == "" {
		t.Error("expected listing slug to be filled from defaults")
	}
	if len(rt.CommonSlugs) == 0 {
		t.Error("expected common slugs to be filled from defaults")
	}
}

func TestRouteTable_TargetFor(t *testing.T) {
	rt := DefaultRouteTable()

	tests := []struct {
		contentType string
		slug        string
		want        Target
	}{
		{"post", "my-post", "/blog/my-post"},
		{"page", "about", "/about"},
		{"post", "/my-post", "/blog/my-post"},
	}
	for _, tt := range tests {
		got := rt.TargetFor(tt.contentType, tt.slug)
		if got != tt.want {
			t.Errorf("TargetFor(%q, %q) = %q, want %q", tt.contentType, tt.slug, got, tt.want)
		}
	}
}

func TestRouteTable_TargetFor_TrailingSlashPrefix(t *testing.T) {
	rt := &RouteTable{Prefixes: map[string]string{"post": "/blog/"}, ListingSlug: "/blog"}
	if got := rt.TargetFor("post", "my-post"); got != "/blog/my-post" {
		t.Errorf("TargetFor = %q, want /blog/my-post", got)
	}
}
