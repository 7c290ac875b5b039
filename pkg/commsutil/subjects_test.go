package commsutil

import "testing"

func TestBuildContentSubject(t *testing.T) {
	tests := []struct {
		kind string
		want string
	}{
		{"post", "cms.content.changed.post"},
		{"taxonomy", "cms.content.changed.taxonomy"},
	}
	for _, tt := range tests {
		got := BuildContentSubject(tt.kind)
		if got != tt.want {
			t.Errorf("BuildContentSubject(%q) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestDefaultSubjects(t *testing.T) {
	if SubjectContentChangedAll != "cms.content.changed.>" {
		t.Errorf("SubjectContentChangedAll = %q", SubjectContentChangedAll)
	}
	if SubjectControl != "revalidate.control.v1" {
		t.Errorf("SubjectControl = %q", SubjectControl)
	}
}
