package normalisers

import (
	"testing"
)

// Mock normaliser for testing
type mockNormaliser struct {
	name     string
	types    []string
	priority int
}

func (m *mockNormaliser) Normalise(content string, mimeType string) string {
	return content + "-" + m.name
}

func (m *mockNormaliser) SupportedTypes() []string {
	return m.types
}

func (m *mockNormaliser) Priority() int {
	return m.priority
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockNormaliser{name: "test", types: []string{"text/plain"}, priority: 50})

	if n := r.Get("text/plain"); n == nil {
		t.Fatal("expected to find normaliser")
	}
	if n := r.Get("application/json"); n != nil {
		t.Error("expected nil for unregistered type")
	}
}

func TestRegistry_Get_PrioritySelection(t *testing.T) {
	r := NewRegistry()
	r.Register(&mockNormaliser{name: "low", types: []string{"text/plain"}, priority: 10})
	r.Register(&mockNormaliser{name: "high", types: []string{"text/plain"}, priority: 90})
	r.Register(&mockNormaliser{name: "medium", types: []string{"text/plain"}, priority: 50})

	if got := r.Normalise("x", "text/plain"); got != "x-high" {
		t.Errorf("expected highest priority normaliser, got %q", got)
	}
}

func TestMatchesMIMEType(t *testing.T) {
	tests := []struct {
		supported []string
		mimeType  string
		want      bool
	}{
		{[]string{"text/plain"}, "text/plain", true},
		{[]string{"text/plain"}, "TEXT/PLAIN; charset=utf-8", true},
		{[]string{"text/*"}, "text/markdown", true},
		{[]string{"text/*"}, "application/pdf", false},
		{[]string{"*/*"}, "application/vnd.google-apps.document", true},
		{[]string{"application/pdf"}, "text/plain", false},
	}

	for _, tt := range tests {
		if got := matchesMIMEType(tt.supported, tt.mimeType); got != tt.want {
			t.Errorf("matchesMIMEType(%v, %q) = %v, want %v", tt.supported, tt.mimeType, got, tt.want)
		}
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name     string
		mimeType string
		in       string
		want     string
	}{
		{"strips bom", "application/vnd.google-apps.document", "\ufeffHello", "Hello"},
		{"strips nul", "text/plain", "a\x00b", "ab"},
		{"keeps interior bom", "text/plain", "a\ufeffb", "a\ufeffb"},
		{"keeps whitespace", "text/plain", "  a\r\n\n\n", "  a\r\n\n\n"},
		{"pdf form feed", "application/pdf", "page1\fpage2", "page1\n\npage2"},
		{"form feed outside pdf", "text/plain", "a\fb", "a\fb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Normalise(tt.in, tt.mimeType); got != tt.want {
				t.Errorf("Normalise(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
