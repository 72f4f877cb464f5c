package normalisers

import (
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry selects the highest priority normaliser matching a MIME type.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// DefaultRegistry creates a registry with the built-in normalisers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&TextNormaliser{})
	r.Register(&PDFNormaliser{})
	return r
}

// Register registers a normaliser.
func (r *Registry) Register(normaliser driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.normalisers = append(r.normalisers, normaliser)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// Get returns the best-matching normaliser, or nil if none matches.
func (r *Registry) Get(mimeType string) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, n := range r.normalisers {
		if matchesMIMEType(n.SupportedTypes(), mimeType) {
			return n
		}
	}
	return nil
}

// Normalise applies the best-matching normaliser, or returns content unchanged.
func (r *Registry) Normalise(content, mimeType string) string {
	if n := r.Get(mimeType); n != nil {
		return n.Normalise(content, mimeType)
	}
	return content
}

// matchesMIMEType supports exact types, "type/*" and "*/*".
// Parameters such as charset are ignored.
func matchesMIMEType(supportedTypes []string, mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.Index(mimeType, ";"); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	for _, supported := range supportedTypes {
		supported = strings.ToLower(strings.TrimSpace(supported))
		switch {
		case supported == "*/*", supported == mimeType:
			return true
		case strings.HasSuffix(supported, "/*"):
			if strings.HasPrefix(mimeType, strings.TrimSuffix(supported, "*")) {
				return true
			}
		}
	}
	return false
}

const byteOrderMark = "\ufeff"

// TextNormaliser is the fallback for every type. It strips NUL bytes, which
// PostgreSQL TEXT cannot store, and a leading byte order mark. Nothing else
// changes so content hashes stay stable.
type TextNormaliser struct{}

func (n *TextNormaliser) Normalise(content string, mimeType string) string {
	content = strings.TrimPrefix(content, byteOrderMark)
	return strings.ReplaceAll(content, "\x00", "")
}

func (n *TextNormaliser) SupportedTypes() []string {
	return []string{"*/*"}
}

func (n *TextNormaliser) Priority() int {
	return 1
}

// PDFNormaliser additionally turns the form feeds pdftotext emits between
// pages into paragraph breaks.
type PDFNormaliser struct {
	text TextNormaliser
}

func (n *PDFNormaliser) Normalise(content string, mimeType string) string {
	content = n.text.Normalise(content, mimeType)
	return strings.ReplaceAll(content, "\f", "\n\n")
}

func (n *PDFNormaliser) SupportedTypes() []string {
	return []string{"application/pdf"}
}

func (n *PDFNormaliser) Priority() int {
	return 50
}
