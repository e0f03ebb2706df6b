package definition

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// snapshot is an immutable collection of all templates indexed by ID.
type snapshot struct {
	templates map[string]Template
	checksum  string
}

// Registry is a read-optimized, thread-safe store of all loaded templates.
// It uses atomic pointer swap for lock-free concurrent reads.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a Registry from the given templates.
func NewRegistry(templates []Template) *Registry {
	r := &Registry{}
	r.Replace(templates)
	return r
}

// Replace atomically swaps the registry contents with a new snapshot built
// from the given templates. A later template with a duplicate ID wins; the
// validator reports duplicates before a registry is ever built from them.
func (r *Registry) Replace(templates []Template) {
	s := &snapshot{
		templates: make(map[string]Template, len(templates)),
	}

	var checksumParts []string
	for _, tpl := range templates {
		s.templates[tpl.ID] = tpl
		checksumParts = append(checksumParts, tpl.Checksum)
	}

	sort.Strings(checksumParts)
	combined := strings.Join(checksumParts, ":")
	s.checksum = fmt.Sprintf("%x", sha256.Sum256([]byte(combined)))

	r.snap.Store(s)
}

func (r *Registry) current() *snapshot {
	return r.snap.Load()
}

// Get returns the template with the given ID.
func (r *Registry) Get(templateID string) (Template, bool) {
	tpl, ok := r.current().templates[templateID]
	return tpl, ok
}

// All returns all templates sorted by ID.
func (r *Registry) All() []Template {
	s := r.current()
	templates := make([]Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		templates = append(templates, tpl)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].ID < templates[j].ID })
	return templates
}

// Len returns the number of loaded templates.
func (r *Registry) Len() int {
	return len(r.current().templates)
}

// Checksum returns the combined checksum of all loaded templates.
func (r *Registry) Checksum() string {
	return r.current().checksum
}
