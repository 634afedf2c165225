// Package models contains the core data types shared across the engine.
package models

// Selectors holds optional per-source extraction expressions. They are
// carried through from source configuration but the live extraction path
// uses the readability extractor; selectors stay unused until a source
// actually populates them.
type Selectors struct {
	Title           string `json:"title,omitempty"`
	Author          string `json:"author,omitempty"`
	PublicationDate string `json:"publication_date,omitempty"`
	Summary         string `json:"summary,omitempty"`
	Content         string `json:"content,omitempty"`
	Tags            string `json:"tags,omitempty"`
	Categories      string `json:"categories,omitempty"`
}

// Source is one configured upstream news site. Sources are loaded once at
// startup and never mutated afterwards.
type Source struct {
	// ID is the opaque identifier from the source registry.
	ID string
	// Name is the human-readable source title.
	Name string
	// Domain is the canonical host articles must come from.
	Domain string
	// RSSURL is the RSS/Atom feed URL polled for this source.
	RSSURL string
	// Categories are the channels the source belongs to.
	Categories []string
	// Selectors are optional extraction expressions, nil when unset.
	Selectors *Selectors
}

// ExtractionRequest is the compact record a poller pushes onto the
// extraction queue when it observes a new feed entry.
type ExtractionRequest struct {
	SourceID string `json:"source_id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}
