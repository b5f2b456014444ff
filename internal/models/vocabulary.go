package models

import "time"

// TermSource identifies which collaborator contributed a learned term.
type TermSource string

const (
	SourceSceneDescription TermSource = "scene-description"
	SourceLocation         TermSource = "location"
	SourceMemory           TermSource = "memory"
)

// Valid reports whether s is a known term source.
func (s TermSource) Valid() bool {
	switch s {
	case SourceSceneDescription, SourceLocation, SourceMemory:
		return true
	}
	return false
}

// VocabularyEntry is one learned term with its usage bookkeeping.
// The term itself is the case-insensitive map key and stored lowercase.
type VocabularyEntry struct {
	Term       string     `json:"term"`
	Source     TermSource `json:"source"`
	AddedAt    time.Time  `json:"added_at"`
	LastUsedAt time.Time  `json:"last_used_at"`
	UseCount   int        `json:"use_count"`
}

// VocabularyDocument is the persisted on-disk form of the adaptive vocabulary.
type VocabularyDocument struct {
	BaseTerms    []string                   `json:"base_terms"`
	DynamicTerms map[string]VocabularyEntry `json:"dynamic_terms"`
}
