package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEntryNotFound = errors.New("catalog entry not found")
	// ErrVariantNotDefined means the entry is diagnosis specific but has no
	// text for the requested disease category.
	ErrVariantNotDefined = errors.New("message variant not defined for this diagnosis")
	ErrDiagnosisRequired = errors.New("catalog entry requires a diagnosis")
)

// Entry is one localized template: either plain text or a list of
// variants indexed by DiseaseCategory.
type Entry struct {
	text     string
	variants []string
}

// Text returns a plain entry.
func Text(s string) Entry { return Entry{text: s} }

// Variants returns a diagnosis-indexed entry.
func Variants(v ...string) Entry { return Entry{variants: v} }

// ByDiagnosis reports whether the entry is indexed by disease category.
func (e Entry) ByDiagnosis() bool { return e.variants != nil }

// Plain returns the text of a plain entry.
func (e Entry) Plain() (string, error) {
	if e.ByDiagnosis() {
		return "", ErrDiagnosisRequired
	}
	return e.text, nil
}

// Resolve returns the text for a disease category. Plain entries ignore it.
func (e Entry) Resolve(cat DiseaseCategory) (string, error) {
	if !e.ByDiagnosis() {
		return e.text, nil
	}
	if cat < 0 || int(cat) >= len(e.variants) || e.variants[cat] == "" {
		return "", fmt.Errorf("%w: %s", ErrVariantNotDefined, cat)
	}
	return e.variants[cat], nil
}

func (e Entry) empty() bool {
	if e.ByDiagnosis() {
		return len(e.variants) == 0
	}
	return e.text == ""
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var v []string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*e = Entry{variants: v}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("catalog entry must be a string or a list of strings: %w", err)
	}
	*e = Entry{text: s}
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if e.ByDiagnosis() {
		return json.Marshal(e.variants)
	}
	return json.Marshal(e.text)
}

// Table maps a key (cycle day or rule identifier) to its localized entries.
type Table map[string]map[Locale]Entry

// Lookup returns the entry for key in loc, falling back to DefaultLocale
// when loc has no translation.
func (t Table) Lookup(key string, loc Locale) (Entry, error) {
	byLocale, ok := t[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, key)
	}
	if e, ok := byLocale[loc]; ok {
		return e, nil
	}
	if e, ok := byLocale[DefaultLocale]; ok {
		return e, nil
	}
	return Entry{}, fmt.Errorf("%w: %s/%s", ErrEntryNotFound, key, loc)
}

// Text returns the plain text for key in loc.
func (t Table) Text(key string, loc Locale) (string, error) {
	e, err := t.Lookup(key, loc)
	if err != nil {
		return "", err
	}
	return e.Plain()
}

// Has reports whether key is present.
func (t Table) Has(key string) bool {
	_, ok := t[key]
	return ok
}
