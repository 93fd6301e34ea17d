package catalog

import (
	"errors"
	"strings"
)

// Locale is the language code message templates are keyed by.
type Locale string

const (
	LocaleEnglish    Locale = "en"
	LocalePortuguese Locale = "pt"
	LocaleSpanish    Locale = "es"

	DefaultLocale = LocaleEnglish
)

var ErrUnmappedOrganization = errors.New("organization code has no locale")

// organizationLocales maps registry organization codes to locales.
var organizationLocales = map[string]Locale{
	"000": LocaleEnglish, // System / test organization
	"001": LocalePortuguese,
	"002": LocaleSpanish,
	"003": LocaleEnglish,
}

// LocaleFor returns the locale of an organization. Unmapped codes fall back
// to DefaultLocale together with ErrUnmappedOrganization so callers can log.
func LocaleFor(organizationCode string) (Locale, error) {
	if loc, ok := organizationLocales[strings.TrimSpace(organizationCode)]; ok {
		return loc, nil
	}
	return DefaultLocale, ErrUnmappedOrganization
}

// Locales returns every locale some organization maps to.
func Locales() []Locale {
	seen := make(map[Locale]bool)
	var out []Locale
	for _, code := range []string{"000", "001", "002", "003"} {
		loc := organizationLocales[code]
		if !seen[loc] {
			seen[loc] = true
			out = append(out, loc)
		}
	}
	return out
}

// DiseaseCategory indexes diagnosis-specific message variants.
type DiseaseCategory int

const (
	DiseaseUnmapped  DiseaseCategory = -1
	DiseaseDementia  DiseaseCategory = 0
	DiseaseParkinson DiseaseCategory = 1
	DiseaseMixed     DiseaseCategory = 2 // Dementia with parkinsonism
)

func (d DiseaseCategory) String() string {
	switch d {
	case DiseaseDementia:
		return "dementia"
	case DiseaseParkinson:
		return "parkinson"
	case DiseaseMixed:
		return "mixed"
	default:
		return "unmapped"
	}
}

// diagnosisCategories maps ICD-10 codes (full code or three-character stem)
// to disease categories. Full codes win over stems.
var diagnosisCategories = map[string]DiseaseCategory{
	"F00":    DiseaseDementia, // Dementia in Alzheimer's disease
	"F01":    DiseaseDementia, // Vascular dementia
	"F03":    DiseaseDementia,
	"G30":    DiseaseDementia, // Alzheimer's disease
	"G31.0":  DiseaseDementia, // Frontotemporal dementia
	"G31.84": DiseaseDementia, // Mild cognitive impairment
	"G20":    DiseaseParkinson,
	"G31.83": DiseaseMixed, // Dementia with Lewy bodies
	"F02.3":  DiseaseMixed, // Dementia in Parkinson's disease
}

// CategoryFor maps a diagnosis code to its disease category. Unknown codes
// return DiseaseUnmapped and false.
func CategoryFor(code string) (DiseaseCategory, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DiseaseUnmapped, false
	}
	if cat, ok := diagnosisCategories[code]; ok {
		return cat, true
	}
	stem := code
	if i := strings.IndexByte(code, '.'); i >= 0 {
		stem = code[:i]
	}
	if cat, ok := diagnosisCategories[stem]; ok {
		return cat, true
	}
	return DiseaseUnmapped, false
}

func validateTables() error {
	for code, cat := range diagnosisCategories {
		if cat < DiseaseDementia || cat > DiseaseMixed {
			return errors.New("diagnosis " + code + " maps to an unknown disease category")
		}
	}
	for code, loc := range organizationLocales {
		if loc == "" {
			return errors.New("organization " + code + " maps to an empty locale")
		}
	}
	return nil
}
