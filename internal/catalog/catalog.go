// Package catalog holds the static, versioned notification templates:
// cycle-day activity messages, IEQ check-ins, general reminders, game rules
// and multimodal rules, keyed by locale.
package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
)

//go:embed data/*.json
var embedded embed.FS

// General message keys.
const (
	KeyIPAQReminder    = "ipaq_reminder"
	KeyHydration       = "hydration"
	KeyGoalsReached    = "goals_reached"
	KeyGoalsNotReached = "goals_not_reached"
	KeyActivityLevel   = "activity_level_" // Suffixed with the activity category 1-3
)

// Game rule keys.
const (
	RuleLowFrequency       = "R11"
	RuleSlowDown           = "R12"
	RuleCompleteGames      = "R13"
	RuleTryDifferentGame   = "R14"
	RuleChangeCategory     = "R21"
	RuleIncreaseDifficulty = "R22"
	RuleDecreaseDifficulty = "R23"
	RuleReadInstructions   = "R24"
	RuleCustomizeApp       = "R31"
	RulePraise             = "R32"
	RuleEncourage          = "R33"
	RuleImprove            = "R34"
)

// Multimodal keys. Score keys are built as "<dimension>_<outcome>".
const (
	KeyCognitiveNoGame   = "css_no_game"
	KeyMotorNoSymptoms   = "mfs_no_symptoms"
	KeyDeviation         = "deviation"
	KeyDeviationLabelPfx = "label_"
)

var requiredKeys = map[string][]string{
	"general": {KeyIPAQReminder, KeyHydration, KeyGoalsReached, KeyGoalsNotReached,
		KeyActivityLevel + "1", KeyActivityLevel + "2", KeyActivityLevel + "3"},
	"game": {RuleLowFrequency, RuleSlowDown, RuleCompleteGames, RuleTryDifferentGame,
		RuleChangeCategory, RuleIncreaseDifficulty, RuleDecreaseDifficulty, RuleReadInstructions,
		RuleCustomizeApp, RulePraise, RuleEncourage, RuleImprove},
	"multimodal": {KeyCognitiveNoGame, "css_zero", "css_negative_1", "css_negative_2",
		"css_positive_1", "css_positive_2", "mis_zero", "mis_negative", "mis_positive",
		KeyMotorNoSymptoms, "mfs_negative", "mfs_positive", "pas_zero", "pas_negative",
		"pas_positive", "ss_zero", "ss_negative", "ss_positive", KeyDeviation},
}

// Catalog is loaded once at startup and shared read-only.
type Catalog struct {
	PAR        Table
	IEQ        Table
	General    Table
	Game       Table
	Multimodal Table
}

// LoadDefault loads the catalog embedded in the binary.
func LoadDefault() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded catalog: %w", err)
	}
	return Load(sub)
}

// Load reads par.json, ieq.json, general.json, game.json and multimodal.json
// from fsys and validates them.
func Load(fsys fs.FS) (*Catalog, error) {
	c := &Catalog{}
	files := []struct {
		name  string
		table *Table
	}{
		{"par.json", &c.PAR},
		{"ieq.json", &c.IEQ},
		{"general.json", &c.General},
		{"game.json", &c.Game},
		{"multimodal.json", &c.Multimodal},
	}
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file %s: %w", f.name, err)
		}
		if err := json.Unmarshal(data, f.table); err != nil {
			return nil, fmt.Errorf("failed to parse catalog file %s: %w", f.name, err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that every entry is translated for every mapped locale,
// that cycle-day keys are within the cycle and that rule keys exist.
func (c *Catalog) Validate() error {
	if err := validateTables(); err != nil {
		return err
	}
	var problems []string
	tables := []struct {
		name    string
		table   Table
		dayKeys bool
	}{
		{"par", c.PAR, true},
		{"ieq", c.IEQ, true},
		{"general", c.General, false},
		{"game", c.Game, false},
		{"multimodal", c.Multimodal, false},
	}
	for _, t := range tables {
		if len(t.table) == 0 {
			problems = append(problems, t.name+": table is empty")
			continue
		}
		for key, byLocale := range t.table {
			if t.dayKeys {
				day, err := strconv.Atoi(key)
				if err != nil || day < 1 || day > MaxDay {
					problems = append(problems, fmt.Sprintf("%s: key %q is not a cycle day", t.name, key))
				}
			}
			for _, loc := range Locales() {
				e, ok := byLocale[loc]
				if !ok || e.empty() {
					problems = append(problems, fmt.Sprintf("%s: %s has no %s text", t.name, key, loc))
				}
			}
		}
		for _, key := range requiredKeys[t.name] {
			if !t.table.Has(key) {
				problems = append(problems, fmt.Sprintf("%s: missing required key %s", t.name, key))
			}
		}
	}
	if len(problems) > 0 {
		return errors.New("invalid notification catalog: " + strings.Join(problems, "; "))
	}
	return nil
}

// MaxDay is the last cycle day a template can be keyed by.
const MaxDay = 40

// PARMessage returns the activity-track entry for a cycle day.
func (c *Catalog) PARMessage(day int, loc Locale) (Entry, error) {
	return c.PAR.Lookup(strconv.Itoa(day), loc)
}

// IEQMessage returns the IEQ check-in text for a cycle day.
func (c *Catalog) IEQMessage(day int, loc Locale) (string, error) {
	return c.IEQ.Text(strconv.Itoa(day), loc)
}

// DeviationLabel returns the human label of a deviation category, or the
// category code itself when no label is defined.
func (c *Catalog) DeviationLabel(category string, loc Locale) string {
	label, err := c.Multimodal.Text(KeyDeviationLabelPfx+category, loc)
	if err != nil || label == "" {
		return category
	}
	return label
}
