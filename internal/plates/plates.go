// Package plates normalizes, validates and fuzzily compares vehicle
// registration plate numbers. All functions are pure.
package plates

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Category is the kind of vehicle a plate format is issued to.
type Category string

const (
	CategoryPrivate    Category = "private"
	CategoryCommercial Category = "commercial"
	CategoryGovernment Category = "government"
	CategoryDiplomatic Category = "diplomatic"
	CategoryMilitary   Category = "military"
	CategoryUnknown    Category = "unknown"
)

// Format describes one recognized plate layout.
type Format struct {
	Name     string
	Example  string
	Category Category
	pattern  *regexp.Regexp
	// stateCoded formats carry a state code in their first two letters.
	stateCoded bool
}

// Formats are tried in order; the first match wins.
var Formats = []Format{
	{
		Name:       "current",
		Example:    "ABC-123-DE",
		Category:   CategoryPrivate,
		pattern:    regexp.MustCompile(`^[A-Z]{3}-[0-9]{3}-[A-Z]{2}$`),
		stateCoded: true,
	},
	{
		Name:       "legacy",
		Example:    "AB-123-CD",
		Category:   CategoryPrivate,
		pattern:    regexp.MustCompile(`^[A-Z]{2,3}-[0-9]{3}-[A-Z]{1,2}$`),
		stateCoded: true,
	},
	{
		Name:     "commercial",
		Example:  "ABC-1234-D",
		Category: CategoryCommercial,
		pattern:  regexp.MustCompile(`^[A-Z]{3}-[0-9]{4}-[A-Z]{1,2}$`),
	},
	{
		Name:     "government",
		Example:  "ABUJA-123",
		Category: CategoryGovernment,
		pattern:  regexp.MustCompile(`^(FG-[0-9]{2,4}-[A-Z][0-9]{2}|[A-Z]{4,12}-[0-9]{1,4})$`),
	},
	{
		Name:     "diplomatic",
		Example:  "12-CD-345",
		Category: CategoryDiplomatic,
		pattern:  regexp.MustCompile(`^[0-9]{1,3}-(CD|CC|TC)-[0-9]{1,4}$`),
	},
	{
		Name:     "military",
		Example:  "NA-12345",
		Category: CategoryMilitary,
		pattern:  regexp.MustCompile(`^(NA|NN|NAF|NPF)-[0-9]{2,5}[A-Z]?$`),
	},
	{
		Name:     "legacy_no_hyphen",
		Example:  "AB123C",
		Category: CategoryPrivate,
		pattern:  regexp.MustCompile(`^[A-Z]{2,3}[0-9]{3}[A-Z]{1,2}$`),
	},
}

// StateCodes is the allow-list of two-letter state codes that prefix
// current and legacy plates.
var StateCodes = map[string]string{
	"AB": "Abia", "AD": "Adamawa", "AK": "Akwa Ibom", "AN": "Anambra",
	"BA": "Bauchi", "BY": "Bayelsa", "BE": "Benue", "BO": "Borno",
	"CR": "Cross River", "DE": "Delta", "EB": "Ebonyi", "ED": "Edo",
	"EK": "Ekiti", "EN": "Enugu", "FC": "Federal Capital Territory", "GO": "Gombe",
	"IM": "Imo", "JI": "Jigawa", "KD": "Kaduna", "KN": "Kano",
	"KT": "Katsina", "KE": "Kebbi", "KO": "Kogi", "KW": "Kwara",
	"LA": "Lagos", "NA": "Nasarawa", "NI": "Niger", "OG": "Ogun",
	"ON": "Ondo", "OS": "Osun", "OY": "Oyo", "PL": "Plateau",
	"RI": "Rivers", "SO": "Sokoto", "TA": "Taraba", "YO": "Yobe",
	"ZA": "Zamfara",
}

var (
	noHyphenTwoLetter   = regexp.MustCompile(`^([A-Z]{2})([0-9]{3})([A-Z]{2})$`)
	noHyphenThreeLetter = regexp.MustCompile(`^([A-Z]{3})([0-9]{3})([A-Z]{2})$`)
)

// Result is the outcome of Validate. Errors is empty when IsValid is true.
type Result struct {
	Normalized string   `json:"normalized"`
	Format     string   `json:"format,omitempty"`
	Category   Category `json:"category"`
	Errors     []string `json:"errors,omitempty"`
	IsValid    bool     `json:"isValid"`
}

// Normalize strips whitespace, uppercases and re-hyphenates the two
// recognized no-hyphen shapes. Unrecognized shapes pass through stripped
// and uppercased. Normalize is idempotent.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	s := b.String()

	if m := noHyphenTwoLetter.FindStringSubmatch(s); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	if m := noHyphenThreeLetter.FindStringSubmatch(s); m != nil {
		return m[1] + "-" + m[2] + "-" + m[3]
	}
	return s
}

// Validate normalizes raw and matches it against Formats in order.
func Validate(raw string) Result {
	normalized := Normalize(raw)
	res := Result{Normalized: normalized, Category: CategoryUnknown}

	if normalized == "" {
		res.Errors = []string{"plate number is required"}
		return res
	}

	var errs []string
	for _, f := range Formats {
		if !f.pattern.MatchString(normalized) {
			continue
		}
		if f.stateCoded {
			code := normalized[:2]
			if _, ok := StateCodes[code]; !ok {
				errs = append(errs, fmt.Sprintf("unknown state code %q for %s format", code, f.Name))
				continue
			}
		}
		res.IsValid = true
		res.Format = f.Name
		res.Category = f.Category
		return res
	}

	res.Errors = append(errs, "plate number does not match any recognized format (expected e.g. "+exampleList()+")")
	return res
}

// Classify returns the category of the format that validates plate, or
// CategoryUnknown when the plate is invalid.
func Classify(plate string) Category {
	return Validate(plate).Category
}

func exampleList() string {
	examples := make([]string, 0, len(Formats))
	for _, f := range Formats {
		examples = append(examples, f.Example)
	}
	return strings.Join(examples, ", ")
}
