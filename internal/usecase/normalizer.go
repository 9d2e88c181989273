package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Compiled regex patterns for feed text heuristics
var (
	// Matches "MN002 - CST Loafer ..." : code, series, rest
	codeSeriesPattern = regexp.MustCompile(`^\s*([A-Za-z0-9]+)\s*-\s*([A-Z]{3})\s+(.+)$`)

	// Matches a leading model code: two letters followed by 3-5 digits
	modelCodePattern = regexp.MustCompile(`(?i)^\s*([A-Z]{2}\d{3,5})\b`)

	// Word tokens of folded text
	wordPattern = regexp.MustCompile(`[A-Z0-9]+`)

	// HTML tags in descriptions
	htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

	// Multiple spaces cleanup
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// DefaultSeries is used in titles when the name carries no series token
const DefaultSeries = "STD"

// colorWords is the closed color vocabulary, in folded form
var colorWords = map[string]bool{
	"SIYAH": true, "BEYAZ": true, "LACIVERT": true, "KAHVE": true, "KAHVERENGI": true,
	"GRI": true, "ANTRASIT": true, "SAX": true, "MAVI": true, "KREM": true,
	"BEJ": true, "TABA": true, "BORDO": true, "KIRMIZI": true, "YESIL": true,
	"HAKI": true, "PEMBE": true, "MOR": true, "SARI": true, "TURUNCU": true,
	"VIZON": true, "GUMUS": true, "ALTIN": true, "PUDRA": true, "TEN": true,
	"BRONZ": true, "FUME": true, "EKRU": true, "HARDAL": true, "NUDE": true,
}

// finishWords is the closed material/finish vocabulary, in folded form
var finishWords = map[string]bool{
	"RUGAN":  true, // patent / glossy
	"PARLAK": true,
	"MAT":    true,
	"SUET":   true,
	"NUBUK":  true,
	"SATEN":  true,
	"SIMLI":  true,
	"KROKO":  true,
}

// categoryRule maps folded keywords to a product type
type categoryRule struct {
	productType string
	keywords    map[string]bool
}

// categoryRules are checked in priority order: boots, athletic, formal
var categoryRules = []categoryRule{
	{
		productType: "Bot",
		keywords: map[string]bool{
			"BOT": true, "BOTU": true, "BOTIN": true, "BOOT": true, "BOOTS": true,
			"CIZME": true, "CIZMESI": true, "POSTAL": true,
		},
	},
	{
		productType: "Spor Ayakkabı",
		keywords: map[string]bool{
			"SPOR": true, "SNEAKER": true, "SNEAKERS": true, "KOSU": true,
			"RUNNING": true, "TRAINER": true, "YURUYUS": true,
		},
	},
	{
		productType: "Klasik Ayakkabı",
		keywords: map[string]bool{
			"KLASIK": true, "LOAFER": true, "OXFORD": true, "DERBY": true,
			"MAKOSEN": true, "TOPUKLU": true, "STILETTO": true, "ABIYE": true,
		},
	},
}

// Upper upper-cases display text without locale rules, so Latin brand names keep
// a dotless I ("Hispanitas" -> "HISPANITAS")
func Upper(s string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(s))
}

// Fold upper-cases s with Turkish rules and strips diacritics so "Siyah", "SİYAH"
// and "siyah" compare equal
func Fold(s string) string {
	up := cases.Upper(language.Turkish).String(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, up)
	if err != nil {
		return up
	}
	return folded
}

// CollapseSpaces trims s and collapses internal whitespace runs to one space
func CollapseSpaces(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// isColorToken reports whether a name token is a color, including composites like "SIYAH-BEYAZ"
func isColorToken(token string) bool {
	parts := strings.FieldsFunc(Fold(token), func(r rune) bool {
		return r == '-' || r == '/' || r == ','
	})
	if len(parts) == 0 {
		return false
	}
	for _, part := range parts {
		if !colorWords[part] {
			return false
		}
	}
	return true
}

// ExtractColor returns the color named by the trailing tokens of a product name.
// At most two trailing tokens are considered; anything else is not a color.
func ExtractColor(name string) (string, bool) {
	tokens := strings.Fields(name)
	var color []string
	for i := len(tokens) - 1; i >= 0 && len(color) < 2; i-- {
		if !isColorToken(tokens[i]) {
			break
		}
		color = append([]string{Upper(tokens[i])}, color...)
	}
	if len(color) == 0 {
		return "", false
	}
	return strings.Join(color, " "), true
}

// ExtractFinish returns the first finish keyword found in the name, then in the description
func ExtractFinish(name, description string) (string, bool) {
	for _, text := range []string{name, htmlTagPattern.ReplaceAllString(description, " ")} {
		for _, word := range wordPattern.FindAllString(Fold(text), -1) {
			if finishWords[word] {
				return word, true
			}
		}
	}
	return "", false
}

// ExtractModelCode prefers a leading code token of the name, then the MPN, then the product code
func ExtractModelCode(name, mpn, productCode string) (string, bool) {
	if m := modelCodePattern.FindStringSubmatch(name); m != nil {
		return strings.ToUpper(m[1]), true
	}
	if code := strings.ToUpper(strings.TrimSpace(mpn)); code != "" {
		return code, true
	}
	if code := strings.ToUpper(strings.TrimSpace(productCode)); code != "" {
		return code, true
	}
	return "", false
}

// ExtractSeries returns the three letter series token of names shaped "CODE - SSS rest"
func ExtractSeries(name string) (string, bool) {
	m := codeSeriesPattern.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[2]), true
}

// Classify matches the given texts against the category keywords, boots first
func Classify(texts ...string) (string, bool) {
	words := make(map[string]bool)
	for _, text := range texts {
		for _, word := range wordPattern.FindAllString(Fold(text), -1) {
			words[word] = true
		}
	}
	for _, rule := range categoryRules {
		for keyword := range rule.keywords {
			if words[keyword] {
				return rule.productType, true
			}
		}
	}
	return "", false
}

// BuildTitle strips the code/series head and color tail of a feed name and appends
// the normalized " – SERIES BRAND CODE" suffix.
func BuildTitle(name, brand, code string) string {
	core := strings.TrimSpace(name)
	series := DefaultSeries
	if m := codeSeriesPattern.FindStringSubmatch(core); m != nil {
		if code == "" {
			code = strings.ToUpper(m[1])
		}
		series = strings.ToUpper(m[2])
		core = m[3]
	}

	tokens := strings.Fields(core)
	// a bare leading code token
	if len(tokens) > 0 && code != "" && strings.EqualFold(strings.Trim(tokens[0], "-"), code) {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && isColorToken(tokens[0]) {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && (isColorToken(tokens[len(tokens)-1]) || tokens[len(tokens)-1] == "-") {
		tokens = tokens[:len(tokens)-1]
	}
	core = strings.Join(tokens, " ")
	if core == "" {
		core = strings.TrimSpace(name)
	}

	return CollapseSpaces(fmt.Sprintf("%s – %s %s %s", core, series, Upper(brand), code))
}

// ImageSignature normalizes an image URL to its scheme-less lower-cased form
func ImageSignature(url string) string {
	sig := strings.ToLower(strings.TrimSpace(url))
	for _, prefix := range []string{"https://", "http://", "//"} {
		if strings.HasPrefix(sig, prefix) {
			sig = strings.TrimPrefix(sig, prefix)
			break
		}
	}
	return sig
}
