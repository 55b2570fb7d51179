// File path: internal/context/dictionary.go
package context

import (
	"strings"
	"unicode"
)

// defaultDictionary covers the vocabulary users reach for when asking about
// the medical record schema. Deployment-specific aliases overlay it through
// Config.Dictionary.
func defaultDictionary() map[string]TermTarget {
	return map[string]TermTarget{
		"patient":      {Table: "patients"},
		"patients":     {Table: "patients"},
		"dob":          {Table: "patients", Column: "date_of_birth"},
		"birthday":     {Table: "patients", Column: "date_of_birth"},
		"report":       {Table: "reports"},
		"reports":      {Table: "reports"},
		"document":     {Table: "reports"},
		"upload":       {Table: "reports"},
		"test":         {Table: "lab_tests"},
		"tests":        {Table: "lab_tests"},
		"lab":          {Table: "lab_tests"},
		"labs":         {Table: "lab_tests"},
		"result":       {Table: "lab_tests", Column: "result_value"},
		"results":      {Table: "lab_tests", Column: "result_value"},
		"hemoglobin":   {Table: "lab_tests", Column: "test_name"},
		"glucose":      {Table: "lab_tests", Column: "test_name"},
		"cholesterol":  {Table: "lab_tests", Column: "test_name"},
		"doctor":       {Table: "doctors"},
		"doctors":      {Table: "doctors"},
		"physician":    {Table: "doctors"},
		"provider":     {Table: "doctors"},
		"medication":   {Table: "medications"},
		"medications":  {Table: "medications"},
		"drug":         {Table: "medications"},
		"drugs":        {Table: "medications"},
		"prescription": {Table: "medications"},
		"diagnosis":    {Table: "diagnoses"},
		"diagnoses":    {Table: "diagnoses"},
		"condition":    {Table: "diagnoses"},
		"visit":        {Table: "visits"},
		"visits":       {Table: "visits"},
		"appointment":  {Table: "visits"},
		"admission":    {Table: "visits"},
	}
}

// tokenize lowercases the question and splits it into alphanumeric tokens.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		if field != "" {
			tokens = append(tokens, field)
		}
	}
	return tokens
}

// nameTokens splits an identifier such as "date_of_birth" into its parts.
func nameTokens(name string) []string {
	return tokenize(strings.ReplaceAll(strings.ToLower(name), "_", " "))
}

// singular trims a trailing plural s so "reports" matches table "report" and
// vice versa.
func singular(token string) string {
	if len(token) > 3 && strings.HasSuffix(token, "s") {
		return strings.TrimSuffix(token, "s")
	}
	return token
}
