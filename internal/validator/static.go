// File path: internal/validator/static.go
package validator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// forbiddenKeywords rejects data mutation, DDL, privilege, session and
// transaction control statements wherever they appear outside strings.
var forbiddenKeywords = []string{
	"insert", "update", "delete", "merge", "upsert",
	"drop", "truncate", "alter", "create", "rename",
	"grant", "revoke", "reassign",
	"copy", "vacuum", "reindex", "cluster", "lock",
	"set", "reset", "discard", "listen", "notify", "unlisten",
	"prepare", "execute", "deallocate", "call", "do",
	"begin", "commit", "rollback", "savepoint", "abort",
}

// volatileFunctions is the fixed list of unsafe built-ins.
var volatileFunctions = []string{
	"pg_sleep", "pg_sleep_for", "pg_sleep_until",
	"pg_read_file", "pg_read_binary_file", "pg_ls_dir", "pg_stat_file",
	"pg_terminate_backend", "pg_cancel_backend", "pg_reload_conf",
	"pg_rotate_logfile", "pg_switch_wal",
	"lo_import", "lo_export",
	"nextval", "setval", "currval", "lastval",
	"set_config", "setseed", "dblink", "dblink_exec",
}

var (
	keywordPatterns  = compileWordPatterns(forbiddenKeywords)
	volatilePatterns = compileCallPatterns(volatileFunctions)
	lockingPattern   = regexp.MustCompile(`(?i)\bfor\s+(update|share|no\s+key\s+update|key\s+share)\b`)
	joinPattern      = regexp.MustCompile(`(?i)\bjoin\b`)
	aggregatePattern = regexp.MustCompile(`(?i)\b(count|sum|avg|min|max|string_agg|array_agg|json_agg|jsonb_agg|bool_and|bool_or|every|percentile_cont|percentile_disc)\s*\(`)
)

func compileWordPatterns(words []string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(words))
	for _, word := range words {
		out[word] = regexp.MustCompile(`(?i)\b` + word + `\b`)
	}
	return out
}

func compileCallPatterns(names []string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(names))
	for _, name := range names {
		out[name] = regexp.MustCompile(`(?i)\b` + name + `\s*\(`)
	}
	return out
}

// staticCheck strips comments, normalizes whitespace, enforces the row cap
// and accumulates every triggered violation; it never short-circuits on the
// first failing rule.
func (v *Validator) staticCheck(query string, maxRows int) (string, []ViolationCode) {
	var violations []ViolationCode
	add := func(code ViolationCode) {
		for _, existing := range violations {
			if existing == code {
				return
			}
		}
		violations = append(violations, code)
	}

	stripped := stripComments(query)
	normalized := collapseWhitespace(stripped)
	normalized = strings.TrimSuffix(normalized, ";")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return "", []ViolationCode{ViolationEmptyQuery}
	}

	lowered := strings.ToLower(normalized)
	if !strings.HasPrefix(lowered, "select") && !strings.HasPrefix(lowered, "with") {
		add(ViolationNotASelect)
	}

	masked := maskStrings(normalized)
	if strings.Contains(masked, ";") {
		add(ViolationMultiStatement)
	}
	for _, pattern := range keywordPatterns {
		if pattern.MatchString(masked) {
			add(ViolationForbiddenKeyword)
			break
		}
	}
	for _, pattern := range volatilePatterns {
		if pattern.MatchString(masked) {
			add(ViolationVolatileFunction)
			break
		}
	}
	if lockingPattern.MatchString(masked) {
		add(ViolationLockingClause)
	}
	if joins := len(joinPattern.FindAllStringIndex(masked, -1)); joins > v.cfg.MaxJoins {
		add(ViolationTooManyJoins)
	}
	if depth := subqueryDepth(masked); depth > v.cfg.MaxSubqueryDepth {
		add(ViolationSubqueryTooDeep)
	}
	if aggs := len(aggregatePattern.FindAllStringIndex(masked, -1)); aggs > v.cfg.MaxAggregates {
		add(ViolationTooManyAggs)
	}

	defaultRows := v.cfg.DefaultRows
	if defaultRows > maxRows {
		defaultRows = maxRows
	}
	capped, ok := enforceRowCap(normalized, masked, defaultRows, maxRows)
	if !ok {
		add(ViolationRowCapInvalid)
	}
	if len(violations) > 0 {
		return "", violations
	}
	return capped, nil
}

// stripComments removes -- line comments and (nested) block comments while
// leaving string literal contents intact.
func stripComments(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	inString := false
	blockDepth := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		if blockDepth > 0 {
			if c == '*' && i+1 < len(query) && query[i+1] == '/' {
				blockDepth--
				i++
			} else if c == '/' && i+1 < len(query) && query[i+1] == '*' {
				blockDepth++
				i++
			}
			continue
		}
		if inString {
			b.WriteByte(c)
			if c == '\'' {
				// '' escapes a quote inside the literal
				if i+1 < len(query) && query[i+1] == '\'' {
					b.WriteByte(query[i+1])
					i++
				} else {
					inString = false
				}
			}
			continue
		}
		switch {
		case c == '\'':
			inString = true
			b.WriteByte(c)
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			for i < len(query) && query[i] != '\n' {
				i++
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			blockDepth = 1
			i++
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// maskStrings blanks out string literal contents so keyword and semicolon
// scanning cannot be fooled by quoted text.
func maskStrings(query string) string {
	out := []byte(query)
	inString := false
	for i := 0; i < len(out); i++ {
		if inString {
			if out[i] == '\'' {
				if i+1 < len(out) && out[i+1] == '\'' {
					out[i+1] = ' '
					i++
					continue
				}
				inString = false
				continue
			}
			out[i] = ' '
			continue
		}
		if out[i] == '\'' {
			inString = true
		}
	}
	return string(out)
}

func collapseWhitespace(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	inString := false
	lastSpace := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		if inString {
			b.WriteByte(c)
			if c == '\'' {
				if i+1 < len(query) && query[i+1] == '\'' {
					b.WriteByte(query[i+1])
					i++
				} else {
					inString = false
				}
			}
			continue
		}
		if c == '\'' {
			inString = true
			b.WriteByte(c)
			lastSpace = false
			continue
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteByte(c)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

// subqueryDepth reports the deepest nesting of parenthesized SELECTs.
func subqueryDepth(masked string) int {
	lowered := strings.ToLower(masked)
	depth, maxDepth := 0, 0
	var stack []bool
	for i := 0; i < len(lowered); i++ {
		switch lowered[i] {
		case '(':
			rest := strings.TrimLeft(lowered[i+1:], " ")
			isSelect := strings.HasPrefix(rest, "select")
			stack = append(stack, isSelect)
			if isSelect {
				depth++
				if depth > maxDepth {
					maxDepth = depth
				}
			}
		case ')':
			if len(stack) > 0 {
				if stack[len(stack)-1] {
					depth--
				}
				stack = stack[:len(stack)-1]
			}
		}
	}
	return maxDepth
}

// enforceRowCap injects the default LIMIT when the statement has none at the
// top level and clamps an explicit one down to maxRows. The masked text is
// scanned so literals cannot hide or fake a LIMIT clause.
func enforceRowCap(normalized, masked string, defaultRows, maxRows int) (string, bool) {
	_, valueStart, valueEnd, found, parseable := findTopLevelLimit(masked)
	if !found {
		return fmt.Sprintf("%s LIMIT %d", normalized, defaultRows), true
	}
	if !parseable {
		// LIMIT ALL opens the floodgates; clamp it. Anything else (bind
		// parameters, expressions) is rejected as unverifiable.
		token := strings.TrimSpace(masked[valueStart:valueEnd])
		if strings.EqualFold(token, "all") {
			return normalized[:valueStart] + strconv.Itoa(maxRows) + normalized[valueEnd:], true
		}
		return "", false
	}
	requested, err := strconv.Atoi(strings.TrimSpace(masked[valueStart:valueEnd]))
	if err != nil || requested <= 0 {
		return "", false
	}
	if requested > maxRows {
		return normalized[:valueStart] + strconv.Itoa(maxRows) + normalized[valueEnd:], true
	}
	return normalized, true
}

// findTopLevelLimit locates the value of the last LIMIT clause at paren
// depth zero. parseable reports whether the value is a plain integer.
func findTopLevelLimit(masked string) (limitIdx, valueStart, valueEnd int, found, parseable bool) {
	lowered := strings.ToLower(masked)
	depth := 0
	for i := 0; i < len(lowered); i++ {
		switch lowered[i] {
		case '(':
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
		}
		if depth != 0 || lowered[i] != 'l' {
			continue
		}
		if !strings.HasPrefix(lowered[i:], "limit") {
			continue
		}
		// require word boundaries around the keyword
		if i > 0 && isWordByte(lowered[i-1]) {
			continue
		}
		after := i + len("limit")
		if after < len(lowered) && isWordByte(lowered[after]) {
			continue
		}
		vs := after
		for vs < len(lowered) && (lowered[vs] == ' ') {
			vs++
		}
		ve := vs
		for ve < len(lowered) && isWordByte(lowered[ve]) {
			ve++
		}
		if ve == vs {
			found, parseable = true, false
			limitIdx, valueStart, valueEnd = i, vs, ve
			continue
		}
		_, err := strconv.Atoi(lowered[vs:ve])
		limitIdx, valueStart, valueEnd = i, vs, ve
		found = true
		parseable = err == nil
	}
	return
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
