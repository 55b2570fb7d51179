// File path: internal/validator/validator_test.go
package validator

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newStaticValidator() *Validator {
	return New(Config{}, nil)
}

func hasViolation(verdict Verdict, code ViolationCode) bool {
	for _, v := range verdict.Violations {
		if v == code {
			return true
		}
	}
	return false
}

func TestValidateAcceptsPlainSelect(t *testing.T) {
	v := newStaticValidator()
	verdict := v.Validate(context.Background(), "SELECT id, full_name FROM patients WHERE id = 42")
	if !verdict.Accepted {
		t.Fatalf("expected acceptance, got violations %v", verdict.Violations)
	}
	if verdict.RuleVersion != RuleVersion {
		t.Fatalf("verdict missing rule version: %+v", verdict)
	}
	if !strings.HasSuffix(verdict.NormalizedQuery, "LIMIT 100") {
		t.Fatalf("default row cap not injected: %q", verdict.NormalizedQuery)
	}
}

func TestValidateRejectsWrites(t *testing.T) {
	v := newStaticValidator()
	for _, query := range []string{
		"UPDATE patients SET full_name = 'x' WHERE id = 1",
		"DELETE FROM reports",
		"INSERT INTO lab_tests (id) VALUES (1)",
		"DROP TABLE patients",
		"TRUNCATE reports",
	} {
		verdict := v.Validate(context.Background(), query)
		if verdict.Accepted {
			t.Fatalf("write statement accepted: %q", query)
		}
		if !hasViolation(verdict, ViolationForbiddenKeyword) {
			t.Fatalf("%q: expected FORBIDDEN_KEYWORD, got %v", query, verdict.Violations)
		}
		if !hasViolation(verdict, ViolationNotASelect) {
			t.Fatalf("%q: expected NOT_A_SELECT, got %v", query, verdict.Violations)
		}
	}
}

func TestValidateAccumulatesAllViolations(t *testing.T) {
	v := newStaticValidator()
	verdict := v.Validate(context.Background(),
		"DELETE FROM patients; SELECT pg_sleep(10) FOR UPDATE")
	if verdict.Accepted {
		t.Fatal("expected rejection")
	}
	for _, want := range []ViolationCode{
		ViolationNotASelect,
		ViolationForbiddenKeyword,
		ViolationMultiStatement,
		ViolationVolatileFunction,
		ViolationLockingClause,
	} {
		if !hasViolation(verdict, want) {
			t.Fatalf("missing %s in %v", want, verdict.Violations)
		}
	}
}

func TestValidateIgnoresKeywordsInsideStrings(t *testing.T) {
	v := newStaticValidator()
	verdict := v.Validate(context.Background(),
		"SELECT id FROM reports WHERE body = 'please delete; drop table'")
	if !verdict.Accepted {
		t.Fatalf("quoted keywords triggered rejection: %v", verdict.Violations)
	}
}

func TestValidateStripsComments(t *testing.T) {
	v := newStaticValidator()
	verdict := v.Validate(context.Background(),
		"SELECT id -- trailing note\nFROM patients /* block /* nested */ comment */ WHERE id = 1")
	if !verdict.Accepted {
		t.Fatalf("commented query rejected: %v", verdict.Violations)
	}
	if strings.Contains(verdict.NormalizedQuery, "--") || strings.Contains(verdict.NormalizedQuery, "/*") {
		t.Fatalf("comments survived normalization: %q", verdict.NormalizedQuery)
	}
}

func TestValidateRejectsCommentedMutation(t *testing.T) {
	v := newStaticValidator()
	// The comment hides nothing: stripping happens before keyword scanning.
	verdict := v.Validate(context.Background(), "/* harmless */ DELETE FROM patients")
	if verdict.Accepted {
		t.Fatal("mutation behind a comment was accepted")
	}
}

func TestValidateEmptyQuery(t *testing.T) {
	v := newStaticValidator()
	for _, query := range []string{"", "   ", "-- only a comment", "/* nothing */"} {
		verdict := v.Validate(context.Background(), query)
		if verdict.Accepted || !hasViolation(verdict, ViolationEmptyQuery) {
			t.Fatalf("%q: expected EMPTY_QUERY, got %+v", query, verdict)
		}
	}
}

func TestRowCapClampsExplicitLimit(t *testing.T) {
	v := New(Config{MaxRows: 500, DefaultRows: 100}, nil)
	verdict := v.Validate(context.Background(), "SELECT id FROM patients LIMIT 100000")
	if !verdict.Accepted {
		t.Fatalf("expected acceptance, got %v", verdict.Violations)
	}
	if !strings.HasSuffix(verdict.NormalizedQuery, "LIMIT 500") {
		t.Fatalf("oversized LIMIT not clamped: %q", verdict.NormalizedQuery)
	}
}

func TestRowCapKeepsSmallLimit(t *testing.T) {
	v := newStaticValidator()
	verdict := v.Validate(context.Background(), "SELECT id FROM patients LIMIT 5")
	if !verdict.Accepted || !strings.HasSuffix(verdict.NormalizedQuery, "LIMIT 5") {
		t.Fatalf("small LIMIT mangled: %+v", verdict)
	}
}

func TestRowCapClampsLimitAll(t *testing.T) {
	v := New(Config{MaxRows: 500, DefaultRows: 100}, nil)
	verdict := v.Validate(context.Background(), "SELECT id FROM patients LIMIT ALL")
	if !verdict.Accepted {
		t.Fatalf("LIMIT ALL rejected outright: %v", verdict.Violations)
	}
	if !strings.HasSuffix(verdict.NormalizedQuery, "LIMIT 500") {
		t.Fatalf("LIMIT ALL not clamped: %q", verdict.NormalizedQuery)
	}
}

func TestRowCapRejectsUnverifiableLimit(t *testing.T) {
	v := newStaticValidator()
	verdict := v.Validate(context.Background(), "SELECT id FROM patients LIMIT $1")
	if verdict.Accepted || !hasViolation(verdict, ViolationRowCapInvalid) {
		t.Fatalf("expected ROW_CAP_INVALID, got %+v", verdict)
	}
}

func TestRowCapIgnoresNestedLimit(t *testing.T) {
	v := newStaticValidator()
	verdict := v.Validate(context.Background(),
		"SELECT * FROM (SELECT id FROM patients LIMIT 3) sub")
	if !verdict.Accepted {
		t.Fatalf("nested LIMIT confused the cap: %v", verdict.Violations)
	}
	// The inner LIMIT is not top-level, so the default cap is appended.
	if !strings.HasSuffix(verdict.NormalizedQuery, "LIMIT 100") {
		t.Fatalf("default cap missing: %q", verdict.NormalizedQuery)
	}
}

func TestValidateIsIdempotentOnAcceptedQueries(t *testing.T) {
	v := newStaticValidator()
	first := v.Validate(context.Background(), "select  id ,\n full_name from   patients")
	if !first.Accepted {
		t.Fatalf("expected acceptance, got %v", first.Violations)
	}
	second := v.Validate(context.Background(), first.NormalizedQuery)
	if !second.Accepted {
		t.Fatalf("re-validating an accepted query failed: %v", second.Violations)
	}
	if second.NormalizedQuery != first.NormalizedQuery {
		t.Fatalf("normalization not idempotent:\n%q\n%q", first.NormalizedQuery, second.NormalizedQuery)
	}
}

func TestComplexityCeilings(t *testing.T) {
	v := New(Config{MaxJoins: 1, MaxSubqueryDepth: 1, MaxAggregates: 1}, nil)

	verdict := v.Validate(context.Background(),
		"SELECT p.id FROM patients p JOIN reports r ON r.patient_id = p.id JOIN lab_tests l ON l.patient_id = p.id")
	if !hasViolation(verdict, ViolationTooManyJoins) {
		t.Fatalf("expected TOO_MANY_JOINS, got %+v", verdict)
	}

	verdict = v.Validate(context.Background(),
		"SELECT id FROM patients WHERE id IN (SELECT patient_id FROM reports WHERE id IN (SELECT 1))")
	if !hasViolation(verdict, ViolationSubqueryTooDeep) {
		t.Fatalf("expected SUBQUERY_TOO_DEEP, got %+v", verdict)
	}

	verdict = v.Validate(context.Background(),
		"SELECT count(*), avg(result_value) FROM lab_tests")
	if !hasViolation(verdict, ViolationTooManyAggs) {
		t.Fatalf("expected TOO_MANY_AGGREGATES, got %+v", verdict)
	}
}

func TestWithMaxRowsLowersTheCap(t *testing.T) {
	v := New(Config{MaxRows: 500, DefaultRows: 100}, nil)
	verdict := v.Validate(context.Background(), "SELECT id FROM patients LIMIT 50", WithMaxRows(20))
	if !verdict.Accepted {
		t.Fatalf("expected acceptance, got %v", verdict.Violations)
	}
	if !strings.HasSuffix(verdict.NormalizedQuery, "LIMIT 20") {
		t.Fatalf("per-call cap not applied: %q", verdict.NormalizedQuery)
	}

	// Raising past the configured maximum is ignored.
	verdict = v.Validate(context.Background(), "SELECT id FROM patients LIMIT 9000", WithMaxRows(10000))
	if !strings.HasSuffix(verdict.NormalizedQuery, "LIMIT 500") {
		t.Fatalf("per-call cap raised the configured maximum: %q", verdict.NormalizedQuery)
	}
}

type fakePlanRunner struct {
	plan string
	err  error
}

func (f *fakePlanRunner) ExplainJSON(ctx context.Context, query string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.plan, nil
}

const seqScanPlan = `[{"Plan": {"Node Type": "Limit", "Plans": [{"Node Type": "Seq Scan", "Relation Name": "patients"}]}}]`

const modifyPlan = `[{"Plan": {"Node Type": "ModifyTable", "Operation": "Update", "Relation Name": "patients"}}]`

func TestPlanCheckAcceptsReadOnlyPlan(t *testing.T) {
	v := New(Config{}, &fakePlanRunner{plan: seqScanPlan})
	verdict := v.Validate(context.Background(), "SELECT id FROM patients")
	if !verdict.Accepted {
		t.Fatalf("read-only plan rejected: %v", verdict.Violations)
	}
}

func TestPlanCheckRejectsMutatingPlan(t *testing.T) {
	v := New(Config{}, &fakePlanRunner{plan: modifyPlan})
	verdict := v.Validate(context.Background(), "SELECT id FROM patients")
	if verdict.Accepted || !hasViolation(verdict, ViolationPlanNotReadOnly) {
		t.Fatalf("expected PLAN_NOT_READ_ONLY, got %+v", verdict)
	}
}

func TestPlanCheckFailsClosedOnGarbage(t *testing.T) {
	v := New(Config{}, &fakePlanRunner{plan: "not json"})
	verdict := v.Validate(context.Background(), "SELECT id FROM patients")
	if verdict.Accepted || !hasViolation(verdict, ViolationPlanNotReadOnly) {
		t.Fatalf("unparsable plan must fail closed, got %+v", verdict)
	}
}

func TestPlanCheckClassifiesErrors(t *testing.T) {
	v := New(Config{}, &fakePlanRunner{err: errors.New("syntax error at or near")})
	verdict := v.Validate(context.Background(), "SELECT id FROM patients")
	if verdict.Accepted || !hasViolation(verdict, ViolationPlanCheckFailed) {
		t.Fatalf("expected PLAN_CHECK_FAILED, got %+v", verdict)
	}

	v = New(Config{}, &fakePlanRunner{err: context.DeadlineExceeded})
	verdict = v.Validate(context.Background(), "SELECT id FROM patients")
	if verdict.Accepted || !hasViolation(verdict, ViolationPlanTimeout) {
		t.Fatalf("expected PLAN_TIMEOUT, got %+v", verdict)
	}
}

func TestPlanCheckSkippedAfterStaticRejection(t *testing.T) {
	runner := &fakePlanRunner{plan: seqScanPlan}
	v := New(Config{}, &countingRunner{inner: runner})
	verdict := v.Validate(context.Background(), "DELETE FROM patients")
	if verdict.Accepted {
		t.Fatal("expected static rejection")
	}
	if cr, ok := v.plan.(*countingRunner); ok && cr.calls != 0 {
		t.Fatalf("plan runner reached after static rejection (%d calls)", cr.calls)
	}
}

type countingRunner struct {
	inner *fakePlanRunner
	calls int
}

func (c *countingRunner) ExplainJSON(ctx context.Context, query string) (string, error) {
	c.calls++
	return c.inner.ExplainJSON(ctx, query)
}
