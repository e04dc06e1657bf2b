package repository

import "testing"

func TestLikeOperatorByDialect(t *testing.T) {
	if got := likeOperatorByDialect("postgres"); got != "ILIKE" {
		t.Fatalf("postgres like operator want ILIKE got %s", got)
	}
	if got := likeOperatorByDialect(" PostgreSQL "); got != "ILIKE" {
		t.Fatalf("postgresql like operator want ILIKE got %s", got)
	}
	if got := likeOperatorByDialect("sqlite"); got != "LIKE" {
		t.Fatalf("sqlite like operator want LIKE got %s", got)
	}
	if got := likeOperator(nil); got != "LIKE" {
		t.Fatalf("nil db should fall back to sqlite LIKE, got %s", got)
	}
}

func TestKeywordCondition(t *testing.T) {
	cond, args := keywordCondition(nil, " 50%_off ", "name", "referral_code")
	want := `(name LIKE ? ESCAPE '\' OR referral_code LIKE ? ESCAPE '\')`
	if cond != want {
		t.Fatalf("unexpected condition: %s", cond)
	}
	if len(args) != 2 || args[0] != `%50\%\_off%` {
		t.Fatalf("unexpected args: %v", args)
	}
	if cond, args := keywordCondition(nil, "   ", "name"); cond != "" || args != nil {
		t.Fatalf("blank keyword should produce no condition")
	}
}
