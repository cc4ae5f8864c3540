package identity

import (
	"testing"
	"time"

	"dashboards/internal/domain"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestTokens_StrictlyIncreasing(t *testing.T) {
	clock := fixedClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	tokens := NewTokens(clock)

	first := tokens.Next("")
	second := tokens.Next(first)
	if !(second > first) {
		t.Fatalf("Next() = %q, want > %q", second, first)
	}

	future := "2030-01-01T00:00:00.000000Z"
	if got := tokens.Next(future); got <= future {
		t.Errorf("Next(%q) = %q, want a later token", future, got)
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2024-01-02T03:04:05Z", "2024-01-02T03:04:05.000000Z", false},
		{"2024-01-02T03:04:05.123Z", "2024-01-02T03:04:05.123000Z", false},
		{"2024-01-02T05:04:05+02:00", "2024-01-02T03:04:05.000000Z", false},
		{"yesterday", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeToken(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeToken() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeToken() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireToken(t *testing.T) {
	if _, err := RequireToken(""); err == nil || !isValidation(err) {
		t.Errorf("RequireToken(\"\") error = %v, want validation error", err)
	}
	if _, err := RequireToken("nope"); err == nil || !isValidation(err) {
		t.Errorf("RequireToken(\"nope\") error = %v, want validation error", err)
	}
}

func isValidation(err error) bool {
	_, ok := err.(*domain.ValidationError)
	return ok
}

func TestKeys(t *testing.T) {
	if got := VersionSlotKey("fam", 12).SK; got != "Version#00000012" {
		t.Errorf("VersionSlotKey SK = %q", got)
	}
	v, err := VersionFromSlotKey("Version#00000012")
	if err != nil || v != 12 {
		t.Errorf("VersionFromSlotKey() = %d, %v", v, err)
	}
	if got := IDFromKey(DashboardKey("abc").PK); got != "abc" {
		t.Errorf("IDFromKey() = %q", got)
	}
	if ForkWidgetID("w1", "d2") != ForkWidgetID("w1", "d2") {
		t.Error("ForkWidgetID must be deterministic")
	}
	if ForkWidgetID("w1", "d2") == ForkWidgetID("w1", "d3") {
		t.Error("ForkWidgetID must depend on the target draft")
	}
}
