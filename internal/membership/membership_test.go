package membership

import (
	"errors"
	"testing"
	"time"
)

var levels = map[string]int{
	"basic":   1,
	"premium": 2,
	"pro":     3,
}

func future() *time.Time {
	t := time.Now().Add(24 * time.Hour)
	return &t
}

func past() *time.Time {
	t := time.Now().Add(-time.Minute)
	return &t
}

func TestValidateAccess(t *testing.T) {
	tests := []struct {
		name       string
		userTier   string
		expiry     *time.Time
		required   string
		wantErr    bool
		wantActual string
	}{
		{"no requirement always allowed", "", nil, "", false, ""},
		{"no requirement allowed even expired", "premium", past(), "", false, ""},
		{"exact tier", "premium", nil, "premium", false, ""},
		{"higher tier", "pro", nil, "premium", false, ""},
		{"unexpired tier", "premium", future(), "premium", false, ""},
		{"lower tier rejected", "basic", nil, "premium", true, "basic"},
		{"no tier rejected", "", nil, "basic", true, "none"},
		{"expired tier rejected", "pro", past(), "basic", true, "none"},
		{"unknown tier rejected", "legacy-gold", nil, "basic", true, "legacy-gold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAccess(tt.userTier, tt.expiry, tt.required, levels)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("ValidateAccess() = %v, want nil", err)
				}
				return
			}

			var reqErr *RequiredError
			if !errors.As(err, &reqErr) {
				t.Fatalf("expected RequiredError, got %v", err)
			}
			if reqErr.Required != tt.required {
				t.Errorf("Required = %q, want %q", reqErr.Required, tt.required)
			}
			if reqErr.Actual != tt.wantActual {
				t.Errorf("Actual = %q, want %q", reqErr.Actual, tt.wantActual)
			}
		})
	}
}
