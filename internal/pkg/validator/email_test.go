package validator

import "testing"

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Jane.Doe@Example.COM "); got != "jane.doe@example.com" {
		t.Errorf("Expected jane.doe@example.com, got %q", got)
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"jane@example.com", "j.doe+alumni@school.edu", "a@b.co"}
	for _, email := range valid {
		if err := ValidateEmail(email); err != nil {
			t.Errorf("Expected %q to be valid: %v", email, err)
		}
	}

	invalid := []string{"", "not-an-email", "@example.com", "jane@", "jane@localhost"}
	for _, email := range invalid {
		if err := ValidateEmail(email); err == nil {
			t.Errorf("Expected %q to be invalid", email)
		}
	}
}
