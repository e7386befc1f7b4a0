package core

import (
	"errors"
	"testing"
)

func TestValidationError_FieldMap(t *testing.T) {
	err := &ValidationError{
		Err: errors.New("invalid submission"),
		Fields: []FieldError{
			{Field: "name", Error: "name is required"},
			{Field: "email", Error: "email is invalid"},
		},
	}

	m := err.FieldMap()
	if len(m) != 2 {
		t.Fatalf("FieldMap() has %d entries, want 2", len(m))
	}
	if m["name"] != "name is required" || m["email"] != "email is invalid" {
		t.Errorf("FieldMap() = %v", m)
	}

	bare := &ValidationError{Err: errors.New("nope")}
	if got := bare.FieldMap(); got != nil {
		t.Errorf("FieldMap() without fields = %v, want nil", got)
	}
}

func TestCleanEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{" Awa@Test.CD ", "awa@test.cd"},
		{"already@clean.cd", "already@clean.cd"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := CleanEmail(tt.in); got != tt.want {
			t.Errorf("CleanEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
