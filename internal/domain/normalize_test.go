package domain

import "testing"

func TestNormalizePhoneVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "canonical", in: "+79161234567", want: "+79161234567"},
		{name: "leading 8", in: "89161234567", want: "+79161234567"},
		{name: "bare 10 digits", in: "9161234567", want: "+79161234567"},
		{name: "spaces and dashes", in: "8 (916) 123-45-67", want: "+79161234567"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.in)
			if err != nil {
				t.Fatalf("NormalizePhone(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizePhoneInvalid(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "12345", "+1 202 555 0100 000"} {
		if _, err := NormalizePhone(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()
	if got := NormalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Fatalf("unexpected result: %q", got)
	}
	if got := NormalizeEmail(""); got != "" {
		t.Fatalf("empty input should stay empty, got %q", got)
	}
}

func TestTaskStatusValid(t *testing.T) {
	t.Parallel()
	for _, s := range []TaskStatus{TaskActive, TaskPaused, TaskCompleted, TaskError} {
		if !s.Valid() {
			t.Fatalf("%s should be valid", s)
		}
	}
	if TaskStatus("running").Valid() {
		t.Fatal("unknown status should be invalid")
	}
}
