package fleet

import (
	"errors"
	"testing"
)

func validSpec() Spec {
	return Spec{
		Size:     2,
		BaseName: "nuc",
		BaseDir:  "/opt/runner",
		Labels:   []string{"linux", "x64"},
		Repo:     "acme/widgets",
		Token:    "tok",
	}
}

func TestValidateAcceptsGoodSpec(t *testing.T) {
	if err := validSpec().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Spec)
	}{
		{"zero size", func(s *Spec) { s.Size = 0 }},
		{"negative size", func(s *Spec) { s.Size = -3 }},
		{"empty name", func(s *Spec) { s.BaseName = "" }},
		{"name with slash", func(s *Spec) { s.BaseName = "a/b" }},
		{"name with space", func(s *Spec) { s.BaseName = "a b" }},
		{"empty dir", func(s *Spec) { s.BaseDir = "" }},
		{"empty repo", func(s *Spec) { s.Repo = "" }},
		{"empty token", func(s *Spec) { s.Token = "" }},
		{"bad label", func(s *Spec) { s.Labels = []string{"ok", "not ok"} }},
	}
	for _, tc := range cases {
		s := validSpec()
		tc.mutate(&s)
		err := s.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		var verr ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected ValidationError, got %T", tc.name, err)
		}
	}
}
