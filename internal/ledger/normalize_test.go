package ledger

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"Verificação", "verificacao"},
		{"  Verificação  ", "verificacao"},
		{"Reunião   de    Planejamento", "reuniao de planejamento"},
		{"DAILY Stand-up", "daily stand-up"},
		{"já normalizado", "ja normalizado"},
		{"çãõéíü", "caoeiu"},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"Verificação de Deploy", "  a  b  ", "UPPER case"}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}
