package facematch

import "testing"

func TestFoldDiacritics(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jana Dvořáková", "Jana Dvorakova"},
		{"Žofie Černá", "Zofie Cerna"},
		{"Łukasz", "Łukasz"}, // stroke is not a combining mark
		{"Zoë Brontë", "Zoe Bronte"},
		{"Petr Svoboda", "Petr Svoboda"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := FoldDiacritics(tt.input)
			if result != tt.expected {
				t.Errorf("FoldDiacritics(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeStudentName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jana Dvořáková", "jana dvorakova"},
		{"JANA DVORAKOVA", "jana dvorakova"},
		{"  Žofie   Černá ", "zofie cerna"},
		{"Petr Novák-Svoboda", "petr novak svoboda"},
		{"Petr Novák - Svoboda", "petr novak svoboda"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeStudentName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeStudentName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeStudentName_NamesakesShareKey(t *testing.T) {
	registered := NormalizeStudentName("Jana Dvořáková")
	for _, typed := range []string{"jana dvorakova", "Jana  DVOŘÁKOVÁ", "jana-dvořáková"} {
		if got := NormalizeStudentName(typed); got != registered {
			t.Errorf("NormalizeStudentName(%q) = %q, want %q", typed, got, registered)
		}
	}
}
