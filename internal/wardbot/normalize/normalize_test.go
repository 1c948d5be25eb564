package normalize

import "testing"

func TestTextToken(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "casino", "casino"},
		{"uppercase folds", "CASINO", "casino"},
		{"digit plus evasion", "1+bet", "1plusbet"},
		{"apostrophe stripped", "don't", "dont"},
		{"multiple runs joined", "ca-si-no", "casino"},
		{"trims whitespace", "  casino  ", "casino"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Word(tc.in, true); got != tc.want {
				t.Errorf("Word(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTextPhrasePreservesBoundaries(t *testing.T) {
	got := Text("Free   Money!!", true, Phrase)
	want := "free money"
	if got != want {
		t.Fatalf("Text(..., Phrase) = %q, want %q", got, want)
	}
}

func TestIdempotent(t *testing.T) {
	inputs := []string{"Come to CASINO!", "1+bet evasion", "don't do it", "Free Money"}
	for _, in := range inputs {
		once := Text(in, true, Phrase)
		twice := Text(once, true, Phrase)
		if once != twice {
			t.Errorf("norm(norm(%q)) = %q, want %q (idempotence, P2)", in, twice, once)
		}
	}
}

func TestCaseFoldDisabled(t *testing.T) {
	if got := Word("CASINO", false); got != "CASINO" {
		t.Fatalf("Word with caseFold=false changed case: %q", got)
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Come to CASINO!", true)
	want := []string{"come", "to", "casino"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize length = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Tokenize[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
