package tokenizer

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Token
	}{
		{
			name: "simple words",
			text: "Quarterly Report",
			want: []Token{{"quarterly", 0}, {"report", 1}},
		},
		{
			name: "punctuation splits",
			text: "budget: 2024, final-draft",
			want: []Token{{"budget", 0}, {"2024", 1}, {"final", 2}, {"draft", 3}},
		},
		{
			name: "stop words and short tokens kept",
			text: "a note on the fix",
			want: []Token{{"a", 0}, {"note", 1}, {"on", 2}, {"the", 3}, {"fix", 4}},
		},
		{
			name: "empty",
			text: "  ,,  ",
			want: []Token{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokenize(tt.text)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestTerms(t *testing.T) {
	got := Terms("Alpha, beta GAMMA")
	want := []string{"alpha", "beta", "gamma"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Terms = %v, want %v", got, want)
	}
}

func TestStem(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"running", "runn"},
		{"searches", "search"},
		{"indexed", "index"},
		{"quickly", "quick"},
		{"operational", "operate"},
		{"policies", "policy"},
		{"class", "class"},
		{"dog", "dog"},
	}
	for _, tt := range tests {
		if got := Stem(tt.word); got != tt.want {
			t.Errorf("Stem(%q) = %q, want %q", tt.word, got, tt.want)
		}
	}
}

func BenchmarkTokenize(b *testing.B) {
	text := "The orchestrator coordinates one search at a time across every " +
		"document in the library, aggregating match weights per item."
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	for i := 0; i < b.N; i++ {
		_ = Tokenize(text)
	}
}
