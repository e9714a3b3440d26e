package contact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/outreach-cli/internal/model"
)

func digitsOf(cs []model.Contact) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Digits)
	}
	return out
}

func TestNormalize_MobileAndLandline(t *testing.T) {
	got := Normalize("Ligue (12) 99887-7654 ou 12 3221-0000")
	assert.Equal(t, []string{"12998877654", "1232210000"}, digitsOf(got))
	for _, c := range got {
		assert.Empty(t, c.Origin)
	}
}

func TestNormalize_Cases(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace", "   \n\t", nil},
		{"no phone", "Casa com 3 quartos, 120m2", nil},
		{"country prefix", "whats +55 99887-7654", []string{"55998877654"}},
		{"country and area code too long", "whats +55 12 99887-7654", nil},
		{"bare eight digits", "fone 3221-0000", []string{"32210000"}},
		{"bare mobile", "cel 99887 7654", []string{"998877654"}},
		{"no separators", "12998877654", []string{"12998877654"}},
		{"duplicates collapse", "12 99887-7654 / (12) 99887 7654", []string{"12998877654"}},
		{"zero-prefixed area code", "(012) 3221-0000", []string{"01232210000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.in)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, digitsOf(got))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"Ligue (12) 99887-7654 ou 12 3221-0000",
		"sem telefone",
		"12 3221-0000 12 3221-0000 99887-7654",
	}
	for _, in := range inputs {
		first := Normalize(in)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, Normalize(in))
		}
	}
}

func TestNormalize_Invariants(t *testing.T) {
	text := "a 11 98888-7777 b (21) 2555-1234 c 3221-0000 d 11 98888-7777 e +55 (11) 3333-4444"
	got := Normalize(text)
	require.NotEmpty(t, got)

	seen := map[string]bool{}
	for _, c := range got {
		assert.False(t, seen[c.Digits], "duplicate %s", c.Digits)
		seen[c.Digits] = true
		assert.True(t, Valid(c.Digits), "invalid length %s", c.Digits)
	}
}

func TestMerge_ButtonPriority(t *testing.T) {
	button := Merge(nil, Normalize("12 99887-7654"), model.OriginButton)
	merged := Merge(button, Normalize("chame no 12 99887-7654 ou 12 3221-0000"), model.OriginDescription)

	require.Len(t, merged, 2)
	assert.Equal(t, model.Contact{Digits: "12998877654", Origin: model.OriginButton}, merged[0])
	assert.Equal(t, model.Contact{Digits: "1232210000", Origin: model.OriginDescription}, merged[1])
}

func TestMerge_DedupWithinFound(t *testing.T) {
	found := []model.Contact{{Digits: "32210000"}, {Digits: "32210000"}}
	merged := Merge(nil, found, model.OriginDescription)
	assert.Len(t, merged, 1)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("32210000"))
	assert.True(t, Valid("12998877654"))
	assert.False(t, Valid("1234567"))
	assert.False(t, Valid("129988776541"))
	assert.False(t, Valid("1299-887765"))
}
