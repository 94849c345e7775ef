package command

import "testing"

func allTokens() []string {
	return []string{TokenGuard, TokenMode, TokenOn, TokenOff, TokenEnroll}
}

func TestMatchExact(t *testing.T) {
	t.Parallel()

	m := New()
	set := m.Match("guard mode on", allTokens())

	if !set.Has(TokenGuard, TokenMode, TokenOn) {
		t.Fatalf("expected guard/mode/on matched, got %v", set)
	}
	if set.Has(TokenOff) {
		t.Errorf("off should not match in %v", set)
	}
	for _, target := range []string{TokenGuard, TokenMode, TokenOn} {
		if set[target].Score != 1.0 {
			t.Errorf("%s: exact match score = %v, want 1.0", target, set[target].Score)
		}
	}
}

func TestMatchVariants(t *testing.T) {
	t.Parallel()

	m := New()
	tests := []struct {
		text   string
		target string
	}{
		{"card mode on", TokenGuard},
		{"god mode on", TokenGuard},
		{"yard mode on", TokenGuard},
		{"guard mod on", TokenMode},
		{"guard mood on", TokenMode},
		{"guard mode own", TokenOn},
		{"guard mode of", TokenOff},
		{"please unroll me", TokenEnroll},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			set := m.Match(tt.text, allTokens())
			if !set.Has(tt.target) {
				t.Errorf("Match(%q) missing %s: %v", tt.text, tt.target, set)
			}
		})
	}
}

func TestMatchMultiWordVariants(t *testing.T) {
	t.Parallel()

	// "enroll" arrives split across two tokens; the variant must match the
	// joined token stream, not individual tokens.
	m := New()
	tests := []struct {
		text     string
		position int
	}{
		{"please in role me", 1},
		{"and roll my friend", 0},
		{"ok, In Role. now", 1},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			set := m.Match(tt.text, allTokens())
			if !set.Has(TokenEnroll) {
				t.Fatalf("Match(%q) missing enroll: %v", tt.text, set)
			}
			hit := set[TokenEnroll]
			if hit.Position != tt.position || hit.Score != 1.0 {
				t.Errorf("hit = %+v, want position %d at score 1.0", hit, tt.position)
			}
		})
	}
}

func TestMatchHeavilyGarbled(t *testing.T) {
	t.Parallel()

	// "god mod an": every token arrives mangled yet all three command words
	// must still be recovered at the default threshold.
	m := New()
	set := m.Match("god mod an", allTokens())
	if !set.Has(TokenGuard, TokenMode, TokenOn) {
		t.Fatalf("expected guard/mode/on recovered from garbled input, got %v", set)
	}
}

func TestMatchEditSimilarity(t *testing.T) {
	t.Parallel()

	// "guand" is not in the variant table but is within edit distance 1 of
	// "guard" (ratio 0.8 > 0.65).
	m := New()
	set := m.Match("guand mode on", allTokens())
	if !set.Has(TokenGuard) {
		t.Fatalf("expected edit-similarity match for guard, got %v", set)
	}
	hit := set[TokenGuard]
	if hit.Score >= 1.0 || hit.Score < DefaultThreshold {
		t.Errorf("score = %v, want in [%v, 1.0)", hit.Score, DefaultThreshold)
	}
}

func TestMatchThreshold(t *testing.T) {
	t.Parallel()

	strict := New(WithThreshold(0.95))
	set := strict.Match("guand mode on", allTokens())
	if set.Has(TokenGuard) {
		t.Errorf("strict threshold should reject near-miss, got %v", set)
	}
	// Exact and variant matches bypass the threshold entirely.
	set = strict.Match("god mode on", allTokens())
	if !set.Has(TokenGuard, TokenMode, TokenOn) {
		t.Errorf("variant match should ignore threshold, got %v", set)
	}
}

func TestMatchPositions(t *testing.T) {
	t.Parallel()

	m := New()
	set := m.Match("hey there guard mode off now", allTokens())
	if got := set[TokenGuard].Position; got != 2 {
		t.Errorf("guard position = %d, want 2", got)
	}
	if got := set[TokenMode].Position; got != 3 {
		t.Errorf("mode position = %d, want 3", got)
	}
	if got := set[TokenOff].Position; got != 4 {
		t.Errorf("off position = %d, want 4", got)
	}
}

func TestMatchEmptyAndPunctuation(t *testing.T) {
	t.Parallel()

	m := New()
	if set := m.Match("", allTokens()); len(set) != 0 {
		t.Errorf("empty input matched %v", set)
	}
	if set := m.Match("   \t  ", allTokens()); len(set) != 0 {
		t.Errorf("blank input matched %v", set)
	}
	set := m.Match("Guard, mode... ON!", allTokens())
	if !set.Has(TokenGuard, TokenMode, TokenOn) {
		t.Errorf("punctuated input should match, got %v", set)
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"guard", "guard", 1.0},
		{"guard", "", 0.0},
		{"", "guard", 0.0},
		{"on", "xy", 0.0},
	}
	for _, tt := range tests {
		if got := similarity(tt.a, tt.b); got != tt.want {
			t.Errorf("similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
	if got := similarity("guard", "gward"); got <= 0.5 || got >= 1.0 {
		t.Errorf("similarity(guard, gward) = %v, want in (0.5, 1.0)", got)
	}
}
