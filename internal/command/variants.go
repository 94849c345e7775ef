package command

// defaultVariants maps command tokens to transcription mistakes observed in
// the field with small local speech models. Variants match both as whole
// tokens and as substrings of longer tokens.
func defaultVariants() map[string][]string {
	return map[string][]string{
		TokenGuard: {
			"card", "god", "gard", "yard", "gored",
			"garde", "guards", "hard", "guarded",
		},
		TokenMode: {
			"mod", "mood", "mowed", "moat", "mote", "note", "node", "road",
		},
		TokenOn: {
			"own", "an", "un", "in",
		},
		TokenOff: {
			"of", "oof", "offf", "of's",
		},
		TokenEnroll: {
			"enrol", "unroll", "in role", "and roll", "enrole", "enrolled",
		},
	}
}
