package variation

// DefaultRules returns the built-in table. Named collector dials come first,
// then materials, then dial colours and bezels.
func DefaultRules() []Rule {
	return []Rule{
		{Tag: "tiffany", Positives: []string{"tiffany", "tiffany & co", "tiffany dial"}, DialType: "Tiffany", SpecialEdition: "Tiffany & Co"},
		{Tag: "tropical", Positives: []string{"tropical", "tropical dial", "brown dial"}, DialType: "Tropical", SpecialEdition: "Tropical Dial"},
		{Tag: "spider", Positives: []string{"spider", "spider dial", "cracked dial"}, DialType: "Spider", SpecialEdition: "Spider Dial"},
		{Tag: "sigma", Positives: []string{"sigma", "sigma dial"}, DialType: "Sigma", SpecialEdition: "Sigma Dial"},
		{Tag: "comex", Positives: []string{"comex", "comex dial"}, DialType: "COMEX", SpecialEdition: "COMEX"},
		{Tag: "dominos", Positives: []string{"domino", "domino's", "dominos"}, DialType: "Dominos", SpecialEdition: "Domino's Pizza"},
		{Tag: "military", Positives: []string{"military", "mil-sub", "milsub"}, DialType: "Military", SpecialEdition: "Military Submariner"},
		{Tag: "kermit", Positives: []string{"kermit", "green bezel"}, DialType: "Kermit", SpecialEdition: "Kermit (Green Bezel)"},
		{Tag: "hulk", Positives: []string{"hulk", "green dial"}, DialType: "Hulk", SpecialEdition: "Hulk (Green Dial)"},
		{
			Tag:            "gold",
			Positives:      []string{"yellow gold", "gold", "18k gold", "yellow-gold"},
			Negatives:      []string{"two tone", "two-tone", "steel gold", "steel-gold", "steel & gold", "steel and gold", "gold buckle"},
			DialType:       "Gold",
			SpecialEdition: "Yellow Gold",
		},
		{Tag: "twotone", Positives: []string{"two tone", "two-tone", "steel gold", "steel-gold", "steel & gold", "steel and gold"}, DialType: "Two-Tone", SpecialEdition: "Steel & Gold"},
		{Tag: "blue", Positives: []string{"blue dial", "blue-dial", "blue face"}, DialType: "Blue", SpecialEdition: "Blue Dial"},
		{Tag: "white", Positives: []string{"white dial", "white-dial", "white face", "white submariner", "white-submariner"}, DialType: "White", SpecialEdition: "White Dial"},
		{Tag: "red", Positives: []string{"red writing", "red-writing", "red text", "red submariner"}, DialType: "Red Writing", SpecialEdition: "Red Writing"},
		{Tag: "silver", Positives: []string{"silver dial", "silver-dial", "silver face"}, DialType: "Silver", SpecialEdition: "Silver Dial"},
		{Tag: "bluebezel", Positives: []string{"blue bezel", "blue-bezel"}, DialType: "Blue Bezel", SpecialEdition: "Blue Bezel"},
		{Tag: "greenbezel", Positives: []string{"green bezel", "green-bezel"}, DialType: "Green Bezel", SpecialEdition: "Green Bezel"},
		{Tag: "blackbezel", Positives: []string{"black bezel", "black-bezel"}, DialType: "Black Bezel", SpecialEdition: "Black Bezel"},
		{Tag: "serti", Positives: []string{"slate serti", "slate-serti", "serti"}, DialType: "Serti", SpecialEdition: "Slate Serti"},
		{Tag: "champagne", Positives: []string{"champagne dial", "champagne-dial", "champagne face"}, DialType: "Champagne", SpecialEdition: "Champagne Dial"},
	}
}

// DefaultRuleSet is the validated built-in table.
func DefaultRuleSet() *RuleSet {
	return MustRuleSet(DefaultRules())
}
