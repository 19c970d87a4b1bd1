package feed

// Category is a lead community the feed can be narrowed to.
type Category struct {
	ID    string
	Label string
}

// Categories are the communities offered by the feed sidebar and the
// report form, in display order.
var Categories = []Category{
	{"1", "Terrorism / Threats"},
	{"2", "Drug Rackets"},
	{"3", "Money Laundering"},
	{"4", "Corruption"},
	{"5", "Human Trafficking"},
	{"6", "Cyber Crime"},
	{"7", "Organized Crime"},
	{"8", "Missing Persons"},
	{"9", "Reward Eligible"},
	{"10", "Hotspots"},
}
