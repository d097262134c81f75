package reference

import "github.com/shopspring/decimal"

// Locale selects the display language of reference names.
type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleHindi   Locale = "hi"
)

// ParseLocale maps a request parameter to a supported locale, defaulting to English.
func ParseLocale(s string) Locale {
	if Locale(s) == LocaleHindi {
		return LocaleHindi
	}
	return LocaleEnglish
}

// Names holds the bilingual display name of a reference item.
type Names struct {
	En string `json:"en"`
	Hi string `json:"hi"`
}

// In returns the name for the locale.
func (n Names) In(l Locale) string {
	if l == LocaleHindi && n.Hi != "" {
		return n.Hi
	}
	return n.En
}

// Item is an immutable lookup entry identified by a short code. Factor is the
// multiplier (or bonus, or premium) the item contributes; 1 when not relevant.
type Item struct {
	Code   string          `json:"code"`
	Names  Names           `json:"names"`
	Factor decimal.Decimal `json:"factor"`
}

// Region is an administrative region with a centroid used for distance filtering.
type Region struct {
	Code  string  `json:"code"`
	Names Names   `json:"names"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

// Table is an ordered set of items. The first item is the default entry.
type Table struct {
	items []Item
	index map[string]int
}

func newTable(items ...Item) Table {
	t := Table{items: items, index: make(map[string]int, len(items))}
	for i, it := range items {
		t.index[it.Code] = i
	}
	return t
}

// Lookup returns the item for code.
func (t Table) Lookup(code string) (Item, bool) {
	i, ok := t.index[code]
	if !ok {
		return Item{}, false
	}
	return t.items[i], true
}

// LookupOrDefault returns the item for code, or the table default for unknown codes.
func (t Table) LookupOrDefault(code string) Item {
	if it, ok := t.Lookup(code); ok {
		return it
	}
	return t.items[0]
}

// Items returns a copy of the table contents in display order.
func (t Table) Items() []Item {
	out := make([]Item, len(t.items))
	copy(out, t.items)
	return out
}

// Tables is the full reference data set.
type Tables struct {
	CreditTypes       Table
	Crops             Table
	Soils             Table
	Practices         Table
	ResidueMethods    Table
	IrrigationMethods Table

	regions     []Region
	regionIndex map[string]int
}

// Region returns the region with the given code.
func (t *Tables) Region(code string) (Region, bool) {
	i, ok := t.regionIndex[code]
	if !ok {
		return Region{}, false
	}
	return t.regions[i], true
}

// Regions returns all regions in display order.
func (t *Tables) Regions() []Region {
	out := make([]Region, len(t.regions))
	copy(out, t.regions)
	return out
}

func item(code, en, hi, factor string) Item {
	return Item{Code: code, Names: Names{En: en, Hi: hi}, Factor: decimal.RequireFromString(factor)}
}

var defaults = buildDefaults()

// Default returns the process-wide reference tables. They are built once and never mutated.
func Default() *Tables {
	return defaults
}

func buildDefaults() *Tables {
	regions := []Region{
		{Code: "PB", Names: Names{En: "Punjab", Hi: "पंजाब"}, Lat: 31.1471, Lng: 75.3412},
		{Code: "HR", Names: Names{En: "Haryana", Hi: "हरियाणा"}, Lat: 29.0588, Lng: 76.0856},
		{Code: "UP", Names: Names{En: "Uttar Pradesh", Hi: "उत्तर प्रदेश"}, Lat: 26.8467, Lng: 80.9462},
		{Code: "MP", Names: Names{En: "Madhya Pradesh", Hi: "मध्य प्रदेश"}, Lat: 22.9734, Lng: 78.6569},
		{Code: "MH", Names: Names{En: "Maharashtra", Hi: "महाराष्ट्र"}, Lat: 19.7515, Lng: 75.7139},
		{Code: "RJ", Names: Names{En: "Rajasthan", Hi: "राजस्थान"}, Lat: 27.0238, Lng: 74.2179},
		{Code: "GJ", Names: Names{En: "Gujarat", Hi: "गुजरात"}, Lat: 22.2587, Lng: 71.1924},
		{Code: "KA", Names: Names{En: "Karnataka", Hi: "कर्नाटक"}, Lat: 15.3173, Lng: 75.7139},
	}
	idx := make(map[string]int, len(regions))
	for i, r := range regions {
		idx[r.Code] = i
	}

	return &Tables{
		CreditTypes: newTable(
			item("verra", "Verra VCS", "वेर्रा VCS", "1.0"),
			item("gold", "Gold Standard", "गोल्ड स्टैंडर्ड", "1.15"),
			item("cdm", "CDM Credits", "CDM क्रेडिट", "0.95"),
			item("india", "India VCS", "इंडिया VCS", "0.9"),
		),
		Crops: newTable(
			item("rice", "Rice (Paddy)", "धान", "1.2"),
			item("wheat", "Wheat", "गेहूं", "1.0"),
			item("cotton", "Cotton", "कपास", "0.9"),
			item("sugarcane", "Sugarcane", "गन्ना", "1.5"),
			item("maize", "Maize", "मक्का", "1.1"),
			item("soybean", "Soybean", "सोयाबीन", "1.3"),
			item("pulses", "Pulses", "दालें", "1.4"),
			item("vegetables", "Vegetables", "सब्जियां", "0.8"),
		),
		Soils: newTable(
			item("alluvial", "Alluvial", "जलोढ़", "1.1"),
			item("black", "Black Soil", "काली मिट्टी", "1.2"),
			item("red", "Red Soil", "लाल मिट्टी", "0.9"),
			item("laterite", "Laterite", "लैटेराइट", "0.85"),
			item("loam", "Loam", "दोमट", "1.0"),
		),
		Practices: newTable(
			item("organic", "Organic Farming", "जैविक खेती", "1.5"),
			item("zero_till", "Zero Tillage", "शून्य जुताई", "1.3"),
			item("crop_rotation", "Crop Rotation", "फसल चक्र", "1.2"),
			item("cover_crops", "Cover Crops", "आवरण फसलें", "1.25"),
			item("mulching", "Mulching", "मल्चिंग", "1.15"),
			item("composting", "Composting", "खाद बनाना", "1.2"),
		),
		ResidueMethods: newTable(
			item("no_burn", "No Burning", "कोई जलना नहीं", "1.5"),
			item("incorporation", "Soil Incorporation", "मिट्टी में मिलाना", "1.3"),
			item("composting", "Composting", "खाद बनाना", "1.2"),
			item("burning", "Burning", "जलाना", "0.5"),
		),
		IrrigationMethods: newTable(
			item("drip", "Drip Irrigation", "ड्रिप सिंचाई", "1.3"),
			item("sprinkler", "Sprinkler", "स्प्रिंकलर", "1.2"),
			item("canal", "Canal Irrigation", "नहर सिंचाई", "1.0"),
			item("tubewell", "Tube Well", "ट्यूबवेल", "0.9"),
			item("rain", "Rain-fed", "वर्षा आधारित", "1.4"),
		),
		regions:     regions,
		regionIndex: idx,
	}
}
