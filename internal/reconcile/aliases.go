package reconcile

import "strings"

// Catalog is the set of replacement adapter ids the platform ships.
var Catalog = []string{
	"admob",
	"applovin",
	"ironsource",
	"unity",
	"meta",
	"vungle",
	"chartboost",
	"fyber",
	"appodeal",
	"admost",
	"moloco",
	"tapdaq",
}

// aliasTable maps normalized incumbent network spellings, as seen in
// waterfall exports, to catalog adapter ids. Keys must already be in
// Normalize form.
var aliasTable = map[string]string{
	"admob":                   "admob",
	"googleadmob":             "admob",
	"google":                  "admob",
	"applovin":                "applovin",
	"applovinmax":             "applovin",
	"max":                     "applovin",
	"ironsource":              "ironsource",
	"ironsrc":                 "ironsource",
	"is":                      "ironsource",
	"unity":                   "unity",
	"unityads":                "unity",
	"meta":                    "meta",
	"metaaudiencenetwork":     "meta",
	"facebook":                "meta",
	"facebookaudiencenetwork": "meta",
	"fan":                     "meta",
	"vungle":                  "vungle",
	"liftoff":                 "vungle",
	"liftoffmonetize":         "vungle",
	"chartboost":              "chartboost",
	"fyber":                   "fyber",
	"digitalturbine":          "fyber",
	"dtexchange":              "fyber",
	"appodeal":                "appodeal",
	"admost":                  "admost",
	"moloco":                  "moloco",
	"tapdaq":                  "tapdaq",
	"chocolate":               "tapdaq",
}

// Normalize collapses an incumbent network name to its comparison form:
// lowercase with everything except letters and digits removed.
func Normalize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LookupAlias resolves a network name through the alias table. The second
// return reports whether the name resolved.
func LookupAlias(name string) (string, bool) {
	adapter, ok := aliasTable[Normalize(name)]
	return adapter, ok
}
