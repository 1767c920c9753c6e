// Package species holds the small registry of pet species used for
// flavor in alerts and advice prompts.
package species

// Species defines a pet species and its flavor strings.
type Species struct {
	ID          string
	Name        string
	Emoji       string
	Personality string // injected into advice prompts

	// Flavored verbs for alert templates
	HungryCry  string
	DirtyCry   string
	TiredCry   string
	HappyNoise string
}

// Registry holds all available species keyed by ID.
var Registry = map[string]*Species{
	"gecko":  gecko,
	"pup":    pup,
	"kitten": kitten,
	"drake":  drake,
}

// OrderedIDs defines display order for species selection.
var OrderedIDs = []string{"gecko", "pup", "kitten", "drake"}

// Get returns the species for id, falling back to the gecko.
func Get(id string) *Species {
	if sp, ok := Registry[id]; ok {
		return sp
	}
	return gecko
}

var gecko = &Species{
	ID:          "gecko",
	Name:        "Gecko",
	Emoji:       "\U0001F98E",
	Personality: "You are a laid-back gecko who loves warm spots and quiet company. You speak in short, mellow sentences.",
	HungryCry:   "flicks its tongue at an empty bowl",
	DirtyCry:    "sheds unhappily",
	TiredCry:    "droops on its branch",
	HappyNoise:  "does a little tail wiggle",
}

var pup = &Species{
	ID:          "pup",
	Name:        "Pup",
	Emoji:       "\U0001F436",
	Personality: "You are an endlessly enthusiastic puppy. Everything is the best thing that ever happened.",
	HungryCry:   "nudges the food bag across the floor",
	DirtyCry:    "leaves muddy pawprints everywhere",
	TiredCry:    "flops over mid-zoomies",
	HappyNoise:  "wags so hard its whole body wiggles",
}

var kitten = &Species{
	ID:          "kitten",
	Name:        "Kitten",
	Emoji:       "\U0001F431",
	Personality: "You are a kitten with great dignity and terrible impulse control. You pretend not to care but obviously do.",
	HungryCry:   "yells at the cupboard",
	DirtyCry:    "grooms pointedly in your direction",
	TiredCry:    "falls asleep sitting up",
	HappyNoise:  "purrs like a tiny engine",
}

var drake = &Species{
	ID:          "drake",
	Name:        "Drake",
	Emoji:       "\U0001F409",
	Personality: "You are a very small dragon with a very large opinion of yourself. You hoard shiny pebbles.",
	HungryCry:   "breathes a sad puff of smoke",
	DirtyCry:    "complains about soot on its scales",
	TiredCry:    "curls around its pebble hoard",
	HappyNoise:  "rumbles contentedly",
}
