package domain

// Deck groups cards under a named category. Name is unique among non-deleted
// decks; Group is a derived classification label, never edited directly.
type Deck struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Group     string `json:"group"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Synced    bool   `json:"synced"`
	Deleted   bool   `json:"deleted"`
}

// Deck group labels.
const (
	GroupTechnology = "Technology"
	GroupManagement = "Management"
	GroupStrategy   = "Strategy"
	GroupOther      = "Other"
)

// StandardDeckNames is the fixed set of decks provisioned for every user, in
// display order. Users can add more; these always exist.
var StandardDeckNames = []string{
	"Fundamentals",
	"Computer Systems",
	"Databases",
	"Networks",
	"Security",
	"Systems Development",
	"Project Management",
	"Service Management",
	"System Strategy",
	"Business Strategy",
	"Corporate and Legal",
}

var deckGroups = map[string]string{
	"Fundamentals":        GroupTechnology,
	"Computer Systems":    GroupTechnology,
	"Databases":           GroupTechnology,
	"Networks":            GroupTechnology,
	"Security":            GroupTechnology,
	"Systems Development": GroupTechnology,
	"Project Management":  GroupManagement,
	"Service Management":  GroupManagement,
	"System Strategy":     GroupStrategy,
	"Business Strategy":   GroupStrategy,
	"Corporate and Legal": GroupStrategy,
}

// DeckGroup classifies a deck name into one of the fixed groups.
func DeckGroup(name string) string {
	if g, ok := deckGroups[name]; ok {
		return g
	}
	return GroupOther
}

// NewDeck returns a deck with its group derived from the name.
func NewDeck(id, name, now string) Deck {
	return Deck{
		ID:        id,
		Name:      name,
		Group:     DeckGroup(name),
		CreatedAt: now,
		UpdatedAt: now,
	}
}
