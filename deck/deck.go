package deck

import "fmt"

// ID identifies one of the built-in decks a seat can bring to a match.
type ID byte

const (
	DeckStreetLife ID = iota
	DeckWildNature
	DeckNightCity
	DeckOldMemories
	deckCount
)

func (id ID) String() string {
	if name, ok := deckNames[id]; ok {
		return name
	}
	return fmt.Sprintf("deck_%d", byte(id))
}

var deckNames = map[ID]string{
	DeckStreetLife:  "street_life",
	DeckWildNature:  "wild_nature",
	DeckNightCity:   "night_city",
	DeckOldMemories: "old_memories",
}

// Valid reports whether id refers to a known deck.
func (id ID) Valid() bool {
	return id < deckCount
}

// Parse maps a deck name back to its ID.
func Parse(name string) (ID, error) {
	for id, n := range deckNames {
		if n == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown deck %q", name)
}

// IDs returns every known deck id in catalog order.
func IDs() []ID {
	out := make([]ID, 0, deckCount)
	for id := ID(0); id < deckCount; id++ {
		out = append(out, id)
	}
	return out
}
