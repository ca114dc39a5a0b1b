package deck

import "fmt"

// CardsPerDeck is fixed: every deck ships the same hand size so neither seat
// starts with a material advantage.
const CardsPerDeck = 20

// Card is one playable entry of a deck. Subject is the human-readable label
// fed to the scoring oracle as context; ImageRef points at the client-side
// asset and is opaque to the server.
type Card struct {
	ActionID int
	Subject  string
	ImageRef string
}

// Catalog resolves deck contents. The server only ever needs subjects and
// image refs; rendering is entirely client-side.
type Catalog struct {
	cards map[ID][]Card
}

// NewCatalog builds the built-in catalog.
func NewCatalog() *Catalog {
	c := &Catalog{cards: make(map[ID][]Card, deckCount)}
	for id, subjects := range deckSubjects {
		cards := make([]Card, 0, len(subjects))
		for i, subject := range subjects {
			cards = append(cards, Card{
				ActionID: i,
				Subject:  subject,
				ImageRef: fmt.Sprintf("decks/%s/%02d.png", id, i),
			})
		}
		c.cards[id] = cards
	}
	return c
}

// Card returns the card for actionID in the given deck.
func (c *Catalog) Card(id ID, actionID int) (Card, error) {
	cards, ok := c.cards[id]
	if !ok {
		return Card{}, fmt.Errorf("unknown deck %d", id)
	}
	if actionID < 0 || actionID >= len(cards) {
		return Card{}, fmt.Errorf("deck %s has no card %d", id, actionID)
	}
	return cards[actionID], nil
}

// Size returns how many cards a deck holds.
func (c *Catalog) Size(id ID) int {
	return len(c.cards[id])
}

var deckSubjects = map[ID][]string{
	DeckStreetLife: {
		"rain-soaked bus stop", "corner food cart at noon", "chalk hopscotch grid",
		"overflowing mailbox", "street musician with trumpet", "barber shop pole",
		"pigeons on a power line", "flickering neon sign", "pothole full of sky",
		"double-parked delivery van", "kid selling lemonade", "torn concert poster",
		"steam rising from a grate", "crosswalk countdown at 3", "stray cat on a stoop",
		"open fire hydrant in summer", "newspaper stand at dawn", "graffiti of a whale",
		"lost glove on a fence post", "night bus with one passenger",
	},
	DeckWildNature: {
		"fox crossing a frozen lake", "ant carrying a leaf", "thunderhead over wheat",
		"tide pool with a starfish", "moss on a fallen log", "hawk riding a thermal",
		"salmon leaping a weir", "dew on a spiderweb", "wildfire smoke at sundown",
		"beaver dam at flood stage", "lone pine above treeline", "glowworm cave ceiling",
		"migrating geese in a vee", "sand dune ripples", "hailstones on clover",
		"owl pellet under an oak", "river braiding over gravel", "lightning-split birch",
		"first crocus through snow", "whale fluke at dusk",
	},
	DeckNightCity: {
		"rooftop water tower silhouette", "24h laundromat glow", "last train leaving",
		"vending machine alley", "taxi light in the rain", "apartment window checkerboard",
		"ferris wheel after closing", "noodle bar steam at 2am", "parking garage spiral",
		"blinking radio mast", "empty arcade cabinet row", "bridge cables in fog",
		"billboard with a missing letter", "convenience store clerk asleep",
		"skyline reflected in a puddle", "elevator mirror selfie", "night market lanterns",
		"subway busker's open case", "security camera cluster", "dawn over cooling towers",
	},
	DeckOldMemories: {
		"rotary phone mid-ring", "grandmother's thimble", "cassette with a pencil",
		"polaroid fading at the edges", "school bell on a rope", "jar of marbles",
		"handwritten recipe card", "ticket stub from 1987", "wind-up tin robot",
		"pressed flower in a dictionary", "slide projector dust beam", "wooden sled runner",
		"milk bottle on a doorstep", "darned wool sock", "piano with a stuck key",
		"stamp album with one gap", "sunday radio serial", "chalkboard eraser clap",
		"skeleton key on a ribbon", "front porch swing chain",
	},
}
