package coordinator

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "silly", "jolly", "cozy", "shiny",
	"golden", "silver", "crimson", "emerald", "purple", "bright", "gentle", "brave", "calm", "swift",
	"silent", "noisy", "bouncy", "fuzzy", "plucky", "merry", "peppy", "lucky", "breezy", "misty",
}

var animals = []string{
	"kitten", "puppy", "bunny", "panda", "koala", "fox", "otter", "hedgehog", "squirrel", "hamster",
	"duckling", "fawn", "lamb", "raccoon", "ferret", "beaver", "seahorse", "dolphin", "narwhal", "penguin",
	"flamingo", "pelican", "sparrow", "robin", "toucan", "parrot", "canary", "cockatoo", "whale", "mole",
}

var things = []string{
	"sunbeam", "stardust", "pepper", "muffin", "bubble", "sprout", "glimmer", "whisker", "echo", "jelly",
	"marble", "maple", "cocoa", "hazel", "meadow", "willow", "ember", "cinnamon", "poppy", "pixel",
	"lantern", "puddle", "pebble", "cottage", "rocket", "comet", "orbit", "nebula", "canyon", "ridge",
}

// defaultName is given to participants that join without a name.
func defaultName() string {
	return fmt.Sprintf("User%d", randomIndex(1000))
}

// generateRoomID creates a memorable room id such as "sleepy-otter-comet".
// taken reports ids already in use; generation retries until a free one is
// found and appends a numeric suffix if the word space looks exhausted.
func generateRoomID(taken func(string) bool) string {
	for attempt := 0; ; attempt++ {
		words := []string{
			adjectives[randomIndex(len(adjectives))],
			animals[randomIndex(len(animals))],
			things[randomIndex(len(things))],
		}
		if attempt >= 16 {
			words = append(words, fmt.Sprint(randomIndex(10000)))
		}
		id := strings.Join(words, "-")
		if !taken(id) {
			return id
		}
	}
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("coordinator: random index: %v", err))
	}
	return int(n.Int64())
}
