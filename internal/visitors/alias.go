package visitors

import "hash/fnv"

var aliasAdjectives = []string{
	"Curious", "Happy", "Clever", "Wise", "Playful", "Brave", "Swift", "Gentle", "Busy", "Bold",
	"Lively", "Nimble", "Bright", "Cheerful", "Jolly", "Creative", "Elegant", "Friendly", "Calm", "Quiet",
	"Sunny", "Misty", "Rusty", "Dusty", "Lucky", "Mellow", "Plucky", "Snappy", "Witty", "Zesty",
}

var aliasAnimals = []string{
	"Panda", "Fox", "Owl", "Otter", "Lion", "Eagle", "Deer", "Raven", "Beaver", "Koala",
	"Sloth", "Hamster", "Bear", "Penguin", "Parrot", "Giraffe", "Raccoon", "Meerkat", "Llama", "Hedgehog",
	"Dolphin", "Whale", "Seahorse", "Turtle", "Octopus", "Seal", "Walrus", "Heron", "Finch", "Crane",
}

// Alias returns a stable, human-friendly label for a fingerprint so
// dashboards can tell visitors apart without showing raw hashes.
func Alias(fingerprint string) string {
	if fingerprint == "" {
		return "Anonymous Visitor"
	}
	h := fnv.New32a()
	h.Write([]byte(fingerprint))
	sum := h.Sum32()

	adjective := aliasAdjectives[sum%uint32(len(aliasAdjectives))]
	animal := aliasAnimals[(sum/uint32(len(aliasAdjectives)))%uint32(len(aliasAnimals))]
	return adjective + " " + animal
}
