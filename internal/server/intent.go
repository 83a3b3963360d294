package server

import (
	"regexp"
	"strings"
)

type intent string

const (
	intentAdd    intent = "add"
	intentRemove intent = "remove"
	intentReset  intent = "reset"
	intentNone   intent = "none"
)

// Reset phrases win over everything else, so "remove all and start fresh"
// clears the day instead of entering the removal flow.
var resetPhrases = []string{
	"remove all",
	"remove everything",
	"clear everything",
	"clear all",
	"clear my log",
	"delete everything",
	"start fresh",
	"start over",
	"reset day",
	"reset my day",
	"reset everything",
	"reset my log",
	"wipe the log",
}

var removeKeywordPattern = regexp.MustCompile(`\b(remove|delete|undo|erase|cancel)\b`)

var loggingVerbs = []string{
	"ate", "had", "got", "ordered", "cooked", "made", "grabbed", "prepared",
	"took", "drank", "consumed", "finished", "snacked on", "devoured",
	"enjoyed", "tried", "bought", "log", "logged",
}

// classifyIntent maps a raw chat message plus the previous turn's intent to the
// coarse action the user wants performed on their food log. Pure function.
func classifyIntent(message string, lastIntent intent) intent {
	lowered := strings.ToLower(message)

	for _, phrase := range resetPhrases {
		if strings.Contains(lowered, phrase) {
			return intentReset
		}
	}
	if removeKeywordPattern.MatchString(lowered) {
		return intentRemove
	}
	for _, verb := range loggingVerbs {
		if strings.Contains(lowered, verb) {
			return intentAdd
		}
	}
	// Continuation: "and also the chips" right after a logged meal has no verb
	// but still means add.
	if lastIntent == intentAdd {
		return intentAdd
	}
	if strings.Contains(lowered, "log it") {
		return intentAdd
	}
	return intentNone
}

var (
	fragmentSplitPattern = regexp.MustCompile(`\b(?:and|with|plus)\b`)
	removalSplitPattern  = regexp.MustCompile(`\b(?:and|with|plus)\b|,`)
)

// splitFragments cuts a multi-food utterance into candidate substrings, one
// hypothesized food item each. Removal flows additionally split on commas.
// Splitting on "with" can misread "salad with dressing" as two foods; the
// extractor reduces such fragments to no-food, so the mistake stays harmless.
func splitFragments(message string, forRemoval bool) []string {
	lowered := strings.ToLower(strings.TrimSpace(message))

	pattern := fragmentSplitPattern
	if forRemoval {
		pattern = removalSplitPattern
	}

	pieces := pattern.Split(lowered, -1)
	fragments := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		trimmed := strings.TrimSpace(piece)
		if len(trimmed) <= 1 {
			continue
		}
		fragments = append(fragments, trimmed)
	}
	if len(fragments) == 0 {
		return []string{lowered}
	}
	return fragments
}
