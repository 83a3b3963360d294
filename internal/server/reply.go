package server

import (
	"fmt"
	"regexp"
	"strings"
)

const apologyReply = "Oops! Something went wrong 😅. Let's try again in a sec."

var hallucinatedLogLinePattern = regexp.MustCompile(`(?i)^✅.*logged.*\n*`)

// prefixLoggedSummary prepends the "✅ Logged ..." confirmation for the foods
// committed this turn. When nothing was extracted it instead strips any
// "✅ ... Logged" line the model may have hallucinated into its own reply.
func prefixLoggedSummary(reply string, logged []FoodExtraction) string {
	switch len(logged) {
	case 0:
		return hallucinatedLogLinePattern.ReplaceAllString(reply, "")
	case 1:
		return fmt.Sprintf("✅ Logged %q (%d kcal)\n%s", *logged[0].Food, *logged[0].Calories, reply)
	default:
		total := 0
		parts := make([]string, 0, len(logged))
		for _, item := range logged {
			total += *item.Calories
			parts = append(parts, fmt.Sprintf("%s (%d kcal)", *item.Food, *item.Calories))
		}
		return fmt.Sprintf(
			"✅ Logged %d foods: %s — %d kcal\n\n%s",
			len(logged),
			strings.Join(parts, ", "),
			total,
			reply,
		)
	}
}

func composeRemovalReply(removed []string, total int) string {
	if len(removed) == 0 {
		return "😅 I couldn't find that in today's log, so nothing was removed."
	}
	return fmt.Sprintf("🧹 Removed %s. Total is now %d kcal.", strings.Join(removed, ", "), total)
}

func composeResetReply() string {
	return "🧹 All cleared! Your total is now 0 kcal. Fresh start 🌱"
}

// dedupeReplyLines drops exact-duplicate non-empty lines while keeping order
// and blank lines, in case the model repeats itself.
func dedupeReplyLines(reply string) string {
	lines := strings.Split(reply, "\n")
	seen := make(map[string]struct{}, len(lines))
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			kept = append(kept, line)
			continue
		}
		if _, duplicate := seen[trimmed]; duplicate {
			continue
		}
		seen[trimmed] = struct{}{}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
