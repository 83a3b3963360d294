package server

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"strings"
	"time"
)

const parserSystemPrompt = `You are a nutrition data parser.
Output valid JSON only:
{"food":"", "quantity": number|null, "unit":"", "calories": number|null}

Rules:
- Return ONE object only, never arrays.
- Accept plural forms ("5 almonds" -> {"food":"almonds","quantity":5,"calories":35}).
- Never duplicate or guess multiple foods.
- Use realistic human quantities (1-5 unless grams/ml given).
- If not listed, estimate 100-600 kcal.
- If no food detected, return {"food":null}.`

const (
	maxQuantity = 10
	maxCalories = 1000
)

// Fallback calories for common foods when the model returns none.
var foodCalories = map[string]int{
	"apple":            72,
	"banana":           89,
	"orange":           62,
	"egg":              68,
	"eggs":             136,
	"falafel sandwich": 350,
	"rice":             206,
	"chicken":          165,
	"bread":            80,
	"coffee":           2,
	"yogurt":           59,
	"salad":            120,
	"pasta":            220,
	"pizza":            285,
	"potato":           161,
	"tomato":           22,
	"burger":           500,
	"almond":           7,
	"almonds":          7,
}

// FoodExtraction is the structured result of interpreting one fragment.
// A nil Food means no food was recognized and nothing may be logged.
type FoodExtraction struct {
	Food     *string  `json:"food"`
	Quantity *float64 `json:"quantity"`
	Unit     *string  `json:"unit"`
	Calories *int     `json:"calories"`
}

// extractFood interprets one fragment via the parser prompt. It never fails
// upward: network errors, malformed model output, and timeouts all degrade to
// the zero extraction.
func (a *App) extractFood(ctx context.Context, fragment string) FoodExtraction {
	start := time.Now()

	resp, err := a.ai.Query(ctx, AIModelRequest{
		Model:        a.cfg.ParserModel,
		SystemPrompt: parserSystemPrompt,
		UserPrompt:   fragment,
		Temperature:  0.15,
		MaxTokens:    a.cfg.ParserMaxTokens,
	})
	if err != nil {
		log.Printf("food parser failed fragment=%q err=%v", fragment, err)
		return FoodExtraction{}
	}

	parsed, ok := decodeExtractionJSON(resp.Answer)
	if !ok || parsed.Food == nil {
		return FoodExtraction{}
	}

	if parsed.Calories == nil {
		name := strings.ToLower(strings.TrimSpace(*parsed.Food))
		if kcal, found := foodCalories[name]; found {
			calories := kcal
			parsed.Calories = &calories
		}
	}

	if parsed.Quantity == nil {
		quantity := 1.0
		parsed.Quantity = &quantity
	}
	if parsed.Unit == nil || strings.TrimSpace(*parsed.Unit) == "" {
		unit := "piece"
		parsed.Unit = &unit
	}

	// Guard against hallucinated outliers.
	if *parsed.Quantity > maxQuantity {
		quantity := float64(maxQuantity)
		parsed.Quantity = &quantity
	}
	if parsed.Calories != nil && *parsed.Calories > maxCalories {
		calories := maxCalories
		parsed.Calories = &calories
	}

	log.Printf(
		"parsed food=%s quantity=%v unit=%s calories=%v elapsed=%.2fs",
		stringOrNull(parsed.Food),
		floatOrNull(parsed.Quantity),
		stringOrNull(parsed.Unit),
		intOrNull(parsed.Calories),
		time.Since(start).Seconds(),
	)
	return parsed
}

// decodeExtractionJSON pulls the first {...} span out of the raw model answer
// and coerces it into an extraction. Greedy brace match: first "{" to last "}".
func decodeExtractionJSON(raw string) (FoodExtraction, bool) {
	candidate := strings.TrimSpace(raw)
	if strings.HasPrefix(candidate, "```") {
		candidate = strings.TrimSpace(strings.TrimPrefix(candidate, "```json"))
		candidate = strings.TrimSpace(strings.TrimPrefix(candidate, "```"))
		candidate = strings.TrimSpace(strings.TrimSuffix(candidate, "```"))
	}
	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start < 0 || end <= start {
		return FoodExtraction{}, false
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(candidate[start:end+1]), &parsed); err != nil {
		return FoodExtraction{}, false
	}

	out := FoodExtraction{}
	if food := strings.TrimSpace(toString(parsed["food"])); food != "" {
		out.Food = &food
	}
	if quantity, ok := toNumber(parsed["quantity"]); ok {
		out.Quantity = &quantity
	}
	if unit := strings.TrimSpace(toString(parsed["unit"])); unit != "" {
		out.Unit = &unit
	}
	if kcal, ok := toNumber(parsed["calories"]); ok && kcal > 0 {
		calories := int(math.Round(kcal))
		out.Calories = &calories
	}
	return out, true
}

// mergeExtractions collapses repeated food mentions within one turn. Repeats
// merge by integer-rounded calorie average; first-seen order is kept.
// Extractions missing food or calories carry nothing loggable and are dropped.
func mergeExtractions(items []FoodExtraction) []FoodExtraction {
	merged := make([]FoodExtraction, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if item.Food == nil || item.Calories == nil {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(*item.Food))
		if pos, seen := index[key]; seen {
			average := int(math.Round(float64(*merged[pos].Calories+*item.Calories) / 2))
			merged[pos].Calories = &average
			continue
		}
		index[key] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return ""
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		parsed, err := v.Float64()
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func stringOrNull(value *string) string {
	if value == nil {
		return "<null>"
	}
	return *value
}

func floatOrNull(value *float64) any {
	if value == nil {
		return "<null>"
	}
	return *value
}

func intOrNull(value *int) any {
	if value == nil {
		return "<null>"
	}
	return *value
}
