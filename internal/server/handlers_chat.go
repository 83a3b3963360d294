package server

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"caloriebuddy/backend/internal/storage"
)

const personaSystemPrompt = `You are Buddy — a warm, supportive calorie-tracking assistant.
Focus on food, hydration, and mood.
If user sounds emotional, respond kindly and bring it back to food.
Short (1-2 sentences), positive, and human.
Use emojis sparingly.
Avoid politics or religion.`

const fallbackReply = "Got it!"

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat runs the whole message pipeline: daily rollover, intent
// classification, the reset/remove/add/none branch, and reply composition.
func (a *App) handleChat(c *gin.Context) {
	var payload chatRequest
	if !mustJSON(c, &payload) {
		return
	}
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		writeError(c, http.StatusBadRequest, "message is required")
		return
	}

	now := a.now()
	start := time.Now()
	session := a.session(c, now)
	log.Printf("chat message session=%s message=%q", session.ID(), message)

	session.AppendTurn("user", message)
	userIntent := classifyIntent(message, session.LastIntent())

	switch userIntent {
	case intentReset:
		a.handleReset(c, session, now)
	case intentRemove:
		a.handleRemove(c, session, message, now)
	default:
		a.handleConversation(c, session, message, userIntent, now)
	}

	log.Printf("chat done session=%s intent=%s elapsed=%.2fs", session.ID(), userIntent, time.Since(start).Seconds())
}

// handleReset clears the daily log and responds immediately; no extraction
// calls are made.
func (a *App) handleReset(c *gin.Context, session *Session, now time.Time) {
	session.Reset(now)
	if a.store != nil {
		if err := a.store.ClearDay(session.ID(), dayKey(now)); err != nil {
			log.Printf("stored log clear failed session=%s err=%v", session.ID(), err)
		}
	}

	reply := composeResetReply()
	session.AppendTurn("assistant", reply)
	session.SetLastIntent(intentReset)

	c.JSON(http.StatusOK, gin.H{
		"reply":         reply,
		"data":          gin.H{"action": "reset"},
		"totalCalories": 0,
	})
}

func (a *App) handleRemove(c *gin.Context, session *Session, message string, now time.Time) {
	removed := make([]string, 0, 2)
	for _, fragment := range splitFragments(message, true) {
		parsed := a.extractFood(c.Request.Context(), fragment)
		if parsed.Food == nil {
			continue
		}
		if count := session.RemoveByFood(*parsed.Food); count == 0 {
			continue
		}
		removed = append(removed, *parsed.Food)
		if a.store != nil {
			if _, err := a.store.DeleteByFood(session.ID(), dayKey(now), *parsed.Food); err != nil {
				log.Printf("stored entry delete failed session=%s food=%q err=%v", session.ID(), *parsed.Food, err)
			}
		}
	}

	total := session.TotalCalories()
	reply := dedupeReplyLines(composeRemovalReply(removed, total))
	session.AppendTurn("assistant", reply)
	session.SetLastIntent(intentRemove)

	c.JSON(http.StatusOK, gin.H{
		"reply":         reply,
		"data":          gin.H{"action": "remove"},
		"totalCalories": total,
	})
}

// handleConversation covers the add and none paths. Both share one persona
// call; the add path additionally runs per-fragment extraction and commits
// what survives the merge.
func (a *App) handleConversation(c *gin.Context, session *Session, message string, userIntent intent, now time.Time) {
	ctx := c.Request.Context()

	replyResp, err := a.ai.Query(ctx, AIModelRequest{
		Model:        a.cfg.ReplyModel,
		SystemPrompt: personaSystemPrompt,
		Conversation: session.HistorySnapshot(),
		Temperature:  0.7,
		MaxTokens:    a.cfg.ReplyMaxTokens,
	})
	if err != nil {
		log.Printf("buddy reply failed session=%s err=%v", session.ID(), err)
		session.SetLastIntent(intentNone)
		c.JSON(http.StatusInternalServerError, gin.H{
			"reply": apologyReply,
			"data":  gin.H{"food": nil},
		})
		return
	}
	reply := strings.TrimSpace(replyResp.Answer)
	if reply == "" {
		reply = fallbackReply
	}
	log.Printf("buddy reply session=%s model=%s tokens=%d", session.ID(), replyResp.Model, replyResp.Usage.TotalTokens)

	var data any = gin.H{"food": nil}
	if userIntent == intentAdd {
		logged := a.extractAndCommit(ctx, session, message, now)
		reply = prefixLoggedSummary(reply, logged)
		switch len(logged) {
		case 0:
		case 1:
			data = logged[0]
		default:
			data = logged
		}
		session.SetLastIntent(intentAdd)
	} else {
		session.SetLastIntent(intentNone)
	}

	reply = dedupeReplyLines(reply)
	session.AppendTurn("assistant", reply)

	c.JSON(http.StatusOK, gin.H{
		"reply":         reply,
		"data":          data,
		"totalCalories": session.TotalCalories(),
	})
}

// extractAndCommit runs one extraction call per fragment (sequentially, like
// the conversational call before it), merges duplicates, and appends the
// survivors to the session log and the journal.
func (a *App) extractAndCommit(ctx context.Context, session *Session, message string, now time.Time) []FoodExtraction {
	fragments := splitFragments(message, false)
	results := make([]FoodExtraction, 0, len(fragments))
	for _, fragment := range fragments {
		results = append(results, a.extractFood(ctx, fragment))
	}

	logged := mergeExtractions(results)
	if len(logged) == 0 {
		return logged
	}

	entries := make([]FoodLogEntry, 0, len(logged))
	for _, item := range logged {
		entries = append(entries, FoodLogEntry{Food: *item.Food, Calories: *item.Calories})
	}
	session.AddEntries(entries)

	if a.store != nil {
		for _, item := range logged {
			stored := storage.FoodEntry{
				ID:       uuid.NewString(),
				Food:     *item.Food,
				Quantity: *item.Quantity,
				Unit:     *item.Unit,
				Calories: *item.Calories,
				LoggedAt: now,
			}
			if err := a.store.AppendEntry(session.ID(), dayKey(now), stored); err != nil {
				log.Printf("stored entry append failed session=%s food=%q err=%v", session.ID(), stored.Food, err)
			}
		}
	}
	return logged
}

func (a *App) listFoods(c *gin.Context) {
	limit := 50
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil && parsed > 0 {
			if parsed > 200 {
				parsed = 200
			}
			limit = parsed
		}
	}

	if a.store == nil {
		c.JSON(http.StatusOK, gin.H{"foods": []storage.FoodEntry{}})
		return
	}
	entries, err := a.store.RecentEntries(sessionIDFromContext(c), limit)
	if err != nil {
		log.Printf("list foods failed err=%v", err)
		writeError(c, http.StatusInternalServerError, "Failed to load food entries")
		return
	}
	c.JSON(http.StatusOK, gin.H{"foods": entries})
}

func (a *App) todaySummary(c *gin.Context) {
	now := a.now()
	session := a.session(c, now)

	c.JSON(http.StatusOK, gin.H{
		"date":          dayKey(now),
		"entries":       session.Entries(),
		"totalCalories": session.TotalCalories(),
	})
}
