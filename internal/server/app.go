package server

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"caloriebuddy/backend/internal/config"
	"caloriebuddy/backend/internal/storage"
)

type App struct {
	cfg      config.Config
	ai       AIClient
	store    *storage.Store
	sessions *sessionManager
	now      func() time.Time
}

func New(cfg config.Config, store *storage.Store, ai AIClient) *App {
	return &App{
		cfg:      cfg,
		ai:       ai,
		store:    store,
		sessions: newSessionManager(cfg.HistoryLimit),
		now:      time.Now,
	}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.CustomRecovery(a.recoverChat))
	router.Use(cors.New(a.corsConfig()))

	router.GET("/health", a.health)

	authed := router.Group("")
	authed.Use(a.sessionMiddleware())
	authed.POST("/chat", a.handleChat)
	authed.GET("/foods", a.listFoods)
	authed.GET("/summary/today", a.todaySummary)

	return router
}

func (a *App) corsConfig() cors.Config {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	origins := a.cfg.CORSAllowOrigins
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		return corsCfg
	}
	corsCfg.AllowOrigins = origins
	corsCfg.AllowCredentials = true
	return corsCfg
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "caloriebuddy-api",
	})
}

// recoverChat converts an escaped panic into the fixed apologetic reply. The
// process keeps serving; session state mutated before the panic stays as-is.
func (a *App) recoverChat(c *gin.Context, err any) {
	log.Printf("chat handler panic: %v", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"reply": apologyReply,
		"data":  gin.H{"food": nil},
	})
}

// sessionMiddleware resolves which session a request belongs to. Without a
// configured JWT secret every request maps to the single implicit session.
// With one, the bearer token's subject keys the session, so multiple users
// get isolated logs.
func (a *App) sessionMiddleware() gin.HandlerFunc {
	secret := strings.TrimSpace(a.cfg.JWTSecret)
	return func(c *gin.Context) {
		if secret == "" {
			c.Set("sessionID", defaultSessionID)
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}
		tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
		if tokenString == "" {
			writeError(c, http.StatusUnauthorized, "Bearer token required")
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			writeError(c, http.StatusUnauthorized, "Invalid bearer token")
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			writeError(c, http.StatusUnauthorized, "Invalid token payload")
			return
		}
		sub, _ := claims["sub"].(string)
		sub = strings.TrimSpace(sub)
		if sub == "" {
			writeError(c, http.StatusUnauthorized, "Token subject missing")
			return
		}

		c.Set("sessionID", sub)
		c.Next()
	}
}

func sessionIDFromContext(c *gin.Context) string {
	raw, ok := c.Get("sessionID")
	if !ok {
		return defaultSessionID
	}
	id, ok := raw.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return defaultSessionID
	}
	return id
}

// session returns the request's session with the daily boundary already
// checked. A freshly created session is rehydrated with today's persisted
// entries so a restart does not lose the running total.
func (a *App) session(c *gin.Context, now time.Time) *Session {
	id := sessionIDFromContext(c)
	sess, created := a.sessions.Get(id, now)
	if created && a.store != nil {
		stored, err := a.store.EntriesForDay(sess.ID(), dayKey(now))
		if err != nil {
			log.Printf("session rehydrate failed session=%s err=%v", sess.ID(), err)
		} else if len(stored) > 0 {
			entries := make([]FoodLogEntry, 0, len(stored))
			for _, item := range stored {
				entries = append(entries, FoodLogEntry{Food: item.Food, Calories: item.Calories})
			}
			sess.AddEntries(entries)
		}
	}
	sess.RolloverIfNeeded(now)
	return sess
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}
