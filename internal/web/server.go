// Package web exposes the local HTTP API: card and deck management, review
// sessions and sync control. All handlers speak JSON.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	gosync "sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pkeogan/memosync/internal/domain"
	"github.com/pkeogan/memosync/internal/review"
	"github.com/pkeogan/memosync/internal/scheduler"
	"github.com/pkeogan/memosync/internal/storage"
	syncengine "github.com/pkeogan/memosync/internal/sync"
)

// Server holds the dependencies for the HTTP server. It observes the sync
// engine so /api/sync/status can answer without touching the engine.
type Server struct {
	db       *storage.DB
	review   *review.Service
	engine   *syncengine.Engine // nil when running without a remote
	router   *http.ServeMux
	validate *validator.Validate
	logger   *slog.Logger

	mu          gosync.Mutex
	syncStatus  syncengine.Status
	dataVersion int64
}

// NewServer creates and configures a new server. engine may be nil.
func NewServer(db *storage.DB, reviewSvc *review.Service, engine *syncengine.Engine, logger *slog.Logger) *Server {
	s := &Server{
		db:         db,
		review:     reviewSvc,
		engine:     engine,
		router:     http.NewServeMux(),
		validate:   validator.New(),
		logger:     logger,
		syncStatus: syncengine.StatusOffline,
	}
	if engine != nil {
		engine.Subscribe(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SyncStatusChanged implements sync.Observer.
func (s *Server) SyncStatusChanged(status syncengine.Status) {
	s.mu.Lock()
	s.syncStatus = status
	s.mu.Unlock()
}

// DataChanged implements sync.Observer. The version counter lets polling
// clients detect that remote changes landed locally.
func (s *Server) DataChanged() {
	s.mu.Lock()
	s.dataVersion++
	s.mu.Unlock()
}

// routes sets up the routing for the server.
func (s *Server) routes() {
	s.router.HandleFunc("/api/cards", s.handleCards())
	s.router.HandleFunc("/api/cards/", s.handleCard())
	s.router.HandleFunc("/api/decks", s.handleDecks())
	s.router.HandleFunc("/api/decks/", s.handleDeleteDeck())
	s.router.HandleFunc("/api/review/due", s.handleDueCards())
	s.router.HandleFunc("/api/review/preview/", s.handlePreview())
	s.router.HandleFunc("/api/review/grade/", s.handleGrade())
	s.router.HandleFunc("/api/review/practice/", s.handlePractice())
	s.router.HandleFunc("/api/stats", s.handleStats())
	s.router.HandleFunc("/api/sync", s.handlePostSync())
	s.router.HandleFunc("/api/sync/status", s.handleSyncStatus())
	s.router.HandleFunc("/api/export", s.handleExport())
	s.router.HandleFunc("/api/import", s.handleImport())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrValidation):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("Request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

type cardPayload struct {
	Question      string `json:"question" validate:"required"`
	Answer        string `json:"answer" validate:"required"`
	Category      string `json:"category"`
	QuestionImage string `json:"questionImage"`
	AnswerImage   string `json:"answerImage"`
}

// handleCards handles both GET and POST for the card collection.
func (s *Server) handleCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.handleListCards(w, r)
		case http.MethodPost:
			s.handleCreateCard(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	var (
		cards []domain.Card
		err   error
	)
	if category := r.URL.Query().Get("category"); category != "" {
		cards, err = s.db.ListCardsByCategory(category)
	} else {
		cards, err = s.db.ListCards()
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cards == nil {
		cards = []domain.Card{}
	}
	s.writeJSON(w, http.StatusOK, cards)
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var payload cardPayload
	if !s.decode(w, r, &payload) {
		return
	}

	id, err := domain.NewID()
	if err != nil {
		s.writeError(w, err)
		return
	}
	card := domain.NewCard(id, payload.Question, payload.Answer, payload.Category,
		domain.NowISO(), domain.DateString(time.Now()))
	card.QuestionImage = payload.QuestionImage
	card.AnswerImage = payload.AnswerImage

	if err := s.db.InsertCard(&card); err != nil {
		s.writeError(w, err)
		return
	}
	s.markCardDirty(card.ID)
	s.writeJSON(w, http.StatusCreated, card)
}

// handleCard handles GET, PUT and DELETE for a single card.
func (s *Server) handleCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/cards/")
		if id == "" {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.handleGetCard(w, r, id)
		case http.MethodPut:
			s.handleUpdateCard(w, r, id)
		case http.MethodDelete:
			s.handleDeleteCard(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request, id string) {
	card, err := s.db.GetCard(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if card == nil || card.Deleted {
		s.writeError(w, fmt.Errorf("%w: card %s", domain.ErrNotFound, id))
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		domain.Card
		NextReviewLabel string `json:"nextReviewLabel"`
	}{*card, scheduler.FormatNextReview(card.NextReview, time.Now())})
}

func (s *Server) handleUpdateCard(w http.ResponseWriter, r *http.Request, id string) {
	var payload cardPayload
	if !s.decode(w, r, &payload) {
		return
	}

	card, err := s.db.GetCard(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if card == nil || card.Deleted {
		s.writeError(w, fmt.Errorf("%w: card %s", domain.ErrNotFound, id))
		return
	}

	card.Question = payload.Question
	card.Answer = payload.Answer
	if payload.Category != "" {
		card.Category = payload.Category
	}
	card.QuestionImage = payload.QuestionImage
	card.AnswerImage = payload.AnswerImage
	card.UpdatedAt = domain.NowISO()
	card.Synced = false

	if err := s.db.UpdateCard(card); err != nil {
		s.writeError(w, err)
		return
	}
	s.markCardDirty(card.ID)
	s.writeJSON(w, http.StatusOK, card)
}

// handleDeleteCard tombstones a card so the deletion replicates, then asks
// the engine to push. Without an engine the row is removed outright.
func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request, id string) {
	card, err := s.db.GetCard(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if card == nil || card.Deleted {
		s.writeError(w, fmt.Errorf("%w: card %s", domain.ErrNotFound, id))
		return
	}

	if err := s.db.SoftDeleteCard(id, domain.NowISO()); err != nil {
		s.writeError(w, err)
		return
	}
	if s.engine != nil {
		s.engine.PushNow(r.Context())
	} else {
		if err := s.db.HardDeleteCard(id); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

type deckPayload struct {
	Name string `json:"name" validate:"required"`
}

// handleDecks handles both GET and POST for the deck collection.
func (s *Server) handleDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.handleListDecks(w, r)
		case http.MethodPost:
			s.handleCreateDeck(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := s.db.ListDecks()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if decks == nil {
		decks = []domain.Deck{}
	}
	s.writeJSON(w, http.StatusOK, decks)
}

func (s *Server) handleCreateDeck(w http.ResponseWriter, r *http.Request) {
	var payload deckPayload
	if !s.decode(w, r, &payload) {
		return
	}

	existing, err := s.db.GetDeckByName(payload.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if existing != nil {
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "deck already exists"})
		return
	}

	id, err := domain.NewID()
	if err != nil {
		s.writeError(w, err)
		return
	}
	deck := domain.NewDeck(id, payload.Name, domain.NowISO())
	if err := s.db.InsertDeck(&deck); err != nil {
		s.writeError(w, err)
		return
	}
	s.markDeckDirty(deck.ID)
	s.writeJSON(w, http.StatusCreated, deck)
}

// handleDeleteDeck tombstones a deck and every card in its category, so the
// cascade replicates to other devices.
func (s *Server) handleDeleteDeck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/decks/")

		deck, err := s.db.GetDeck(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if deck == nil || deck.Deleted {
			s.writeError(w, fmt.Errorf("%w: deck %s", domain.ErrNotFound, id))
			return
		}

		now := domain.NowISO()
		cardIDs, err := s.db.SoftDeleteCardsByCategory(deck.Name, now)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.db.SoftDeleteDeck(id, now); err != nil {
			s.writeError(w, err)
			return
		}

		if s.engine != nil {
			s.engine.PushNow(r.Context())
		} else {
			for _, cardID := range cardIDs {
				if err := s.db.HardDeleteCard(cardID); err != nil {
					s.writeError(w, err)
					return
				}
			}
			if err := s.db.HardDeleteDeck(id); err != nil {
				s.writeError(w, err)
				return
			}
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"deleted":      id,
			"deletedCards": len(cardIDs),
		})
	}
}

// handleDueCards returns the shuffled review queue.
func (s *Server) handleDueCards() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cards, err := s.review.DueCards()
		if err != nil {
			s.writeError(w, err)
			return
		}
		if cards == nil {
			cards = []domain.Card{}
		}
		s.writeJSON(w, http.StatusOK, cards)
	}
}

// handlePreview returns the projected interval for each grade of a card.
func (s *Server) handlePreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/review/preview/")
		previews, err := s.review.Preview(id)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, previews)
	}
}

type gradePayload struct {
	Grade int `json:"grade" validate:"min=0,max=3"`
}

// handleGrade commits a review for a card.
func (s *Server) handleGrade() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/review/grade/")
		var payload gradePayload
		if !s.decode(w, r, &payload) {
			return
		}

		card, err := s.review.Grade(id, domain.Grade(payload.Grade))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, card)
	}
}

// handlePractice grades a card without touching its schedule.
func (s *Server) handlePractice() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id := strings.TrimPrefix(r.URL.Path, "/api/review/practice/")
		var payload gradePayload
		if !s.decode(w, r, &payload) {
			return
		}

		correct, err := s.review.Practice(id, domain.Grade(payload.Grade))
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]bool{"correct": correct})
	}
}

// handleStats returns collection statistics.
func (s *Server) handleStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		stats, err := s.review.Stats()
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, stats)
	}
}

// handlePostSync triggers a full sync in the foreground. Sync outcomes are
// reported through the status endpoint, not the response code.
func (s *Server) handlePostSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.engine == nil {
			s.writeJSON(w, http.StatusConflict, map[string]string{"error": "sync is not configured"})
			return
		}
		s.engine.FullSync(r.Context())
		s.handleSyncStatus()(w, r)
	}
}

func (s *Server) handleSyncStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status, version := s.syncStatus, s.dataVersion
		s.mu.Unlock()
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      status,
			"dataVersion": version,
		})
	}
}

// handleExport streams the full collection, tombstones and images included,
// as a JSON backup.
func (s *Server) handleExport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="memosync-backup.json"`)
		if err := s.db.Export(w, domain.NowISO()); err != nil {
			s.logger.Error("Export failed", "error", err)
		}
	}
}

// handleImport merges a backup into the local store by id.
func (s *Server) handleImport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		cards, decks, err := s.db.Import(r.Body)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.DataChanged()
		s.writeJSON(w, http.StatusOK, map[string]int{
			"importedCards": cards,
			"importedDecks": decks,
		})
	}
}

func (s *Server) markCardDirty(id string) {
	if s.engine == nil {
		return
	}
	if err := s.engine.MarkCardDirty(id); err != nil {
		s.logger.Error("Failed to flag card for sync", "card", id, "error", err)
	}
}

func (s *Server) markDeckDirty(id string) {
	if s.engine == nil {
		return
	}
	if err := s.engine.MarkDeckDirty(id); err != nil {
		s.logger.Error("Failed to flag deck for sync", "deck", id, "error", err)
	}
}
