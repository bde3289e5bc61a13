package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"medichat/internal/auth"
	"medichat/internal/models"
	"medichat/internal/storage"
	"medichat/pkg/utils"
)

const chatTitleLen = 30

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fields := req.Validate(); fields != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Username and password are required",
			"fields":  fields,
		})
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	if _, err := s.storage.CreateUser(r.Context(), req.Username, hashed); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			s.respondJSON(w, http.StatusConflict, map[string]any{
				"success": false,
				"message": "Username already exists",
			})
			return
		}
		s.logger.Error("create user failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Registration successful"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fields := req.Validate(); fields != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Username and password are required",
			"fields":  fields,
		})
		return
	}

	user, err := s.storage.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !auth.CheckPassword(user.Password, req.Password) {
		s.respondJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"message": "Invalid credentials",
		})
		return
	}

	token, err := s.auth.GenerateToken(user)
	if err != nil {
		s.logger.Error("token generation failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	auth.SetSessionCookie(w, token)

	// Summarize prior conversations for persona priming. Best effort: a
	// model outage must not block login.
	if chats, err := s.storage.ListChats(r.Context(), user.ID); err == nil {
		all := make([]models.Chat, 0, len(chats))
		for _, c := range chats {
			all = append(all, *c)
		}
		if summary := s.orchestrator.SummarizeHistory(r.Context(), all); summary != "" {
			s.summaries.Set(user.ID, summary)
		}
	} else {
		s.logger.Warn("listing chats for summary failed", zap.Error(err))
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Login successful",
		"token":   token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if user := auth.UserFromContext(r.Context()); user != nil {
		s.summaries.Delete(user.ID)
	}
	auth.ClearSessionCookie(w)
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Logged out successfully"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fields := req.Validate(); fields != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Message is required",
			"fields":  fields,
		})
		return
	}

	chatID := req.ChatID
	var history []models.Message
	if chatID == "" {
		chatID = uuid.New().String()
	} else {
		chat, err := s.storage.GetChat(r.Context(), user.ID, chatID)
		switch {
		case err == nil:
			history = chat.Messages
		case errors.Is(err, storage.ErrNotFound):
			// First message on a client-generated id starts a fresh chat.
		default:
			s.logger.Error("load chat failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "failed to load chat")
			return
		}
	}

	reply, newHistory := s.orchestrator.Reply(r.Context(), req.Message, history, s.summaries.Get(user.ID))

	chat := &models.Chat{
		UserID:    user.ID,
		ChatID:    chatID,
		Title:     utils.Truncate(req.Message, chatTitleLen),
		Messages:  newHistory,
		CreatedAt: time.Now(),
	}
	if err := s.storage.UpsertChat(r.Context(), chat); err != nil {
		s.logger.Error("persist chat failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to save chat")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"reply":   reply,
		"chat_id": chatID,
	})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	chats, err := s.storage.ListChats(r.Context(), user.ID)
	if err != nil {
		s.logger.Error("list chats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "chats": chats})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	chatID := chi.URLParam(r, "chat_id")
	chat, err := s.storage.GetChat(r.Context(), user.ID, chatID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondJSON(w, http.StatusNotFound, map[string]any{
				"success": false,
				"message": "Chat not found",
			})
			return
		}
		s.logger.Error("get chat failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "messages": chat.Messages})
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	// No row is written until the first message arrives.
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true, "chat_id": uuid.New().String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userCount, err := s.storage.CountUsers(ctx)
	if err != nil {
		s.logger.Error("status: count users failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to read status")
		return
	}
	chatCount, err := s.storage.CountChats(ctx)
	if err != nil {
		s.logger.Error("status: count chats failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "failed to read status")
		return
	}

	resp := map[string]any{
		"users": userCount,
		"chats": chatCount,
	}
	if s.retriever != nil {
		resp["vector_index_size"] = s.retriever.Size()
	}
	resp["config"] = map[string]any{
		"pubmed_term":          s.config.PubMed.Term,
		"recent_days":          s.config.PubMed.RecentDays,
		"max_articles":         s.config.PubMed.MaxArticles,
		"chunk_size":           s.config.Chunking.ChunkSize,
		"chunk_overlap":        s.config.Chunking.ChunkOverlap,
		"embedding_dimensions": s.config.Embedding.Dimensions,
		"retrieval_top_k":      s.config.Retrieval.TopK,
		"database_path":        s.config.Storage.DatabasePath,
		"index_path":           s.config.Storage.IndexPath,
	}
	if diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.IndexPath); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
