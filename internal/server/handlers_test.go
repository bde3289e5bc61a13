package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap"

	"medichat/internal/auth"
	"medichat/internal/config"
	"medichat/internal/models"
	"medichat/internal/storage"
)

type mockOrchestrator struct {
	replyFunc     func(ctx context.Context, userInput string, history []models.Message, healthSummary string) (string, []models.Message)
	summarizeFunc func(ctx context.Context, chats []models.Chat) string
}

func (m *mockOrchestrator) Reply(ctx context.Context, userInput string, history []models.Message, healthSummary string) (string, []models.Message) {
	if m.replyFunc != nil {
		return m.replyFunc(ctx, userInput, history, healthSummary)
	}
	if len(history) == 0 {
		history = []models.Message{{Role: models.RoleSystem, Content: "persona"}}
	}
	history = append(history,
		models.Message{Role: models.RoleUser, Content: userInput},
		models.Message{Role: models.RoleAssistant, Content: "mock reply"})
	return "mock reply", history
}

func (m *mockOrchestrator) SummarizeHistory(ctx context.Context, chats []models.Chat) string {
	if m.summarizeFunc != nil {
		return m.summarizeFunc(ctx, chats)
	}
	return ""
}

type mockRetriever struct{ size int }

func (m *mockRetriever) Size() int { return m.size }

func newTestServer(t *testing.T, orch Orchestrator) (*Server, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(t.TempDir() + "/db.sqlite")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if orch == nil {
		orch = &mockOrchestrator{}
	}
	srv := NewServer(store, auth.NewService("test-secret"), orch, &mockRetriever{size: 5}, cfg, zap.NewNop())
	return srv, store
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func registerAndLogin(t *testing.T, srv *Server, username string) string {
	t.Helper()
	router := srv.Router()
	creds := map[string]string{"username": username, "password": "secret"}
	if w := doJSON(t, router, http.MethodPost, "/api/v1/register", "", creds); w.Code != http.StatusOK {
		t.Fatalf("register status %d: %s", w.Code, w.Body)
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/login", "", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("login status %d: %s", w.Code, w.Body)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out.Token
}

func TestRegister_Duplicate(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()
	creds := map[string]string{"username": "alice", "password": "pw"}

	if w := doJSON(t, router, http.MethodPost, "/api/v1/register", "", creds); w.Code != http.StatusOK {
		t.Fatalf("first register status %d", w.Code)
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/register", "", creds)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate register status %d, want 409", w.Code)
	}
	if !strings.Contains(w.Body.String(), "already exists") {
		t.Errorf("body = %s", w.Body)
	}
}

func TestRegister_MissingFields(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/register", "", map[string]string{"username": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status %d, want 400", w.Code)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()
	doJSON(t, router, http.MethodPost, "/api/v1/register", "", map[string]string{"username": "bob", "password": "right"})

	w := doJSON(t, router, http.MethodPost, "/api/v1/login", "", map[string]string{"username": "bob", "password": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/login", "", map[string]string{"username": "ghost", "password": "x"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unknown user status %d, want 401", w.Code)
	}
}

func TestLogin_SetsSessionCookie(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	router := srv.Router()
	creds := map[string]string{"username": "carol", "password": "pw"}
	doJSON(t, router, http.MethodPost, "/api/v1/register", "", creds)

	w := doJSON(t, router, http.MethodPost, "/api/v1/login", "", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName && c.Value != "" && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Error("no HttpOnly session cookie set")
	}
}

func TestChat_RequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/chat", "", map[string]string{"message": "hi"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status %d, want 401", w.Code)
	}
}

func TestChat_NewAndContinuedConversation(t *testing.T) {
	srv, store := newTestServer(t, nil)
	token := registerAndLogin(t, srv, "dave")
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/v1/chat", token, map[string]string{"message": "I have a headache"})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	var out struct {
		Success bool   `json:"success"`
		Reply   string `json:"reply"`
		ChatID  string `json:"chat_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.Reply != "mock reply" || out.ChatID == "" {
		t.Fatalf("response = %+v", out)
	}

	user, err := store.GetUserByUsername(context.Background(), "dave")
	if err != nil {
		t.Fatal(err)
	}
	chat, err := store.GetChat(context.Background(), user.ID, out.ChatID)
	if err != nil {
		t.Fatal(err)
	}
	if chat.Title != "I have a headache" {
		t.Errorf("title = %q", chat.Title)
	}
	if len(chat.Messages) != 3 {
		t.Fatalf("persisted %d messages, want system+user+assistant", len(chat.Messages))
	}

	// Second turn on the same chat id grows the same history.
	w = doJSON(t, router, http.MethodPost, "/api/v1/chat", token, map[string]string{
		"message": "It got worse", "chat_id": out.ChatID,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	chat, err = store.GetChat(context.Background(), user.ID, out.ChatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chat.Messages) != 5 {
		t.Errorf("persisted %d messages after second turn, want 5", len(chat.Messages))
	}
}

func TestChat_TitleTruncated(t *testing.T) {
	srv, store := newTestServer(t, nil)
	token := registerAndLogin(t, srv, "erin")

	long := strings.Repeat("a", 45)
	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/chat", token, map[string]string{"message": long})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var out struct {
		ChatID string `json:"chat_id"`
	}
	json.NewDecoder(w.Body).Decode(&out)

	user, _ := store.GetUserByUsername(context.Background(), "erin")
	chat, err := store.GetChat(context.Background(), user.ID, out.ChatID)
	if err != nil {
		t.Fatal(err)
	}
	if chat.Title != long[:30]+"..." {
		t.Errorf("title = %q", chat.Title)
	}

	// A title cut from a multi-byte message must stay whole characters.
	hindi := "मैं ठीक नहीं हूँ और मुझे बुखार भी है"
	w = doJSON(t, srv.Router(), http.MethodPost, "/api/v1/chat", token, map[string]string{"message": hindi})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	json.NewDecoder(w.Body).Decode(&out)
	chat, err = store.GetChat(context.Background(), user.ID, out.ChatID)
	if err != nil {
		t.Fatal(err)
	}
	if !utf8.ValidString(chat.Title) {
		t.Fatalf("title is not valid UTF-8: %q", chat.Title)
	}
	if want := string([]rune(hindi)[:30]) + "..."; chat.Title != want {
		t.Errorf("title = %q, want %q", chat.Title, want)
	}
}

func TestLogin_SummaryFlowsIntoChat(t *testing.T) {
	var gotSummary string
	orch := &mockOrchestrator{
		summarizeFunc: func(ctx context.Context, chats []models.Chat) string {
			return "Past migraines."
		},
		replyFunc: func(ctx context.Context, userInput string, history []models.Message, healthSummary string) (string, []models.Message) {
			gotSummary = healthSummary
			return "ok", append(history, models.Message{Role: models.RoleUser, Content: userInput})
		},
	}
	srv, _ := newTestServer(t, orch)
	token := registerAndLogin(t, srv, "frank")

	doJSON(t, srv.Router(), http.MethodPost, "/api/v1/chat", token, map[string]string{"message": "hello"})
	if gotSummary != "Past migraines." {
		t.Errorf("health summary = %q, want cached login summary", gotSummary)
	}
}

func TestLogin_SummarizationFailureDoesNotFailLogin(t *testing.T) {
	orch := &mockOrchestrator{
		summarizeFunc: func(ctx context.Context, chats []models.Chat) string { return "" },
	}
	srv, _ := newTestServer(t, orch)
	token := registerAndLogin(t, srv, "grace")
	if token == "" {
		t.Fatal("login failed")
	}
}

func TestLogout_ClearsSummary(t *testing.T) {
	var summaries []string
	orch := &mockOrchestrator{
		summarizeFunc: func(ctx context.Context, chats []models.Chat) string { return "old summary" },
		replyFunc: func(ctx context.Context, userInput string, history []models.Message, healthSummary string) (string, []models.Message) {
			summaries = append(summaries, healthSummary)
			return "ok", append(history, models.Message{Role: models.RoleUser, Content: userInput})
		},
	}
	srv, _ := newTestServer(t, orch)
	token := registerAndLogin(t, srv, "heidi")
	router := srv.Router()

	doJSON(t, router, http.MethodPost, "/api/v1/chat", token, map[string]string{"message": "one"})

	if w := doJSON(t, router, http.MethodPost, "/api/v1/logout", token, nil); w.Code != http.StatusOK {
		t.Fatalf("logout status %d", w.Code)
	}

	// The token is still valid until expiry; only the cached summary is gone.
	doJSON(t, router, http.MethodPost, "/api/v1/chat", token, map[string]string{"message": "two"})

	if len(summaries) != 2 || summaries[0] != "old summary" || summaries[1] != "" {
		t.Errorf("summaries = %v", summaries)
	}
}

func TestNewChat(t *testing.T) {
	srv, store := newTestServer(t, nil)
	token := registerAndLogin(t, srv, "ivan")

	w := doJSON(t, srv.Router(), http.MethodPost, "/api/v1/chats/new", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var out struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ChatID == "" {
		t.Fatal("no chat id returned")
	}

	// No row exists until the first message.
	user, _ := store.GetUserByUsername(context.Background(), "ivan")
	if _, err := store.GetChat(context.Background(), user.ID, out.ChatID); err == nil {
		t.Error("chat row created before first message")
	}
}

func TestGetChat_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	token := registerAndLogin(t, srv, "judy")

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/chats/no-such-chat", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404", w.Code)
	}
}

func TestListChats(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	token := registerAndLogin(t, srv, "kate")
	router := srv.Router()

	doJSON(t, router, http.MethodPost, "/api/v1/chat", token, map[string]string{"message": "first"})
	doJSON(t, router, http.MethodPost, "/api/v1/chat", token, map[string]string{"message": "second"})

	w := doJSON(t, router, http.MethodGet, "/api/v1/chats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var out struct {
		Chats []models.Chat `json:"chats"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Chats) != 2 {
		t.Errorf("got %d chats, want 2", len(out.Chats))
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	w := doJSON(t, srv.Router(), http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	registerAndLogin(t, srv, "leo")

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body)
	}
	var out map[string]any
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["users"] != float64(1) {
		t.Errorf("users = %v", out["users"])
	}
	if out["vector_index_size"] != float64(5) {
		t.Errorf("vector_index_size = %v", out["vector_index_size"])
	}
	if _, ok := out["config"]; !ok {
		t.Error("status missing config section")
	}
}

func TestStatus_StorageFailureHidesInternals(t *testing.T) {
	srv, store := newTestServer(t, nil)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, srv.Router(), http.MethodGet, "/api/v1/status", "", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "failed to read status") {
		t.Errorf("body = %s, want generic error message", w.Body)
	}
	if strings.Contains(w.Body.String(), "database is closed") {
		t.Errorf("body leaks driver error: %s", w.Body)
	}
}
