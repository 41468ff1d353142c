package control

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/RedPaladin7/battlelink/internal/battle"
	"github.com/RedPaladin7/battlelink/internal/catalogue"
	"github.com/RedPaladin7/battlelink/internal/dispatch"
	"github.com/RedPaladin7/battlelink/internal/protocol"
	"github.com/RedPaladin7/battlelink/internal/session"
)

// fakeDriver records what was asked of it and returns whatever error (if
// any) the test configured.
type fakeDriver struct {
	attackMove  string
	attackBoost bool
	armed       bool
	chatText    string
	chatSticker string

	attackErr error
	armErr    error
	chatErr   error
}

func (f *fakeDriver) Attack(moveName string, useAttackBoost bool) error {
	if f.attackErr != nil {
		return f.attackErr
	}
	f.attackMove = moveName
	f.attackBoost = useAttackBoost
	return nil
}

func (f *fakeDriver) ArmDefenseBoost() error {
	if f.armErr != nil {
		return f.armErr
	}
	f.armed = true
	return nil
}

func (f *fakeDriver) SendChatText(text string) error {
	if f.chatErr != nil {
		return f.chatErr
	}
	f.chatText = text
	return nil
}

func (f *fakeDriver) SendChatSticker(stickerData string) error {
	if f.chatErr != nil {
		return f.chatErr
	}
	f.chatSticker = stickerData
	return nil
}

func newTestEngine(t *testing.T) *dispatch.Engine {
	t.Helper()
	cat := catalogue.Default()
	eng, err := dispatch.New(session.RoleHost, cat, "Pikachu", protocol.ModeP2P)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return eng
}

func newTestServer(t *testing.T) (*Server, *fakeDriver, *dispatch.Engine) {
	t.Helper()
	driver := &fakeDriver{}
	engine := newTestEngine(t)
	return NewServer("127.0.0.1:0", driver, engine), driver, engine
}

// router rebuilds the mux.Router Run() would install, without binding a
// socket, so handlers can be exercised through httptest directly.
func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(enableCORS)
	r.HandleFunc("/api/attack", makeHTTPHandlerFunc(s.handleAttack)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/defend", makeHTTPHandlerFunc(s.handleDefend)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/chat", makeHTTPHandlerFunc(s.handleChat)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/state", makeHTTPHandlerFunc(s.handleGetState)).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/health", makeHTTPHandlerFunc(s.handleHealth)).Methods("GET", "OPTIONS")
	return r
}

func doRequest(t *testing.T, r *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleAttackDelegatesToDriver(t *testing.T) {
	s, driver, _ := newTestServer(t)
	rec := doRequest(t, s.router(), http.MethodPost, "/api/attack", AttackRequest{Move: "Ember", UseAttackBoost: true})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if driver.attackMove != "Ember" || !driver.attackBoost {
		t.Fatalf("driver did not receive the expected attack intent: %+v", driver)
	}
}

func TestHandleAttackRejectsMissingMove(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s.router(), http.MethodPost, "/api/attack", AttackRequest{})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing move, got %d", rec.Code)
	}
}

func TestHandleAttackMapsNotYourTurnToConflict(t *testing.T) {
	s, driver, _ := newTestServer(t)
	driver.attackErr = dispatch.ErrNotYourTurn
	rec := doRequest(t, s.router(), http.MethodPost, "/api/attack", AttackRequest{Move: "Ember"})

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for not-your-turn, got %d", rec.Code)
	}
}

func TestHandleAttackMapsSessionTerminatedToGone(t *testing.T) {
	s, driver, _ := newTestServer(t)
	driver.attackErr = dispatch.ErrSessionTerminated
	rec := doRequest(t, s.router(), http.MethodPost, "/api/attack", AttackRequest{Move: "Ember"})

	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410 for a terminated session, got %d", rec.Code)
	}
}

func TestHandleDefendArmsBoost(t *testing.T) {
	s, driver, _ := newTestServer(t)
	rec := doRequest(t, s.router(), http.MethodPost, "/api/defend", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !driver.armed {
		t.Fatalf("expected the driver's defense boost to be armed")
	}
}

func TestHandleChatRequiresTextOrSticker(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s.router(), http.MethodPost, "/api/chat", ChatRequest{})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty chat message, got %d", rec.Code)
	}
}

func TestHandleChatSendsText(t *testing.T) {
	s, driver, _ := newTestServer(t)
	rec := doRequest(t, s.router(), http.MethodPost, "/api/chat", ChatRequest{Text: "gg"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if driver.chatText != "gg" {
		t.Fatalf("expected the driver to receive the chat text, got %+v", driver)
	}
}

func TestHandleGetStateReflectsSession(t *testing.T) {
	s, _, engine := newTestServer(t)
	engine.Session.Opponent = &battle.Combatant{Name: "Joinermon", MaxHP: 40, CurrentHP: 40}

	rec := doRequest(t, s.router(), http.MethodGet, "/api/state", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp StateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Role != string(session.RoleHost) {
		t.Fatalf("expected role %q, got %q", session.RoleHost, resp.Role)
	}
	if resp.Opponent == nil || resp.Opponent.Name != "Joinermon" {
		t.Fatalf("expected opponent snapshot to be included, got %+v", resp.Opponent)
	}
}

func TestHandleHealthReportsPhase(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s.router(), http.MethodGet, "/api/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Fatalf("expected healthy status, got %+v", resp)
	}
	if resp["phase"] != string(session.PhaseHandshaking) {
		t.Fatalf("expected phase %q, got %+v", session.PhaseHandshaking, resp)
	}
}
