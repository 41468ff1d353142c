package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/RedPaladin7/battlelink/internal/battle"
	"github.com/RedPaladin7/battlelink/internal/dispatch"
	"github.com/RedPaladin7/battlelink/internal/protocol"
)

// AttackRequest is the body of POST /api/attack.
type AttackRequest struct {
	Move           string `json:"move"`
	UseAttackBoost bool   `json:"use_attack_boost,omitempty"`
}

// ChatRequest is the body of POST /api/chat. Exactly one of Text or
// StickerData should be set; Text wins if both are (spec.md §4.7
// ContentType TEXT/STICKER).
type ChatRequest struct {
	Text        string `json:"text,omitempty"`
	StickerData string `json:"sticker_data,omitempty"`
}

// CombatantResponse is a read-only snapshot of one side's combatant.
type CombatantResponse struct {
	Name            string `json:"name"`
	MaxHP           int    `json:"max_hp"`
	CurrentHP       int    `json:"current_hp"`
	Attack          int    `json:"attack"`
	SpecialAttack   int    `json:"special_attack"`
	PhysicalDefense int    `json:"physical_defense"`
	SpecialDefense  int    `json:"special_defense"`
	Type1           string `json:"type1"`
	Type2           string `json:"type2,omitempty"`
}

func combatantResponse(c *battle.Combatant) *CombatantResponse {
	if c == nil {
		return nil
	}
	return &CombatantResponse{
		Name:            c.Name,
		MaxHP:           c.MaxHP,
		CurrentHP:       c.CurrentHP,
		Attack:          c.Attack,
		SpecialAttack:   c.SpecialAttack,
		PhysicalDefense: c.PhysicalDefense,
		SpecialDefense:  c.SpecialDefense,
		Type1:           c.Type1,
		Type2:           c.Type2,
	}
}

// BoostLedgerResponse mirrors session.BoostLedger for the driver.
type BoostLedgerResponse struct {
	AttackUsesRemaining  int `json:"attack_uses_remaining"`
	DefenseUsesRemaining int `json:"defense_uses_remaining"`
}

// ChatEntryResponse is one line of dispatch.Engine's ChatLog.
type ChatEntryResponse struct {
	Sender      string `json:"sender"`
	Text        string `json:"text,omitempty"`
	StickerData string `json:"sticker_data,omitempty"`
	IsSticker   bool   `json:"is_sticker"`
}

// StateResponse is the full snapshot GET /api/state returns.
type StateResponse struct {
	Role       string `json:"role"`
	Phase      string `json:"phase"`
	IsMyTurn   bool   `json:"is_my_turn"`
	Terminated bool   `json:"terminated"`

	Self     *CombatantResponse `json:"self,omitempty"`
	Opponent *CombatantResponse `json:"opponent,omitempty"`

	OwnBoosts      BoostLedgerResponse `json:"own_boosts"`
	OpponentBoosts BoostLedgerResponse `json:"opponent_boosts"`

	ChatLog []ChatEntryResponse `json:"chat_log"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	return JSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"phase":  string(s.battle.Session.Phase),
	})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) error {
	sess := s.battle.Session

	chatLog := make([]ChatEntryResponse, len(s.battle.ChatLog))
	for i, entry := range s.battle.ChatLog {
		chatLog[i] = ChatEntryResponse{
			Sender:      entry.Sender,
			Text:        entry.Text,
			StickerData: entry.StickerData,
			IsSticker:   entry.ContentType == protocol.ContentSticker,
		}
	}

	resp := StateResponse{
		Role:           string(sess.Role),
		Phase:          string(sess.Phase),
		IsMyTurn:       sess.IsMyTurn,
		Terminated:     sess.Terminated(),
		Self:           combatantResponse(sess.Self),
		Opponent:       combatantResponse(sess.Opponent),
		OwnBoosts:      BoostLedgerResponse{sess.OwnBoosts.AttackUsesRemaining, sess.OwnBoosts.DefenseUsesRemaining},
		OpponentBoosts: BoostLedgerResponse{sess.OpponentBoosts.AttackUsesRemaining, sess.OpponentBoosts.DefenseUsesRemaining},
		ChatLog:        chatLog,
	}
	return JSON(w, http.StatusOK, resp)
}

func (s *Server) handleAttack(w http.ResponseWriter, r *http.Request) error {
	var req AttackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("control: invalid request body: %w", err)
	}
	if req.Move == "" {
		return fmt.Errorf("control: move name is required")
	}
	if err := s.driver.Attack(req.Move, req.UseAttackBoost); err != nil {
		return err
	}
	return JSON(w, http.StatusOK, map[string]string{"status": "attack sent", "move": req.Move})
}

func (s *Server) handleDefend(w http.ResponseWriter, r *http.Request) error {
	if err := s.driver.ArmDefenseBoost(); err != nil {
		return err
	}
	return JSON(w, http.StatusOK, map[string]string{"status": "defense boost armed"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) error {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return fmt.Errorf("control: invalid request body: %w", err)
	}
	if req.Text == "" && req.StickerData == "" {
		return fmt.Errorf("control: chat message needs text or sticker_data")
	}

	var err error
	if req.Text != "" {
		err = s.driver.SendChatText(req.Text)
	} else {
		err = s.driver.SendChatSticker(req.StickerData)
	}
	if err != nil {
		return err
	}
	return JSON(w, http.StatusOK, map[string]string{"status": "chat sent"})
}

// statusFor maps a dispatch sentinel error to the HTTP status a driver
// should see, falling back to 400 for malformed requests and anything else.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrNotYourTurn),
		errors.Is(err, dispatch.ErrWrongPhase),
		errors.Is(err, dispatch.ErrNoBoostsRemaining),
		errors.Is(err, dispatch.ErrNoOpponentYet):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrSessionTerminated):
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}
