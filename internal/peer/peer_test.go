package peer

import (
	"net"
	"testing"
	"time"

	"github.com/RedPaladin7/battlelink/internal/battle"
	"github.com/RedPaladin7/battlelink/internal/protocol"
	"github.com/RedPaladin7/battlelink/internal/session"
	"github.com/RedPaladin7/battlelink/internal/transport"
)

// fixedCatalogue hands out hand-constructed stat lines so an attack round
// reliably one-shots the defender, the same way dispatch's tests do.
type fixedCatalogue struct {
	entries map[string]*battle.Combatant
}

func (f *fixedCatalogue) Get(name string) (*battle.Combatant, bool) {
	tmpl, ok := f.entries[name]
	if !ok {
		return nil, false
	}
	cp := *tmpl
	multipliers := make(map[string]float64, len(tmpl.TypeMultipliers))
	for k, v := range tmpl.TypeMultipliers {
		multipliers[k] = v
	}
	cp.TypeMultipliers = multipliers
	return &cp, true
}

func testCatalogue() *fixedCatalogue {
	return &fixedCatalogue{entries: map[string]*battle.Combatant{
		"hostmon": {
			Name: "Hostmon", MaxHP: 100, CurrentHP: 100,
			Attack: 100, SpecialAttack: 100, PhysicalDefense: 50, SpecialDefense: 10,
			Type1: "fire",
		},
		"joinermon": {
			Name: "Joinermon", MaxHP: 40, CurrentHP: 20,
			PhysicalDefense: 10, SpecialDefense: 10,
			TypeMultipliers: map[string]float64{"fire": 2.0},
		},
	}}
}

func loopbackSocket(t *testing.T) *transport.Socket {
	t.Helper()
	sock, err := transport.Listen("127.0.0.1:0", false)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { sock.Close() })
	return sock
}

// eventually polls cond until it reports true or timeout elapses.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition was not met within %v", timeout)
	}
}

func connectHostAndJoiner(t *testing.T) (*Host, *Joiner) {
	t.Helper()
	cat := testCatalogue()

	host, err := NewHost(loopbackSocket(t), "Ash", "hostmon", cat, protocol.ModeP2P)
	if err != nil {
		t.Fatalf("new host: %v", err)
	}
	joiner, err := NewJoiner(loopbackSocket(t), "Gary", "joinermon", cat, protocol.ModeP2P)
	if err != nil {
		t.Fatalf("new joiner: %v", err)
	}

	host.Serve()
	joiner.Serve()

	if err := joiner.Connect(host.LocalAddr()); err != nil {
		t.Fatalf("joiner connect: %v", err)
	}

	var joinerAddr net.Addr
	select {
	case joinerAddr = <-host.HandshakeRequests():
	case <-time.After(2 * time.Second):
		t.Fatalf("host never observed the joiner's handshake request")
	}

	if err := host.ApproveHandshake(joinerAddr, 42); err != nil {
		t.Fatalf("approve handshake: %v", err)
	}

	eventually(t, 2*time.Second, func() bool {
		return host.Battle.Session.Phase == session.PhaseWaitingForMove &&
			joiner.Battle.Session.Phase == session.PhaseWaitingForMove
	})
	return host, joiner
}

func TestHandshakeAndBattleSetupReachWaitingForMove(t *testing.T) {
	host, joiner := connectHostAndJoiner(t)

	if !host.Battle.Session.IsMyTurn {
		t.Fatalf("expected host to hold the first turn")
	}
	if joiner.Battle.Session.IsMyTurn {
		t.Fatalf("expected joiner not to hold the first turn")
	}
	if host.Battle.Session.Opponent == nil || host.Battle.Session.Opponent.Name != "Joinermon" {
		t.Fatalf("expected host to know the joiner's combatant, got %+v", host.Battle.Session.Opponent)
	}
	if joiner.Battle.Session.Opponent == nil || joiner.Battle.Session.Opponent.Name != "Hostmon" {
		t.Fatalf("expected joiner to know the host's combatant, got %+v", joiner.Battle.Session.Opponent)
	}
}

func TestFullAttackRoundEndsInGameOver(t *testing.T) {
	host, joiner := connectHostAndJoiner(t)

	if err := host.Attack("Ember", false); err != nil {
		t.Fatalf("host attack: %v", err)
	}

	eventually(t, 2*time.Second, func() bool {
		return host.Battle.Session.Terminated() && joiner.Battle.Session.Terminated()
	})

	if joiner.Battle.Session.Self.CurrentHP != 0 {
		t.Fatalf("expected joinermon to have fainted, hp=%d", joiner.Battle.Session.Self.CurrentHP)
	}
	if host.Battle.Session.Opponent.CurrentHP != 0 {
		t.Fatalf("expected host's view of joinermon to be fainted, hp=%d", host.Battle.Session.Opponent.CurrentHP)
	}
}

func TestSpectatorReceivesBattleEvents(t *testing.T) {
	host, _ := connectHostAndJoiner(t)

	spectator := NewSpectator(loopbackSocket(t), "Watcher")
	spectator.Serve()
	if err := spectator.Connect(host.LocalAddr()); err != nil {
		t.Fatalf("spectator connect: %v", err)
	}

	var connected Event
	select {
	case connected = <-spectator.Events():
	case <-time.After(2 * time.Second):
		t.Fatalf("spectator never received connection confirmation")
	}
	if connected.Kind != EventConnected {
		t.Fatalf("expected EventConnected first, got %+v", connected)
	}

	if err := host.Attack("Ember", false); err != nil {
		t.Fatalf("host attack: %v", err)
	}

	sawAttack, sawGameOver := false, false
	deadline := time.After(2 * time.Second)
	for !sawGameOver {
		select {
		case ev := <-spectator.Events():
			switch ev.Kind {
			case EventAttack:
				sawAttack = true
			case EventGameOver:
				sawGameOver = true
				if ev.Winner != "Hostmon" {
					t.Fatalf("expected Hostmon to win, got %+v", ev)
				}
			}
		case <-deadline:
			t.Fatalf("spectator did not observe the full battle (attack seen=%v, game over seen=%v)", sawAttack, sawGameOver)
		}
	}
	if !sawAttack {
		t.Fatalf("expected spectator to observe the attack announcement")
	}
}

func TestChatMessageIsDeliveredAcrossThePeerConnection(t *testing.T) {
	host, joiner := connectHostAndJoiner(t)

	if err := joiner.SendChatText("gg"); err != nil {
		t.Fatalf("send chat: %v", err)
	}

	eventually(t, 2*time.Second, func() bool {
		return len(host.Battle.ChatLog) == 1
	})
	if host.Battle.ChatLog[0].Text != "gg" {
		t.Fatalf("expected host to record the joiner's chat message, got %+v", host.Battle.ChatLog)
	}
}
