// Command battlelink runs one side of a two-player UDP battle: host,
// joiner, or spectator, each optionally fronted by an HTTP control API
// (internal/control) a driver can issue intents against. Grounded on the
// teacher's root main.go: flag-parsed configuration, a logrus text
// formatter, a startup banner, and signal-driven shutdown.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RedPaladin7/battlelink/internal/catalogue"
	"github.com/RedPaladin7/battlelink/internal/control"
	"github.com/RedPaladin7/battlelink/internal/peer"
	"github.com/RedPaladin7/battlelink/internal/protocol"
	"github.com/RedPaladin7/battlelink/internal/session"
	"github.com/RedPaladin7/battlelink/internal/transport"
)

const defaultVersion = "1.0.0"

func main() {
	var (
		role        = flag.String("role", "", "Battle role: host, joiner, or spectator (required)")
		name        = flag.String("name", "Player", "Display name announced to the other side")
		pokemon     = flag.String("pokemon", "", "Catalogue name of the combatant to field (required for host/joiner)")
		listenAddr  = flag.String("listen", ":9999", "UDP address to bind (\"host:port\" or \":port\")")
		connectAddr = flag.String("connect", "", "Host address to connect to (required for joiner/spectator)")
		apiAddr     = flag.String("api-addr", "localhost:8080", "HTTP control API address (host/joiner only)")
		modeFlag    = flag.String("mode", "p2p", "Communication mode: p2p or broadcast")
		seed        = flag.Int64("seed", 0, "Shared RNG seed to offer a joiner (host only; 0 picks one at random)")
		catalogPath = flag.String("catalogue", "", "CSV combatant roster to load instead of the built-in roster")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		version     = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("battlelink v%s\n", defaultVersion)
		os.Exit(0)
	}

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("invalid log level: %s", *logLevel)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	mode := protocol.ModeP2P
	if *modeFlag == "broadcast" {
		mode = protocol.ModeBroadcast
	}

	cat := catalogue.Catalogue(catalogue.Default())
	if *catalogPath != "" {
		loaded, err := catalogue.LoadCSV(*catalogPath)
		if err != nil {
			logrus.Fatalf("load catalogue: %s", err)
		}
		cat = loaded
	}

	logrus.Info("===========================================")
	logrus.Info("  battlelink")
	logrus.Info("===========================================")
	logrus.Infof("Version:  %s", defaultVersion)
	logrus.Infof("Role:     %s", *role)
	logrus.Infof("Listen:   %s", *listenAddr)
	logrus.Infof("Mode:     %s", mode)
	logrus.Info("===========================================")

	sock, err := transport.Listen(*listenAddr, mode == protocol.ModeBroadcast)
	if err != nil {
		logrus.Fatalf("bind socket: %s", err)
	}

	switch *role {
	case "host":
		runHost(sock, *name, *pokemon, cat, mode, *seed, *apiAddr)
	case "joiner":
		runJoiner(sock, *name, *pokemon, cat, mode, *connectAddr, *apiAddr)
	case "spectator":
		runSpectator(sock, *name, *connectAddr)
	default:
		logrus.Fatalf("unknown -role %q: must be host, joiner, or spectator", *role)
	}
}

func runHost(sock *transport.Socket, name, pokemon string, cat catalogue.Catalogue, mode protocol.CommunicationMode, seed int64, apiAddr string) {
	host, err := peer.NewHost(sock, name, pokemon, cat, mode)
	if err != nil {
		logrus.Fatalf("new host: %s", err)
	}
	host.Serve()
	logrus.Infof("waiting for a joiner to connect to %s", host.LocalAddr())

	go func() {
		joinerAddr := <-host.HandshakeRequests()
		actualSeed := seed
		if actualSeed == 0 {
			actualSeed, err = session.GenerateSeed()
			if err != nil {
				logrus.Fatalf("generate seed: %s", err)
			}
		}
		if err := host.ApproveHandshake(joinerAddr, actualSeed); err != nil {
			logrus.Errorf("approve handshake: %s", err)
			return
		}
		logrus.Infof("joiner %s accepted, seed=%d", joinerAddr, actualSeed)
	}()

	api := control.NewServer(apiAddr, host, host.Battle)
	logrus.Infof("control API listening on http://%s", apiAddr)
	go mustServe(api)

	waitForShutdown(host.Engine)
}

func runJoiner(sock *transport.Socket, name, pokemon string, cat catalogue.Catalogue, mode protocol.CommunicationMode, connectTo, apiAddr string) {
	if connectTo == "" {
		logrus.Fatal("joiner requires -connect")
	}
	joiner, err := peer.NewJoiner(sock, name, pokemon, cat, mode)
	if err != nil {
		logrus.Fatalf("new joiner: %s", err)
	}
	hostAddr, err := transport.ResolveAddr(connectTo)
	if err != nil {
		logrus.Fatalf("resolve -connect address: %s", err)
	}

	joiner.Serve()
	if err := joiner.Connect(hostAddr); err != nil {
		logrus.Fatalf("connect to host: %s", err)
	}
	logrus.Infof("handshake sent to %s, waiting for battle setup", hostAddr)

	api := control.NewServer(apiAddr, joiner, joiner.Battle)
	logrus.Infof("control API listening on http://%s", apiAddr)
	go mustServe(api)

	waitForShutdown(joiner.Engine)
}

func runSpectator(sock *transport.Socket, name, connectTo string) {
	if connectTo == "" {
		logrus.Fatal("spectator requires -connect")
	}
	spectator := peer.NewSpectator(sock, name)
	hostAddr, err := transport.ResolveAddr(connectTo)
	if err != nil {
		logrus.Fatalf("resolve -connect address: %s", err)
	}

	spectator.Serve()
	if err := spectator.Connect(hostAddr); err != nil {
		logrus.Fatalf("connect to host: %s", err)
	}
	logrus.Infof("spectator request sent to %s", hostAddr)

	go printEvents(spectator)
	waitForShutdown(spectator.Engine)
}

// printEvents logs each battle update a spectator receives, replacing
// original_source/peers/spectator.py's direct console prints.
func printEvents(s *peer.Spectator) {
	for ev := range s.Events() {
		switch ev.Kind {
		case peer.EventConnected:
			logrus.Info("connected to the battle")
		case peer.EventChat:
			logrus.Infof("%s: %s", ev.ChatSender, ev.ChatText)
		case peer.EventBattleSetup:
			logrus.Infof("combatant revealed: %s", ev.PokemonName)
		case peer.EventAttack:
			logrus.Infof("move used: %s", ev.MoveName)
		case peer.EventDamage:
			logrus.Infof("%s (%d HP remaining)", ev.StatusMessage, ev.DefenderHPRemaining)
		case peer.EventGameOver:
			logrus.Infof("battle over: %s defeated %s", ev.Winner, ev.Loser)
		}
	}
}

func mustServe(s *control.Server) {
	if err := s.Run(); err != nil {
		logrus.Fatalf("control API: %s", err)
	}
}

// waitForShutdown blocks until an interrupt or SIGTERM arrives, then closes
// the engine's socket so its receive loop unblocks and exits.
func waitForShutdown(e *peer.Engine) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logrus.Info("shutdown signal received, closing connection")
	if err := e.Close(); err != nil {
		logrus.Warnf("close socket: %s", err)
	}
	time.Sleep(100 * time.Millisecond)
}
