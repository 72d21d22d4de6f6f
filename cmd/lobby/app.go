package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/adwski/p2p-lobby/lobby"
	"github.com/adwski/p2p-lobby/model"
	wstransport "github.com/adwski/p2p-lobby/transport/websocket"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("lobby", pflag.ContinueOnError)

	var (
		configPath = fs.StringP("config", "c", "", "path to yaml config file")
		relayAddr  = fs.StringP("relay", "r", "", "relay endpoint (overrides config)")
		peerID     = fs.StringP("peer-id", "p", "", "peer id (generated when empty)")
		logLevel   = fs.StringP("log-level", "l", "", "log level (overrides config)")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if *relayAddr != "" {
		cfg.Relay = *relayAddr
	}
	if *peerID != "" {
		cfg.PeerID = *peerID
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	tr := wstransport.New(wstransport.Config{
		Logger: &logger,
		PeerID: cfg.PeerID,
	})
	eng := lobby.NewEngine(lobby.Config{
		Logger:    &logger,
		Transport: tr,
		Settings:  cfg.settings(),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = eng.Start(ctx, cfg.Relay); err != nil {
		logger.Fatal().Err(err).Str("relay", cfg.Relay).Msg("failed to start lobby")
	}
	defer func() {
		_ = tr.Close()
	}()

	go printEvents(ctx, eng)

	fmt.Printf("peer: %s relay: %s\n", eng.PeerID(), cfg.Relay)
	fmt.Println("type 'help' for commands")
	repl(eng)
}

func printEvents(ctx context.Context, eng *lobby.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eng.Events():
			switch {
			case ev.Kind == model.KindTableMsg:
				fmt.Printf("\n[%s] from %s: %s\n> ", ev.Kind, ev.From, string(ev.Message))
			case ev.Table != nil:
				fmt.Printf("\n[%s] from %s table=%s/%q members=%v open=%d\n> ",
					ev.Kind, ev.From, ev.Table.TableID, ev.Table.Name,
					ev.Table.JoinedPeers, len(ev.Table.RequiredSlots))
			default:
				fmt.Printf("\n[%s] from %s\n> ", ev.Kind, ev.From)
			}
		}
	}
}

func repl(eng *lobby.Engine) {
	s := bufio.NewScanner(os.Stdin)
	prompt := func() { fmt.Print("> ") }
	prompt()
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			prompt()
			continue
		}
		args := strings.Fields(line)
		switch strings.ToLower(args[0]) {
		case "help":
			printHelp()
		case "whoami":
			fmt.Println("peer:", eng.PeerID())
		case "create":
			// create <name> [seats]
			name := "Table"
			seats := 1
			if len(args) > 1 {
				name = args[1]
			}
			if len(args) > 2 {
				seats = mustInt(args[2])
			}
			t, err := eng.CreateTable(lobby.CreateParams{
				Name:      name,
				OpenSeats: seats,
				Info:      map[string]string{"via": "cli"},
				Announce:  true,
			})
			if err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println("created:", t.TableID)
			}
		case "tables":
			list := eng.JoinedTables(lobby.Filter{})
			if len(list) == 0 {
				fmt.Println("(no tables)")
			}
			for i, t := range list {
				fmt.Printf("- [%d] %s/%q owner=%s members=%v open=%d\n",
					i, t.TableID, t.Name, t.OwnerID, t.JoinedPeers, len(t.RequiredSlots))
			}
		case "cache":
			anns := eng.Announcements()
			if len(anns) == 0 {
				fmt.Println("(cache empty)")
			}
			for i, a := range anns {
				fmt.Printf("- [%d] %s/%q owner=%s open=%d (announced by %s)\n",
					i, a.Table.TableID, a.Table.Name, a.Table.OwnerID,
					len(a.Table.RequiredSlots), a.From)
			}
		case "join":
			// join <cacheIndex>
			if len(args) < 2 {
				fmt.Println("usage: join <cacheIndex>")
				break
			}
			anns := eng.Announcements()
			idx := mustInt(args[1])
			if idx < 0 || idx >= len(anns) {
				fmt.Println("no such cache entry; see 'cache'")
				break
			}
			res, err := eng.JoinTable(anns[idx].Table, 0)
			if err != nil {
				fmt.Println("error:", err)
				break
			}
			fmt.Println("join pending...")
			go func() {
				r := <-res
				if r.Err != nil {
					fmt.Printf("\njoin failed: %v\n> ", r.Err)
				} else {
					fmt.Printf("\njoined %s/%q members=%v\n> ", r.Table.TableID, r.Table.Name, r.Table.JoinedPeers)
				}
			}()
		case "send":
			// send <tableIndex> <text...>
			if len(args) < 3 {
				fmt.Println("usage: send <tableIndex> <text>")
				break
			}
			list := eng.JoinedTables(lobby.Filter{})
			idx := mustInt(args[1])
			if idx < 0 || idx >= len(list) {
				fmt.Println("no such table; see 'tables'")
				break
			}
			text, _ := json.Marshal(strings.Join(args[2:], " "))
			ok, err := eng.SendToTable(list[idx], text)
			if err != nil {
				fmt.Println("error:", err)
			} else if !ok {
				fmt.Println("not sent")
			} else {
				fmt.Println("sent")
			}
		case "leave":
			// leave <tableIndex>
			if len(args) < 2 {
				fmt.Println("usage: leave <tableIndex>")
				break
			}
			list := eng.JoinedTables(lobby.Filter{})
			idx := mustInt(args[1])
			if idx < 0 || idx >= len(list) {
				fmt.Println("no such table; see 'tables'")
				break
			}
			ok, err := eng.LeaveTable(list[idx])
			if err != nil {
				fmt.Println("error:", err)
			} else if !ok {
				fmt.Println("not left (table unknown)")
			} else {
				fmt.Println("left")
			}
		case "capture":
			// capture on|off
			if len(args) < 2 {
				fmt.Println("usage: capture on|off")
				break
			}
			eng.SetCaptureMode(args[1] == "on")
			fmt.Println("capture:", args[1])
		case "dump":
			spew.Dump(eng.JoinedTables(lobby.Filter{}))
			spew.Dump(eng.Announcements())
		case "quit", "exit":
			fmt.Println("bye")
			return
		default:
			fmt.Println("unknown command; type 'help'")
		}
		prompt()
	}
}

func printHelp() {
	fmt.Println(`commands:
  whoami
  create <name> [seats]
  tables
  cache
  join <cacheIndex>
  send <tableIndex> <text>
  leave <tableIndex>
  capture on|off
  dump
  quit`)
}

func mustInt(s string) int { v, _ := strconv.Atoi(s); return v }
