package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ergochat/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rollforge/replika"
	"github.com/rollforge/replika/examples"
	"github.com/rollforge/replika/transport"
	"github.com/rollforge/replika/utils"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("listen"),
	readline.PcItem("connect"),
	readline.PcItem("add"),
	readline.PcItem("spawn"),
	readline.PcItem("construct"),
	readline.PcItem("destruct"),
	readline.PcItem("scope"),
	readline.PcItem("move"),
	readline.PcItem("list"),
	readline.PcItem("peers"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const usage = `commands:
  listen <tcp://host:port>       accept peers
  connect <tcp://host:port>      dial a peer
  add <peer>                     opt a peer into replication
  spawn <name>                   create a local cube
  construct <name>               replicate a cube to all participants
  destruct <name>                tear a cube down remotely
  scope <name> on|off            toggle visibility on all participants
  move <name> <x> <y> <z>        move and signal serialize
  list                           show local cubes
  peers                          show participants
  exit`

func main() {
	configPath := flag.String("config", "", "TOML config file")
	metricsAddr := flag.String("metrics", "", "serve /metrics on this address")
	tick := flag.Duration("tick", 50*time.Millisecond, "dispatch interval")
	flag.Parse()

	log := utils.NewDefaultLogger(slog.LevelInfo)

	opts, err := replika.LoadOptions(*configPath)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}

	mgr := replika.NewManager(log, opts)
	world := examples.NewWorld(log)
	mgr.SetCallbacks(world)
	mgr.SetNetworkIDLookup(world.IDs)
	mgr.SetAutoParticipateNewConnections(true)

	link := replika.NewLink(mgr)
	net := transport.NewNet(log, nil, link.Install, link.Destroy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(*tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mgr.Tick()
			}
		}
	}()

	if *metricsAddr != "" {
		replika.RegisterMetrics(prometheus.DefaultRegisterer)
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
			}
		}()
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "◆ ",
		HistoryFile:     "/tmp/replika.history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := strings.Split(line, " ")
		cmd := args[0]
		args = args[1:]

		switch cmd {
		case "help":
			fmt.Println(usage)

		case "listen":
			if len(args) != 1 {
				fmt.Println("listen <tcp://host:port>")
				break
			}
			if err := net.Listen(ctx, args[0]); err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
			}

		case "connect":
			if len(args) != 1 {
				fmt.Println("connect <tcp://host:port>")
				break
			}
			if err := net.Connect(ctx, args[0]); err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
			}

		case "add":
			if len(args) != 1 {
				fmt.Println("add <peer>")
				break
			}
			mgr.AddParticipant(args[0])

		case "spawn":
			if len(args) != 1 {
				fmt.Println("spawn <name>")
				break
			}
			world.Add(examples.NewCube(args[0]))

		case "construct":
			if c := cubeArg(world, args); c != nil {
				mgr.Construct(c, "", true)
			}

		case "destruct":
			if c := cubeArg(world, args); c != nil {
				mgr.Destruct(c, "", true)
			}

		case "scope":
			if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
				fmt.Println("scope <name> on|off")
				break
			}
			if c := cubeArg(world, args[:1]); c != nil {
				mgr.SetScope(c, args[1] == "on", "", true)
			}

		case "move":
			if len(args) != 4 {
				fmt.Println("move <name> <x> <y> <z>")
				break
			}
			c := cubeArg(world, args[:1])
			if c == nil {
				break
			}
			x, errx := strconv.ParseFloat(args[1], 64)
			y, erry := strconv.ParseFloat(args[2], 64)
			z, errz := strconv.ParseFloat(args[3], 64)
			if errx != nil || erry != nil || errz != nil {
				fmt.Println("move <name> <x> <y> <z>")
				break
			}
			c.Move(x, y, z)
			mgr.SignalSerializeNeeded(c, "", true)

		case "list":
			for i := 0; i < mgr.ReplicaCount(); i++ {
				if c, ok := mgr.ReplicaAt(i).(*examples.Cube); ok {
					fmt.Printf("%s\t%x\t(%.1f %.1f %.1f)\n", c.Name, uint64(c.NetworkID()), c.X, c.Y, c.Z)
				}
			}

		case "peers":
			fmt.Printf("%d participants\n", mgr.ParticipantCount())

		case "exit", "quit":
			cancel()
			_ = net.Close()
			os.Exit(0)

		default:
			_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}
	}

	cancel()
	_ = net.Close()
}

func cubeArg(world *examples.World, args []string) *examples.Cube {
	if len(args) != 1 {
		fmt.Println("expected a cube name")
		return nil
	}
	c := world.Get(replika.NameID(args[0]))
	if c == nil {
		_, _ = fmt.Fprintf(os.Stderr, "no such cube: %s\n", args[0])
	}
	return c
}
