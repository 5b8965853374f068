package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/goodieshq/godiode/internal/config"
	"github.com/goodieshq/godiode/internal/protocol"
	"github.com/goodieshq/godiode/internal/receiver"
	"github.com/goodieshq/godiode/internal/sender"
	"github.com/goodieshq/godiode/internal/utils"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage:
  godiode [--debug] [--quiet] [--config FILE] send <src_ip> <dst_ip> [options]
  godiode [--debug] [--quiet] [--config FILE] receive <listen_ip> [options]

Transfers a byte stream through a unidirectional network (a data diode)
over UDP. "send" reads standard input; "receive" writes standard output.
`)
	flag.PrintDefaults()
}

func main() {
	os.Exit(run())
}

func run() int {
	debug := flag.Bool("debug", false, "print DEBUG logging")
	quiet := flag.Bool("quiet", false, "only print warnings and errors")
	cfgPath := flag.String("config", "", "optional TOML config file with [send]/[receive] defaults")
	flag.Usage = usage
	flag.Parse()

	switch {
	case *debug:
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	case *quiet:
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	}

	var file *config.File
	if *cfgPath != "" {
		f, err := config.LoadFile(*cfgPath)
		if err != nil {
			log.Error().Err(err).Str("path", *cfgPath).Msg("Invalid config file")
			return 1
		}
		file = f
	}

	args := flag.Args()
	if len(args) < 1 {
		usage()
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "send":
		return runSend(ctx, args[1:], file)
	case "receive":
		return runReceive(ctx, args[1:], file)
	default:
		log.Error().Str("subcommand", args[0]).Msg("Unknown subcommand")
		usage()
		return 1
	}
}

func runSend(ctx context.Context, args []string, file *config.File) int {
	if len(args) < 2 {
		log.Error().Msg("send requires <src_ip> <dst_ip>")
		return 1
	}
	srcIP := net.ParseIP(args[0])
	dstIP := net.ParseIP(args[1])
	if srcIP == nil || dstIP == nil {
		log.Error().Str("src", args[0]).Str("dst", args[1]).Msg("Invalid IP address")
		return 1
	}

	cfg := config.NewSend()
	if file != nil {
		file.ApplySend(&cfg)
	}

	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	port := fs.Uint("port", uint(cfg.Port), "destination UDP port")
	rate := fs.Int64("rate", cfg.RateBytesPerSec, "target throughput in bytes per second")
	chunkBytes := fs.Int("chunk-bytes", cfg.ChunkBytes, "payload bytes per chunk")
	k := fs.Int("k", cfg.K, "data chunks per block")
	r := fs.Int("r", cfg.R, "parity chunks per block")
	redundantFinal := fs.Int("redundant-final", cfg.RedundantFinal, "rounds for the terminal block's packets")
	redundantInitial := fs.Int("redundant-initial", cfg.RedundantInitial, "rounds for the first block's packets")
	if err := fs.Parse(args[2:]); err != nil {
		return 1
	}

	cfg.Port = uint16(*port)
	cfg.RateBytesPerSec = *rate
	cfg.ChunkBytes = *chunkBytes
	cfg.K = *k
	cfg.R = *r
	cfg.RedundantFinal = *redundantFinal
	cfg.RedundantInitial = *redundantInitial

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	conn, err := net.DialUDP("udp",
		&net.UDPAddr{IP: srcIP},
		&net.UDPAddr{IP: dstIP, Port: int(cfg.Port)})
	if err != nil {
		log.Error().Err(err).Msg("Failed to open UDP socket")
		return 1
	}
	defer conn.Close()

	snd, err := sender.New(conn, os.Stdin, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize sender")
		return 1
	}
	return exitCode(snd.Run(ctx))
}

func runReceive(ctx context.Context, args []string, file *config.File) int {
	if len(args) < 1 {
		log.Error().Msg("receive requires <listen_ip>")
		return 1
	}
	listenIP := net.ParseIP(args[0])
	if listenIP == nil {
		log.Error().Str("listen", args[0]).Msg("Invalid IP address")
		return 1
	}

	cfg := config.NewReceive()
	if file != nil {
		file.ApplyReceive(&cfg)
	}

	fs := flag.NewFlagSet("receive", flag.ContinueOnError)
	port := fs.Uint("port", uint(cfg.Port), "UDP port to listen on")
	idleTimeout := fs.Float64("idle-timeout", cfg.IdleTimeout.Seconds(), "seconds of silence before closing out the transfer")
	chunkBytes := fs.Int("chunk-bytes", cfg.ChunkBytes, "payload bytes per chunk")
	k := fs.Int("k", cfg.K, "data chunks per block")
	r := fs.Int("r", cfg.R, "parity chunks per block")
	window := fs.Int("window", cfg.WindowBlocks, "max in-flight partial blocks")
	packetDetails := fs.String("packet-details", "", "write a CSV row per received datagram to this file")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	cfg.Port = uint16(*port)
	cfg.IdleTimeout = utils.SecondsToDuration(*idleTimeout)
	cfg.ChunkBytes = *chunkBytes
	cfg.K = *k
	cfg.R = *r
	cfg.WindowBlocks = *window

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Invalid configuration")
		return 1
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: listenIP, Port: int(cfg.Port)})
	if err != nil {
		log.Error().Err(err).Msg("Failed to bind UDP socket")
		return 1
	}
	defer conn.Close()

	rcv, err := receiver.New(conn, os.Stdout, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize receiver")
		return 1
	}

	if *packetDetails != "" {
		dump, err := receiver.OpenPacketDump(*packetDetails)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open packet details file")
			return 1
		}
		defer dump.Close()
		rcv.SetPacketDump(dump)
	}

	return exitCode(rcv.Run(ctx))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, protocol.ErrIncompleteStream):
		return 2
	default:
		log.Error().Err(err).Msg("Transfer failed")
		return 1
	}
}
