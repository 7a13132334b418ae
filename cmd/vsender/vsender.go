package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	protocol "rdt-rdt-pa/pkg"
)

var (
	cfg         = protocol.DefaultConfig()
	link        protocol.LinkConfig
	configPath  string
	logLevel    string
	metricsAddr string
	cwndTrace   string
)

var rootCmd = &cobra.Command{
	Use:   "vsender <host> <port> <file>",
	Short: "Send a file reliably over UDP.",
	Long: `vsender streams <file> to a vreceiver listening on <host>:<port>.

Segments lost or reordered by the network are recovered with selective-repeat
retransmission under slow-start/AIMD congestion control.
`,
	Args:          cobra.ExactArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSender,
}

func init() {
	fs := rootCmd.Flags()
	cfg.RegisterFlags(fs)
	fs.StringVar(&configPath, "config", "", "JSON config file; explicit flags take precedence")
	fs.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	fs.StringVar(&cwndTrace, "cwnd-trace", "", "write the congestion window trace (CSV) to this file")
	fs.IntVar(&link.DropEvery, "drop-every", 0, "emulate loss of every Nth outgoing datagram")
	fs.IntVar(&link.DupEvery, "dup-every", 0, "emulate duplication of every Nth outgoing datagram")
	fs.IntVar(&link.ReorderEvery, "reorder-every", 0, "emulate reordering by delaying every Nth outgoing datagram past the next")
	fs.StringVar(&link.LocalVIP, "local-vip", "", "virtual IPv4 address of this host")
	fs.StringVar(&link.RemoteVIP, "remote-vip", "", "virtual IPv4 address of the receiver")
}

func runSender(cmd *cobra.Command, args []string) error {
	if err := protocol.SetLogLevel(logLevel); err != nil {
		return err
	}
	if configPath != "" {
		if err := cfg.ApplyFile(configPath, cmd.Flags()); err != nil {
			return err
		}
	}

	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return errors.Wrapf(err, "port %q", args[1])
	}

	src, err := protocol.OpenSource(args[2])
	if err != nil {
		return err
	}
	defer src.Close()

	reg := prometheus.NewRegistry()
	opts := []protocol.Option{protocol.WithMetrics(protocol.NewMetrics(reg))}
	if cwndTrace != "" {
		f, err := os.Create(cwndTrace)
		if err != nil {
			return errors.Wrap(err, "create cwnd trace")
		}
		defer f.Close()
		opts = append(opts, protocol.WithTrace(protocol.NewTrace(f, "cwnd")))
	}

	udp, err := protocol.DialUDP(args[0], uint16(port))
	if err != nil {
		return err
	}
	ch, err := link.Wrap(udp)
	if err != nil {
		udp.Close()
		return err
	}

	sender, err := protocol.NewSender(ch, src, cfg, opts...)
	if err != nil {
		ch.Close()
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	runCtx, stop := context.WithCancel(ctx)
	g.Go(func() error {
		defer stop()
		return sender.Run(runCtx)
	})
	if metricsAddr != "" {
		g.Go(func() error { return protocol.ServeMetrics(runCtx, metricsAddr, reg) })
	}
	err = g.Wait()
	fmt.Println(sender.Status())
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "vsender:", err)
		cancel()
		os.Exit(1)
	}
}
