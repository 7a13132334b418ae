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
	recvTrace   string
)

var rootCmd = &cobra.Command{
	Use:   "vreceiver <port> <file>",
	Short: "Receive a file sent by vsender.",
	Long: `vreceiver listens on <port> and writes the stream from the first sender it
hears from into <file>, exiting once end of stream is acknowledged.
`,
	Args:          cobra.ExactArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runReceiver,
}

func init() {
	fs := rootCmd.Flags()
	cfg.RegisterFlags(fs)
	fs.StringVar(&configPath, "config", "", "JSON config file; explicit flags take precedence")
	fs.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	fs.StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	fs.StringVar(&recvTrace, "recv-trace", "", "write the arrival trace (CSV) to this file")
	fs.IntVar(&link.DropEvery, "drop-every", 0, "emulate loss of every Nth outgoing datagram")
	fs.IntVar(&link.DupEvery, "dup-every", 0, "emulate duplication of every Nth outgoing datagram")
	fs.IntVar(&link.ReorderEvery, "reorder-every", 0, "emulate reordering by delaying every Nth outgoing datagram past the next")
	fs.StringVar(&link.LocalVIP, "local-vip", "", "virtual IPv4 address of this host")
	fs.StringVar(&link.RemoteVIP, "remote-vip", "", "virtual IPv4 address of the sender")
}

func runReceiver(cmd *cobra.Command, args []string) error {
	if err := protocol.SetLogLevel(logLevel); err != nil {
		return err
	}
	if configPath != "" {
		if err := cfg.ApplyFile(configPath, cmd.Flags()); err != nil {
			return err
		}
	}

	port, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return errors.Wrapf(err, "port %q", args[0])
	}

	reg := prometheus.NewRegistry()
	opts := []protocol.Option{protocol.WithMetrics(protocol.NewMetrics(reg))}
	if recvTrace != "" {
		f, err := os.Create(recvTrace)
		if err != nil {
			return errors.Wrap(err, "create receive trace")
		}
		defer f.Close()
		opts = append(opts, protocol.WithTrace(protocol.NewTrace(f, "bytes", "seq")))
	}

	sink, err := protocol.CreateSink(args[1])
	if err != nil {
		return err
	}

	udp, err := protocol.ListenUDP(uint16(port))
	if err != nil {
		sink.Close()
		return err
	}
	ch, err := link.Wrap(udp)
	if err != nil {
		udp.Close()
		sink.Close()
		return err
	}

	receiver, err := protocol.NewReceiver(ch, sink, cfg, opts...)
	if err != nil {
		ch.Close()
		sink.Close()
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	runCtx, stop := context.WithCancel(ctx)
	g.Go(func() error {
		defer stop()
		return receiver.Run(runCtx)
	})
	if metricsAddr != "" {
		g.Go(func() error { return protocol.ServeMetrics(runCtx, metricsAddr, reg) })
	}
	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "vreceiver:", err)
		cancel()
		os.Exit(1)
	}
}
