package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.aimuz.me/voicechat/agent"
	"go.aimuz.me/voicechat/control"
	"go.aimuz.me/voicechat/executor"
	"go.aimuz.me/voicechat/host"
	"go.aimuz.me/voicechat/message"
	"go.aimuz.me/voicechat/metrics"
	"go.aimuz.me/voicechat/poll"
	"go.aimuz.me/voicechat/recognizer"
	"go.aimuz.me/voicechat/state"
	"go.aimuz.me/voicechat/transport"
)

// replyTime is how long the simulated page streams a reply or reads it aloud.
const replyTime = 2 * time.Second

func newConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Run the agent and control surface against a simulated chat page",
		Long: `Run the agent and control surface in one process. Each stdin line is one
finalized utterance. Lines starting with "/" go to the control surface:

  /status            print the status line and state
  /toggle <field>    flip autoSendOn, autoSpeakOn, autoListenOn or showMore
  /set <field> on|off

The realtime URL picks the peer transport: ws:// and wss:// subscribe to the
hub over a websocket, http:// and https:// negotiate a WebRTC data channel
with the relay's /rtc/{channel} endpoint.`,
		RunE: runConsole,
	}
	cmd.Flags().String("realtime", "", "realtime channel URL (ws, wss, http or https); overrides the config")
	return cmd
}

func runConsole(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	url, err := cmd.Flags().GetString("realtime")
	if err != nil {
		return err
	}
	if url == "" {
		url = cfg.Realtime.URL
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	m := metrics.New(nil)
	out := cmd.OutOrStdout()

	peer, err := dialPeer(ctx, url, logger)
	if err != nil {
		return err
	}
	defer peer.Close()

	speech, speechIn := io.Pipe()
	registry := recognizer.NewRegistry()
	registry.Register(recognizer.NewLine(speech))
	defer registry.Close()

	capability, err := registry.Default("line")
	if err != nil {
		return fmt.Errorf("select recognizer: %w", err)
	}

	agentEnd, controlEnd := transport.NewLocalPair(0)
	a, err := agent.New(ctx, agentEnd, newConsolePage(out), capability, agent.Config{
		Lang: cfg.LanguageTag(),
		Executor: executor.Config{
			SubmitSettle: cfg.Timing.SubmitSettle.D(),
			SpeakSettle:  cfg.Timing.SpeakSettle.D(),
			ListenSettle: cfg.Timing.ListenSettle.D(),
		},
		Poll: poll.Config{
			Interval:    cfg.Timing.PollInterval.D(),
			MaxDuration: cfg.Timing.PollMaxDuration.D(),
		},
		Logger:  logger,
		Metrics: m,
	})
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	surface := control.New(ctx, controlEnd, peer, control.Config{
		AnnounceDelay: cfg.Timing.AnnounceDelay.D(),
		ActivityTTL:   cfg.Timing.ActivityTTL.D(),
		Logger:        logger,
		Metrics:       m,
	})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, run := range []func(context.Context) error{a.Run, surface.Run} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				errs <- err
				stop()
			}
		}()
	}

	go func() {
		readConsole(os.Stdin, speechIn, surface, out)
		stop()
	}()

	wg.Wait()
	_ = speechIn.Close()
	close(errs)
	return <-errs
}

type closingTransport interface {
	message.Transport
	Close() error
}

// dialPeer connects to the realtime channel, or returns an in-process channel
// with no peer on it when url is empty.
func dialPeer(ctx context.Context, url string, logger *slog.Logger) (closingTransport, error) {
	if url == "" {
		logger.Info("no realtime hub configured, peer channel is local only")
		peer, nobody := transport.NewLocalPair(0)
		go func() {
			for range nobody.Receive() {
			}
		}()
		return peer, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		dc, err := transport.DialDataChannel(dialCtx, transport.WebRTCConfig{URL: url, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("connect realtime peer: %w", err)
		}
		logger.Info("connected to realtime peer over webrtc", "url", url)
		return dc, nil
	}

	ws, err := transport.DialWebSocket(dialCtx, transport.WebSocketConfig{URL: url, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect realtime hub: %w", err)
	}
	logger.Info("connected to realtime hub", "url", url)
	return ws, nil
}

// readConsole routes stdin lines to the control surface or the recognizer.
func readConsole(in io.Reader, speech io.Writer, surface *control.Surface, out io.Writer) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if _, err := io.WriteString(speech, line+"\n"); err != nil {
				return
			}
			continue
		}

		fields := strings.Fields(strings.TrimPrefix(line, "/"))
		switch {
		case len(fields) == 0:
			fmt.Fprintln(out, "empty command")
		case fields[0] == "status":
			fmt.Fprintf(out, "%s | peer %s | %+v\n", surface.Status(), surface.PeerStatus(), surface.State())
		case fields[0] == "toggle" && len(fields) == 2:
			st, ok := surface.Toggle(state.Field(fields[1]))
			if !ok {
				fmt.Fprintf(out, "unknown field %q\n", fields[1])
				continue
			}
			fmt.Fprintf(out, "%+v\n", st)
		case fields[0] == "set" && len(fields) == 3 && (fields[2] == "on" || fields[2] == "off"):
			st, ok := surface.Set(state.Field(fields[1]), fields[2] == "on")
			if !ok {
				fmt.Fprintf(out, "unknown field %q\n", fields[1])
				continue
			}
			fmt.Fprintf(out, "%+v\n", st)
		default:
			fmt.Fprintf(out, "unknown command %q\n", line)
		}
	}
}

// newConsolePage returns a page that prints what the agent does to it and
// plays out a reply stream and a read-aloud for a fixed time.
func newConsolePage(out io.Writer) *host.MemoryPage {
	p := host.NewMemoryPage()
	p.Render(host.PromptInput)
	p.Render(host.SendButton)

	p.OnClick(host.SendButton, func(int) {
		text, _ := p.Value(host.PromptInput)
		fmt.Fprintf(out, "» sent: %s\n", text)
		p.SetValue(host.PromptInput, "")
		p.Render(host.StopStreaming)
		time.AfterFunc(replyTime, func() {
			p.Remove(host.StopStreaming)
			p.Render(host.ReadAloud)
			fmt.Fprintln(out, "« reply ready")
		})
	})
	p.OnClick(host.ReadAloud, func(int) {
		fmt.Fprintln(out, "« reading aloud")
		p.Render(host.StopSpeaking)
		time.AfterFunc(replyTime, func() { p.Remove(host.StopSpeaking) })
	})
	p.OnClick(host.StopStreaming, func(int) { p.Remove(host.StopStreaming) })
	p.OnClick(host.StopSpeaking, func(int) { p.Remove(host.StopSpeaking) })
	return p
}
