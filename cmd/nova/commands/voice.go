package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/haivivi/nova/pkg/audio/pcm"
	"github.com/haivivi/nova/pkg/cli"
	"github.com/haivivi/nova/pkg/gemini"
	"github.com/haivivi/nova/pkg/voice"
)

var voiceFlags struct {
	transport   string
	queue       string
	queueSize   int
	inputRate   int
	outputRate  int
	metricsAddr string
	model       string
	voiceName   string
}

var voiceCmd = &cobra.Command{
	Use:   "voice",
	Short: "Talk to Nova",
	Long: `Start a live voice conversation on the default microphone and speaker.

The view shows the session status, the recent transcript and log lines.
Speaking while Nova talks interrupts it. Ctrl-C ends the conversation.

Examples:
  nova voice
  nova voice --transport sdk --queue block
  nova voice --metrics-addr :9090`,
	RunE: runVoice,
}

func init() {
	f := voiceCmd.Flags()
	f.StringVar(&voiceFlags.transport, "transport", "", "live transport: ws or sdk (default: context transport or ws)")
	f.StringVar(&voiceFlags.queue, "queue", "", "capture queue policy: drop, unbounded, block (default: context queue_policy or drop)")
	f.IntVar(&voiceFlags.queueSize, "queue-size", 0, "capture queue size in frames (default: context queue_size or 64)")
	f.IntVar(&voiceFlags.inputRate, "input-rate", voice.InputSampleRate, "microphone sample rate in Hz")
	f.IntVar(&voiceFlags.outputRate, "output-rate", voice.OutputSampleRate, "speaker sample rate in Hz: 16000, 24000, 48000")
	f.StringVar(&voiceFlags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringVar(&voiceFlags.model, "model", "", "live model (default: context voice_model or "+voice.DefaultModel+")")
	f.StringVar(&voiceFlags.voiceName, "voice", "", "prebuilt voice name (default: context voice_name)")
	rootCmd.AddCommand(voiceCmd)
}

// sessionOptions builds the voice session options from flags and context.
func sessionOptions(cctx *cli.Context, metrics *voice.Metrics) ([]voice.Option, error) {
	policyName := voiceFlags.queue
	if policyName == "" {
		policyName = cctx.GetExtra(cli.KeyQueuePolicy)
	}
	policy, err := voice.ParseQueuePolicy(policyName)
	if err != nil {
		return nil, err
	}
	size := voiceFlags.queueSize
	if size == 0 {
		if size, err = cctx.ExtraInt(cli.KeyQueueSize, 0); err != nil {
			return nil, err
		}
	}

	live := voice.DefaultLiveConfig()
	if m := firstNonEmpty(voiceFlags.model, cctx.GetExtra(cli.KeyVoiceModel)); m != "" {
		live.Model = m
	}
	live.Voice = firstNonEmpty(voiceFlags.voiceName, cctx.GetExtra(cli.KeyVoiceName))

	return []voice.Option{
		voice.WithLiveConfig(live),
		voice.WithCaptureOptions(voice.WithQueue(policy, size)),
		voice.WithMetrics(metrics),
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func runVoice(cmd *cobra.Command, args []string) error {
	_, cctx, err := loadContext()
	if err != nil {
		return err
	}
	output, err := pcm.FormatForRate(voiceFlags.outputRate)
	if err != nil {
		return err
	}
	copts, err := clientOptions(cctx, voiceFlags.transport)
	if err != nil {
		return err
	}
	metrics := voice.NewMetrics("nova")
	opts, err := sessionOptions(cctx, metrics)
	if err != nil {
		return err
	}

	devices, err := openAudio(voiceFlags.inputRate, output)
	if err != nil {
		return err
	}
	defer devices.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	renderer := pcm.NewRenderer(output, devices.out)
	session := voice.NewSession(gemini.NewClientFactory(apiKey(cctx), copts...), devices.mic, renderer, opts...)

	view := newVoiceView(cmd.OutOrStdout())
	logs := cli.NewLogWriter(50)
	restore := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: logLevel()})))
	defer slog.SetDefault(restore)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return renderer.Run(gctx)
	})
	if voiceFlags.metricsAddr != "" {
		srv := &http.Server{Addr: voiceFlags.metricsAddr, Handler: metricsMux(metrics)}
		g.Go(func() error {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return session.Close()
	})
	g.Go(func() error {
		defer stop()
		if err := session.Start(gctx); err != nil && !errors.Is(err, voice.ErrStopped) {
			_ = session.Close()
		}
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		events := make(chan voice.Event)
		go func() {
			defer close(events)
			for ev := range session.Events() {
				events <- ev
			}
		}()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				view.apply(ev)
				if ev.Kind == voice.EventStatus && ev.Status == voice.StatusIdle {
					_ = session.Close()
				}
			case <-ticker.C:
			}
			view.draw(logs.Lines())
		}
	})

	err = g.Wait()
	renderer.Close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if e := session.Err(); e != nil {
		return e
	}
	return nil
}

func logLevel() slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func metricsMux(m *voice.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}

// voiceView renders the session on a terminal. Without a terminal it
// prints one line per event instead.
type voiceView struct {
	out    io.Writer
	styles cli.Styles
	fd     uintptr
	tty    bool

	mu         sync.Mutex
	status     voice.Status
	err        *voice.Error
	transcript []string
}

func newVoiceView(out io.Writer) *voiceView {
	v := &voiceView{out: out, styles: cli.NewStyles(cli.DefaultTheme)}
	if f, ok := out.(*os.File); ok && term.IsTerminal(f.Fd()) {
		v.fd = f.Fd()
		v.tty = true
	}
	return v
}

func (v *voiceView) apply(ev voice.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var line string
	switch ev.Kind {
	case voice.EventStatus:
		v.status = ev.Status
		line = "status: " + ev.Status.String()
	case voice.EventTranscript:
		line = fmt.Sprintf("%s: %s", speakerLabel(ev.Entry.Speaker), ev.Entry.Text)
		v.transcript = append(v.transcript, line)
		if n := len(v.transcript); n > voice.TranscriptCapacity {
			v.transcript = v.transcript[n-voice.TranscriptCapacity:]
		}
	case voice.EventError:
		v.err = ev.Err
		line = "error: " + ev.Err.Message
	}
	if !v.tty && line != "" {
		fmt.Fprintln(v.out, line)
	}
}

func speakerLabel(s voice.Speaker) string {
	if s == voice.SpeakerModel {
		return "Nova"
	}
	return "You"
}

func (v *voiceView) draw(logs []string) {
	if !v.tty {
		return
	}
	width, height, err := term.GetSize(v.fd)
	if err != nil {
		return
	}
	v.mu.Lock()
	f := cli.Frame{
		Styles: v.styles,
		Title:  "Nova",
		Status: v.status.String(),
		Sections: []cli.Section{
			{Label: " Transcript ", Lines: append([]string(nil), v.transcript...)},
			{Label: " Log ", Lines: logs},
		},
		Help: "Ctrl-C to end the conversation",
	}
	if v.err != nil {
		f.Status = v.err.Message
		f.Alert = true
	}
	v.mu.Unlock()
	// Clear screen and home the cursor.
	fmt.Fprint(v.out, "\x1b[H\x1b[2J"+strings.TrimRight(f.Render(width, height-1), "\n"))
}
