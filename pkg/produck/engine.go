package produck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/NissanArmada/Produck/pkg/chat"
	"github.com/NissanArmada/Produck/pkg/configutil"
	"github.com/NissanArmada/Produck/pkg/form"
	"github.com/NissanArmada/Produck/pkg/guide"
	"github.com/NissanArmada/Produck/pkg/logging"
	"github.com/NissanArmada/Produck/pkg/metrics"
	"github.com/NissanArmada/Produck/pkg/observers"
	"github.com/NissanArmada/Produck/pkg/presence"
	"github.com/NissanArmada/Produck/pkg/redact"
	"github.com/NissanArmada/Produck/pkg/resilience"
	"github.com/NissanArmada/Produck/pkg/runner"
	"github.com/NissanArmada/Produck/pkg/transports"
	"github.com/NissanArmada/Produck/pkg/transports/mock"
	"github.com/NissanArmada/Produck/pkg/transports/ws"
	"github.com/NissanArmada/Produck/pkg/validate"
	"github.com/NissanArmada/Produck/pkg/visual"
)

// Engine wires the document, guided-fill machine, validation client and
// session presence into one runnable unit.
type Engine struct {
	cfg       Config
	doc       *form.MemoryDocument
	chatLog   *chat.Log
	vis       visual.Sink
	guide     *guide.GuidedFill
	session   *presence.Session
	transport transports.Transport
	store     validate.CooldownStore
	asyncObs  *metrics.AsyncObserver
	runner    *runner.LifecycleRunner
	ctx       context.Context
	cancel    context.CancelFunc
}

type EngineOptions struct {
	Config    Config
	Transport transports.Transport
	Visual    visual.Sink
	Controls  guide.ControlSink
	Validator validate.Validator
	// CooldownStore overrides the store derived from config.
	CooldownStore validate.CooldownStore
	Observers     []metrics.Observer
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	SetDefaultLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	slog.Info("produck_init",
		"environment", cfg.Environment,
		"transport", cfg.Transports.Provider,
		"confirmation_mode", cfg.Confirmation.Mode,
		"fields", len(cfg.Form.Fields),
	)

	obsList := []metrics.Observer{observers.NewLoggerObserver(slog.Default())}
	obsList = append(obsList, opts.Observers...)
	asyncObs := metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), 2048)

	doc := form.NewMemoryDocument()
	for _, f := range cfg.Form.Fields {
		doc.AddField(form.FieldID(f.ID), f.Label)
	}

	chatLog := chat.NewLog()

	tr := opts.Transport
	if tr == nil {
		built, err := buildTransport(cfg.Transports)
		if err != nil {
			return nil, err
		}
		tr = built
	}

	store := opts.CooldownStore
	if store == nil {
		if path := strings.TrimSpace(cfg.Cooldown.StorePath); path != "" {
			sq, err := validate.NewSQLiteStore(path)
			if err != nil {
				return nil, err
			}
			store = sq
		} else {
			store = validate.NewMemoryStore()
		}
	}

	validator := opts.Validator
	if validator == nil && strings.TrimSpace(cfg.Validation.BaseURL) != "" {
		client := validate.NewClient(cfg.Validation, store)
		client.SetObserver(asyncObs)
		validator = client
	}

	ctx, cancel := context.WithCancel(context.Background())

	g := guide.NewGuidedFill(doc, chatLog)
	g.SetMode(guide.Mode(cfg.Confirmation.Mode))
	g.SetValidator(validator)
	g.SetObserver(asyncObs)
	g.SetControls(opts.Controls)
	g.SetContext(ctx)

	vis := opts.Visual
	if vis == nil {
		vis = visual.NewMemory()
	}

	sess := presence.NewSession(tr, g, doc, chatLog, vis)
	sess.SetObserver(asyncObs)
	sess.SetRetryPolicy(resilience.NewRetryPolicy(
		cfg.Session.RetryMaxAttempts,
		time.Duration(cfg.Session.RetryBackoffMS)*time.Millisecond,
	))

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{"message", "Produck Engine Ready", "transport", tr.Name()}
			if rr, ok := tr.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			slog.Info("engine_ready", fields...)
		},
		OnStop: func() {
			asyncObs.Close()
			slog.Info("shutdown", "goroutines", runtime.NumGoroutine())
		},
	}

	drainer := runner.DrainerFunc(func() error {
		sess.End()
		if closer, ok := store.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil
	})

	return &Engine{
		cfg:       cfg,
		doc:       doc,
		chatLog:   chatLog,
		vis:       vis,
		guide:     g,
		session:   sess,
		transport: tr,
		store:     store,
		asyncObs:  asyncObs,
		runner:    runner.NewLifecycleRunner(drainer, hooks, 30*time.Second),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func buildTransport(cfg TransportsConfig) (transports.Transport, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "mock", "":
		return mock.New(), nil
	case "ws":
		var wsCfg ws.Config
		if err := configutil.DecodeSettings(cfg.Settings, &wsCfg); err != nil {
			return nil, fmt.Errorf("decode ws settings: %w", err)
		}
		return ws.New(wsCfg), nil
	default:
		return nil, fmt.Errorf("unknown transport provider %q", cfg.Provider)
	}
}

// Run starts the session, kicks off the guided fill and blocks until the
// context is cancelled, then drains.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.session.Start(e.ctx); err != nil {
		return err
	}
	e.guide.Start(e.cfg.FieldIDs())
	return e.runner.Run(ctx)
}

func (e *Engine) Stop() error {
	e.cancel()
	return e.runner.Stop()
}

// StartSession opens the transport without starting a guided fill.
func (e *Engine) StartSession(ctx context.Context) error {
	if ctx == nil {
		ctx = e.ctx
	}
	return e.session.Start(ctx)
}

func (e *Engine) EndSession() {
	e.session.End()
}

// StartGuidedFill begins walking the configured fields.
func (e *Engine) StartGuidedFill() {
	e.guide.Start(e.cfg.FieldIDs())
}

func (e *Engine) Guide() *guide.GuidedFill { return e.guide }

func (e *Engine) Session() *presence.Session { return e.session }

func (e *Engine) Document() *form.MemoryDocument { return e.doc }

func (e *Engine) Chat() *chat.Log { return e.chatLog }

func (e *Engine) Visual() visual.Sink { return e.vis }

func (e *Engine) Transport() transports.Transport { return e.transport }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Health() error {
	if e.transport == nil {
		return fmt.Errorf("missing transport")
	}
	return nil
}

func SetDefaultLogger(level, format string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		slog.SetDefault(logging.InitLogger(lvl))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
