package capture

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"emailtracker/internal/config"
	"emailtracker/internal/rules"
	"emailtracker/pkg/metrics"
	"emailtracker/pkg/otel"
)

type Options struct {
	OAuthWindow      time.Duration
	FormWindow       time.Duration
	SettleDelay      time.Duration
	VisibilityDelay  time.Duration
	SubmitDeferral   time.Duration
	DenyList         DenyList
	ProfileSelectors []ProfileSelector
}

func DefaultOptions() Options {
	return Options{
		OAuthWindow:      60 * time.Second,
		FormWindow:       30 * time.Second,
		SettleDelay:      2 * time.Second,
		VisibilityDelay:  500 * time.Millisecond,
		SubmitDeferral:   100 * time.Millisecond,
		DenyList:         DefaultDenyList(),
		ProfileSelectors: DefaultProfileSelectors(),
	}
}

// OptionsFromConfig overlays the non-zero capture settings on the defaults.
func OptionsFromConfig(cfg config.CaptureConfig) Options {
	opts := DefaultOptions()
	if cfg.OAuthWindow > 0 {
		opts.OAuthWindow = cfg.OAuthWindow
	}
	if cfg.FormWindow > 0 {
		opts.FormWindow = cfg.FormWindow
	}
	if cfg.SettleDelay > 0 {
		opts.SettleDelay = cfg.SettleDelay
	}
	if cfg.VisibilityDelay > 0 {
		opts.VisibilityDelay = cfg.VisibilityDelay
	}
	if cfg.SubmitDeferral > 0 {
		opts.SubmitDeferral = cfg.SubmitDeferral
	}
	if cfg.DenyList != nil {
		opts.DenyList = DenyList(cfg.DenyList)
	}
	return opts
}

type PromptRequest struct {
	Domain  string     `json:"domain"`
	Prefill string     `json:"prefill"`
	Kind    SignalKind `json:"kind"`
	ShownAt time.Time  `json:"shownAt"`
}

// Prompter surfaces the save prompt. The UI itself lives elsewhere.
type Prompter interface {
	ShowPrompt(ctx context.Context, req PromptRequest) error
}

// ExistenceChecker answers whether a record is already stored for domain.
type ExistenceChecker interface {
	CheckEmailExists(ctx context.Context, domain string) (bool, error)
}

type bindRole int

const (
	roleAuthTrigger bindRole = iota
	roleIdentifier
	roleSubmitControl
	rolePasswordEnter
)

type bindKey struct {
	id   NodeID
	role bindRole
}

// Machine watches one page for sign-in activity and decides, on this load
// or a later one in the same session, whether to offer a save prompt.
//
// All state is owned by the page goroutine.
type Machine struct {
	page     *Page
	signals  SignalStore
	checker  ExistenceChecker
	prompter Prompter
	opts     Options
	logger   *zap.Logger

	ctx         context.Context
	processed   map[bindKey]bool
	boundForms  map[NodeID]bool
	identifiers []NodeID
	bestEmail   string
	username    string
	prompted    bool
	visTimer    Timer
}

func NewMachine(page *Page, signals SignalStore, checker ExistenceChecker, prompter Prompter, logger *zap.Logger, opts Options) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		page:       page,
		signals:    signals,
		checker:    checker,
		prompter:   prompter,
		opts:       opts,
		logger:     logger.With(zap.String("domain", page.Domain())),
		ctx:        context.Background(),
		processed:  make(map[bindKey]bool),
		boundForms: make(map[NodeID]bool),
	}
}

// Start binds the page and evaluates any signal left by an earlier load.
func (m *Machine) Start(ctx context.Context) {
	m.ctx = ctx
	m.scan(m.page.Root())
	m.page.Observe(func(added []NodeID) {
		for _, id := range added {
			m.scan(id)
		}
	})
	m.page.OnVisibilityChange(func(visible bool) {
		if !visible {
			return
		}
		if m.visTimer != nil {
			m.visTimer.Stop()
		}
		m.visTimer = m.page.SetTimeout(m.opts.VisibilityDelay, m.Evaluate)
	})
	m.Evaluate()
}

// Prompted reports whether this page already showed (or scheduled) a prompt.
func (m *Machine) Prompted() bool { return m.prompted }

// BoundCount is the number of element bindings made so far.
func (m *Machine) BoundCount() int { return len(m.processed) }

func (m *Machine) scan(root NodeID) {
	p := m.page
	for _, id := range p.Elements(root) {
		info := p.Info(id)
		switch {
		case IsAuthTrigger(info):
			m.bindAuthTrigger(id)
		case IsIdentifierField(info):
			m.bindIdentifier(id)
			if form := p.Closest(id, "form"); form != NoNode {
				m.bindForm(form)
			}
		}
		// controls added later to a form that is already bound
		if form := p.Closest(id, "form"); form != NoNode && m.boundForms[form] {
			m.bindFormControl(id, info)
		}
	}
}

func (m *Machine) claim(id NodeID, role bindRole) bool {
	key := bindKey{id, role}
	if m.processed[key] {
		return false
	}
	m.processed[key] = true
	return true
}

func (m *Machine) bindAuthTrigger(id NodeID) {
	if !m.claim(id, roleAuthTrigger) {
		return
	}
	var remove func()
	remove = m.page.AddEventListener(id, "click", func(*Event) {
		remove()
		m.armOAuth()
	})
}

func (m *Machine) bindIdentifier(id NodeID) {
	if !m.claim(id, roleIdentifier) {
		return
	}
	m.identifiers = append(m.identifiers, id)
	note := func(ev *Event) { m.note(m.page.Value(ev.Target)) }
	m.page.AddEventListener(id, "input", note)
	m.page.AddEventListener(id, "blur", note)
}

func (m *Machine) bindForm(form NodeID) {
	if m.boundForms[form] {
		return
	}
	m.boundForms[form] = true
	m.page.AddEventListener(form, "submit", func(*Event) { m.captureSubmit() })
	for _, id := range m.page.Elements(form) {
		m.bindFormControl(id, m.page.Info(id))
	}
}

func (m *Machine) bindFormControl(id NodeID, info ElementInfo) {
	switch {
	case IsSubmitControl(info):
		if m.claim(id, roleSubmitControl) {
			m.page.AddEventListener(id, "click", func(*Event) { m.deferCapture() })
		}
	case IsPasswordField(info):
		if m.claim(id, rolePasswordEnter) {
			m.page.AddEventListener(id, "keydown", func(ev *Event) {
				if ev.Key == "Enter" {
					m.deferCapture()
				}
			})
		}
	}
}

func (m *Machine) note(value string) {
	value = strings.TrimSpace(value)
	switch {
	case rules.LooksLikeEmail(value):
		m.bestEmail = value
	case len(value) > 3:
		m.username = value
	}
}

// candidate prefers the last email seen, then a value still sitting in an
// identifier field (autofill fires no input event), then the username.
func (m *Machine) candidate() string {
	if m.bestEmail != "" {
		return m.bestEmail
	}
	var fallback string
	for _, id := range m.identifiers {
		v := strings.TrimSpace(m.page.Value(id))
		if rules.LooksLikeEmail(v) {
			return v
		}
		if fallback == "" && len(v) > 3 {
			fallback = v
		}
	}
	if m.username != "" {
		return m.username
	}
	return fallback
}

func (m *Machine) armOAuth() {
	now := m.page.Now()
	m.put(Signal{
		Kind:      SignalOAuth,
		Domain:    m.page.Domain(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.opts.OAuthWindow),
	})
}

func (m *Machine) deferCapture() {
	m.page.SetTimeout(m.opts.SubmitDeferral, m.captureSubmit)
}

func (m *Machine) captureSubmit() {
	now := m.page.Now()
	m.put(Signal{
		Kind:      SignalForm,
		Domain:    m.page.Domain(),
		Value:     m.candidate(),
		CreatedAt: now,
		ExpiresAt: now.Add(m.opts.FormWindow),
	})
}

func (m *Machine) put(sig Signal) {
	if err := m.signals.Put(m.ctx, sig); err != nil {
		metrics.RecordCaptureDecision(string(sig.Kind), "error")
		m.logger.Warn("Failed to store capture signal", zap.String("kind", string(sig.Kind)), zap.Error(err))
		return
	}
	metrics.RecordCaptureDecision(string(sig.Kind), "armed")
	m.logger.Debug("Capture signal armed", zap.String("kind", string(sig.Kind)), zap.Time("expires_at", sig.ExpiresAt))
}

// Evaluate consumes pending signals for this domain. The OAuth signal is
// checked first; when its path acts the form signal is dropped.
func (m *Machine) Evaluate() {
	if m.prompted || m.page.Closed() {
		return
	}
	ctx, span := otel.StartSpan(m.ctx, "capture.Evaluate", attribute.String("capture.domain", m.page.Domain()))
	defer func() {
		span.SetAttributes(attribute.Bool("capture.prompted", m.prompted))
		span.End()
	}()

	if m.evaluateOAuth(ctx) {
		if sig := m.take(ctx, SignalForm); sig != nil {
			metrics.RecordCaptureDecision(string(SignalForm), "superseded")
		}
		return
	}
	m.evaluateForm(ctx)
}

func (m *Machine) evaluateOAuth(ctx context.Context) bool {
	sig := m.take(ctx, SignalOAuth)
	if !m.usable(sig) {
		return false
	}
	if m.exists(ctx, sig.Kind) {
		return true
	}

	prefill := Scrape(m.page, m.opts.DenyList, m.opts.ProfileSelectors)
	m.prompted = true
	m.page.SetTimeout(m.opts.SettleDelay, func() { m.show(SignalOAuth, prefill) })
	return true
}

func (m *Machine) evaluateForm(ctx context.Context) {
	sig := m.take(ctx, SignalForm)
	if !m.usable(sig) || m.exists(ctx, sig.Kind) {
		return
	}
	m.prompted = true
	m.show(SignalForm, sig.Value)
}

func (m *Machine) take(ctx context.Context, kind SignalKind) *Signal {
	sig, err := m.signals.Take(ctx, kind, m.page.Domain())
	if err != nil {
		metrics.RecordCaptureDecision(string(kind), "error")
		m.logger.Warn("Failed to read capture signal", zap.String("kind", string(kind)), zap.Error(err))
		return nil
	}
	return sig
}

func (m *Machine) usable(sig *Signal) bool {
	if sig == nil {
		return false
	}
	if !sig.ActiveAt(m.page.Now()) {
		metrics.RecordCaptureDecision(string(sig.Kind), "expired")
		return false
	}
	if sig.Domain != m.page.Domain() {
		metrics.RecordCaptureDecision(string(sig.Kind), "mismatch")
		return false
	}
	return true
}

// exists fails open: a checker error counts as "not stored".
func (m *Machine) exists(ctx context.Context, kind SignalKind) bool {
	found, err := m.checker.CheckEmailExists(ctx, m.page.Domain())
	if err != nil {
		m.logger.Warn("Existence check failed, showing prompt", zap.Error(err))
		return false
	}
	if found {
		metrics.RecordCaptureDecision(string(kind), "suppressed")
	}
	return found
}

func (m *Machine) show(kind SignalKind, prefill string) {
	metrics.RecordCaptureDecision(string(kind), "prompt")
	req := PromptRequest{Domain: m.page.Domain(), Prefill: prefill, Kind: kind, ShownAt: m.page.Now()}
	if err := m.prompter.ShowPrompt(m.ctx, req); err != nil {
		m.logger.Warn("Failed to show save prompt", zap.Error(err))
	}
}
