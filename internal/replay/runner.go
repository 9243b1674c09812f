package replay

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"emailtracker/internal/capture"
	"emailtracker/internal/messaging"
	"emailtracker/internal/rules"
)

// Saver stores a prompted email, standing in for the user pressing save.
type Saver interface {
	SaveEmail(ctx context.Context, data messaging.SaveEmailData) error
}

type Result struct {
	Scenario string                  `json:"scenario"`
	Steps    int                     `json:"steps"`
	Prompts  []capture.PromptRequest `json:"prompts"`
	Saved    []string                `json:"saved"`
	Errors   []string                `json:"errors,omitempty"`
}

type Runner struct {
	checker capture.ExistenceChecker
	saver   Saver
	opts    capture.Options
	logger  *zap.Logger
	start   time.Time
}

// NewRunner builds a runner. saver may be nil when scenarios never auto-save.
func NewRunner(checker capture.ExistenceChecker, saver Saver, opts capture.Options, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		checker: checker,
		saver:   saver,
		opts:    opts,
		logger:  logger,
		start:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Run plays sc in a fresh session. signals may be shared between runs to
// model several tabs; nil gives the run its own in-memory store.
func (r *Runner) Run(ctx context.Context, sc *Scenario, signals capture.SignalStore) (*Result, error) {
	if signals == nil {
		signals = capture.NewMemorySignalStore()
	}
	s := &run{
		Runner:  r,
		ctx:     ctx,
		sc:      sc,
		clock:   capture.NewManualClock(r.start),
		signals: signals,
		result:  &Result{Scenario: sc.Name, Prompts: []capture.PromptRequest{}, Saved: []string{}},
	}
	defer s.closePage()

	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return s.result, err
		}
		if err := s.apply(step); err != nil {
			return s.result, fmt.Errorf("step %d (%s): %w", i+1, step.kind(), err)
		}
		s.result.Steps++
	}
	return s.result, nil
}

type run struct {
	*Runner
	ctx     context.Context
	sc      *Scenario
	clock   *capture.ManualClock
	signals capture.SignalStore
	page    *capture.Page
	result  *Result
}

func (s *run) apply(step Step) error {
	if step.Load != nil {
		return s.load(step.Load)
	}
	if step.Wait > 0 {
		s.clock.Advance(step.Wait)
		return nil
	}
	if s.page == nil {
		return fmt.Errorf("no page loaded")
	}

	switch {
	case step.Click != "":
		return s.onFirst(step.Click, s.page.Click)
	case step.Type != nil:
		return s.onFirst(step.Type.Selector, func(id capture.NodeID) { s.page.Type(id, step.Type.Text) })
	case step.Key != nil:
		return s.onFirst(step.Key.Selector, func(id capture.NodeID) { s.page.PressKey(id, step.Key.Key) })
	case step.Submit != "":
		return s.onFirst(step.Submit, s.page.Submit)
	case step.Append != nil:
		return s.onFirst(step.Append.Selector, func(id capture.NodeID) {
			if _, err := s.page.AppendHTML(id, step.Append.HTML); err != nil {
				s.result.Errors = append(s.result.Errors, err.Error())
			}
		})
	case step.Remove != "":
		return s.onFirst(step.Remove, s.page.Remove)
	case step.Visible != nil:
		s.page.SetVisible(*step.Visible)
	}
	return nil
}

// onFirst applies fn to the first element matching sel.
func (s *run) onFirst(sel string, fn func(capture.NodeID)) error {
	parsed, err := capture.ParseSelector(sel)
	if err != nil {
		return err
	}
	id := s.page.Query(s.page.Root(), parsed)
	if id == capture.NoNode {
		return fmt.Errorf("no element matches %q", sel)
	}
	fn(id)
	return nil
}

func (s *run) load(step *LoadStep) error {
	s.closePage()
	page, err := capture.NewPage(step.URL, step.HTML, s.clock)
	if err != nil {
		return err
	}
	s.page = page
	s.logger.Debug("Page loaded", zap.String("url", step.URL), zap.String("domain", page.Domain()))
	capture.NewMachine(page, s.signals, s.checker, s, s.logger, s.opts).Start(s.ctx)
	return nil
}

func (s *run) closePage() {
	if s.page != nil {
		s.page.Close()
		s.page = nil
	}
}

// ShowPrompt records the prompt and, when the scenario auto-saves, accepts
// it with the prefilled email. A username prefill is left for the user.
func (s *run) ShowPrompt(ctx context.Context, req capture.PromptRequest) error {
	s.result.Prompts = append(s.result.Prompts, req)
	if !s.sc.AutoSave || !rules.LooksLikeEmail(req.Prefill) || s.saver == nil {
		return nil
	}

	notes := "Saved after login"
	if req.Kind == capture.SignalOAuth {
		notes = "Saved after OAuth login"
	}
	err := s.saver.SaveEmail(ctx, messaging.SaveEmailData{
		Domain:   req.Domain,
		Email:    req.Prefill,
		Provider: string(rules.SuggestProvider(req.Prefill)),
		Notes:    notes,
	})
	if err != nil {
		s.result.Errors = append(s.result.Errors, err.Error())
		return err
	}
	s.result.Saved = append(s.result.Saved, req.Domain)
	return nil
}
