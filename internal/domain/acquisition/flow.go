package acquisition

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/geocapture/internal/domain/model"
	"github.com/okian/geocapture/pkg/logger"
)

// Outcome summarizes a finished flow.
type Outcome struct {
	FlowID       string
	Final        State
	Path         []State
	Coarse       *LookupResult
	Position     *Position
	Denial       *CapabilityError
	Submitted    []model.Kind
	SubmitErrors int
	RedirectedTo string
}

// Flow is one subject's capture sequence. Every external call runs in its
// own goroutine and reports back on the flow's message channel; Run is the
// only goroutine that changes state.
type Flow struct {
	id          string
	lookup      CoarseLookup
	capability  PreciseCapability
	submitter   Submitter
	redirector  Redirector
	redirectURL string
	delay       time.Duration
	timeout     time.Duration
	client      ClientInfo
	log         logger.Logger
	now         func() time.Time

	state   atomic.Int32
	started atomic.Bool
	trigger chan struct{}
}

// NewFlow wires a flow to its collaborators.
func NewFlow(lookup CoarseLookup, capability PreciseCapability, submitter Submitter, opts ...Option) (*Flow, error) {
	if lookup == nil || capability == nil || submitter == nil {
		return nil, ErrMissingCollaborator
	}
	f := &Flow{
		id:          uuid.NewString(),
		lookup:      lookup,
		capability:  capability,
		submitter:   submitter,
		redirectURL: DefaultRedirectURL,
		delay:       DefaultPresentationDelay,
		timeout:     PreciseTimeout,
		log:         logger.Nop(),
		now:         time.Now,
		trigger:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With(logger.String("flow_id", f.id))
	return f, nil
}

// ID returns the flow identifier.
func (f *Flow) ID() string { return f.id }

// State returns the current state. Safe for concurrent use.
func (f *Flow) State() State { return State(f.state.Load()) }

// Trigger records the subject's explicit request for precise location.
// Repeat triggers are ignored.
func (f *Flow) Trigger() {
	select {
	case f.trigger <- struct{}{}:
	default:
	}
}

type (
	lookupDone struct {
		res LookupResult
		err error
	}
	preciseDone struct {
		pos Position
		err error
	}
	submitDone struct {
		kind model.Kind
		err  error
	}
	delayDone struct{}
)

// Run drives the flow until it redirects or ctx ends. Cancellation is the
// subject navigating away: the flow ends as CoarseOnly unless a precise
// outcome was already reached, and no error is returned.
func (f *Flow) Run(ctx context.Context) (Outcome, error) {
	if !f.started.CompareAndSwap(false, true) {
		return Outcome{}, ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	msgs := make(chan any, 4)
	deliver := func(m any) {
		select {
		case msgs <- m:
		case <-runCtx.Done():
		}
	}

	out := Outcome{FlowID: f.id}
	set := func(s State) {
		f.state.Store(int32(s))
		out.Path = append(out.Path, s)
		out.Final = s
	}
	submit := func(kind model.Kind, payload map[string]any) {
		go func() {
			deliver(submitDone{kind: kind, err: f.submitter.Submit(runCtx, kind, payload)})
		}()
	}

	set(StateIdle)
	set(StateCoarseRequested)
	go func() {
		res, err := f.lookup.Lookup(runCtx)
		deliver(lookupDone{res: res, err: err})
	}()

	triggers := f.trigger
	var terminalKind model.Kind

	for {
		select {
		case <-ctx.Done():
			if !out.Final.Terminal() {
				set(StateCoarseOnly)
			}
			f.log.Debug(ctx, "flow cancelled", logger.String("state", out.Final.String()))
			return out, nil

		case <-triggers:
			triggers = nil
			set(StateAwaitingConsentAction)
			opts := PositionOptions{
				HighAccuracy: PreciseHighAccuracy,
				Timeout:      f.timeout,
				MaximumAge:   PreciseMaximumAge,
			}
			go func() {
				pctx, pcancel := context.WithTimeout(runCtx, opts.Timeout)
				defer pcancel()
				// Buffered so a capability that answers after the deadline
				// does not leak its goroutine.
				answer := make(chan preciseDone, 1)
				go func() {
					pos, err := f.capability.CurrentPosition(pctx, opts)
					answer <- preciseDone{pos: pos, err: err}
				}()
				select {
				case m := <-answer:
					if m.err == nil && pctx.Err() != nil {
						m = preciseDone{err: pctx.Err()}
					}
					deliver(m)
				case <-pctx.Done():
					deliver(preciseDone{err: context.DeadlineExceeded})
				}
			}()

		case m := <-msgs:
			switch m := m.(type) {
			case lookupDone:
				if m.err != nil {
					f.log.Warn(ctx, "coarse lookup failed",
						logger.Error(fmt.Errorf("%w: %w", ErrLookupUnavailable, m.err)))
					if out.Final == StateCoarseRequested {
						set(StateIdle)
					}
					continue
				}
				res := m.res
				out.Coarse = &res
				if out.Final == StateCoarseRequested {
					set(StateCoarseComplete)
				}
				submit(model.KindCoarseLocation, f.coarsePayload(res))

			case preciseDone:
				if m.err == nil {
					pos := m.pos
					out.Position = &pos
					set(StatePreciseGranted)
					terminalKind = model.KindPreciseLocation
					submit(terminalKind, f.precisePayload(pos, out.Coarse))
				} else {
					ce := AsCapabilityError(m.err)
					out.Denial = ce
					set(StatePreciseDenied)
					terminalKind = model.KindConsentDenied
					f.log.Info(ctx, "precise capture denied",
						logger.Int("code", ce.Code), logger.String("message", ce.Message))
					submit(terminalKind, f.deniedPayload(ce))
				}

			case submitDone:
				out.Submitted = append(out.Submitted, m.kind)
				if m.err != nil {
					out.SubmitErrors++
					f.log.Warn(ctx, "submission failed",
						logger.String("kind", m.kind.String()), logger.Error(m.err))
				}
				if terminalKind != model.KindUnknown && m.kind == terminalKind {
					go func() {
						t := time.NewTimer(f.delay)
						defer t.Stop()
						select {
						case <-t.C:
							deliver(delayDone{})
						case <-runCtx.Done():
						}
					}()
				}

			case delayDone:
				if f.redirector != nil {
					if err := f.redirector.Redirect(ctx, f.redirectURL); err != nil {
						f.log.Warn(ctx, "redirect failed", logger.Error(err))
					}
				}
				out.RedirectedTo = f.redirectURL
				f.log.Debug(ctx, "flow completed",
					logger.String("state", out.Final.String()),
					logger.Int("submissions", len(out.Submitted)))
				return out, nil
			}
		}
	}
}
