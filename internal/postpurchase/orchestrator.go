package postpurchase

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/confirm"
	"github.com/itspokchop93/fasho-backend/internal/notify"
	"github.com/itspokchop93/fasho-backend/internal/order"
)

type State string

const (
	StateLoadingOrder   State = "LOADING_ORDER"
	StateErrorDisplay   State = "ERROR_DISPLAY"
	StateCheckingIntake State = "CHECKING_INTAKE"
	StateIntakeForm     State = "INTAKE_FORM"
	StateConfetti       State = "CONFETTI"
	StateDone           State = "DONE"
)

// ErrorReason distinguishes the two terminal failure views. They get
// different copy: a missing order and an expired one are not the same thing
// to the customer.
type ErrorReason string

const (
	ReasonNotFound ErrorReason = "not_found"
	ReasonExpired  ErrorReason = "expired"
)

// DefaultConfettiDuration is the autoplay length of the success animation.
const DefaultConfettiDuration = 4 * time.Second

type GatewayLookup interface {
	Lookup(ctx context.Context, orderNumber string, now time.Time) (*confirm.Result, error)
}

type HandoffTaker interface {
	Take(token string) (*order.Order, bool)
}

// Orchestrator sequences the confirmation page: load the order, gate on the
// intake questionnaire, then celebrate. It replaces free-floating timer
// chains with explicit states so the flow can be asserted on, not timed.
//
// All transitions are idempotent under re-entry: calling Start again after
// the machine has left LOADING_ORDER neither re-runs the intake check nor
// re-fires the webhook.
type Orchestrator struct {
	mu sync.Mutex

	gateway  GatewayLookup
	handoff  HandoffTaker
	intake   notify.IntakeChecker
	notifier notify.Notifier

	confettiDuration time.Duration
	confettiTimer    *time.Timer

	state     State
	errReason ErrorReason
	order     *order.Order
	form      *Form

	started  bool
	notified bool

	// promotedOrderNumber is set when the order arrived via the handoff
	// cache; the page rewrites its URL to carry it so a refresh still works
	// through the gateway, subject to the same expiration rule.
	promotedOrderNumber string
}

func NewOrchestrator(gateway GatewayLookup, handoff HandoffTaker, intake notify.IntakeChecker, notifier notify.Notifier) *Orchestrator {
	return &Orchestrator{
		gateway:          gateway,
		handoff:          handoff,
		intake:           intake,
		notifier:         notifier,
		confettiDuration: DefaultConfettiDuration,
		state:            StateLoadingOrder,
	}
}

// SetConfettiDuration overrides the animation length; zero collapses
// CONFETTI straight into DONE.
func (o *Orchestrator) SetConfettiDuration(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.confettiDuration = d
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) ErrorReason() ErrorReason {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errReason
}

func (o *Orchestrator) Order() *order.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.order
}

// CurrentQuestion returns the question the intake form is waiting on. False
// whenever the machine is not showing the form. The form is only ever read
// through here and FormComplete so its cursor stays under o.mu.
func (o *Orchestrator) CurrentQuestion() (Question, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIntakeForm || o.form == nil {
		return Question{}, false
	}
	return o.form.Current()
}

// FormComplete reports whether every intake question has an answer. False
// when no form was ever shown.
func (o *Orchestrator) FormComplete() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.form != nil && o.form.Complete()
}

// FormAnswers returns a copy of the answers given so far.
func (o *Orchestrator) FormAnswers() map[string]string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.form == nil {
		return nil
	}
	return o.form.Answers()
}

func (o *Orchestrator) PromotedOrderNumber() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.promotedOrderNumber
}

// Start drives the machine from LOADING_ORDER as far as it can go without
// user input. A second call is a no-op returning the current state, so a
// page re-render cannot re-trigger anything.
func (o *Orchestrator) Start(ctx context.Context, orderNumber, handoffToken string) State {
	o.mu.Lock()
	if o.started {
		s := o.state
		o.mu.Unlock()
		return s
	}
	o.started = true
	o.mu.Unlock()

	resolved, reason := o.resolveOrder(ctx, orderNumber, handoffToken)
	if resolved == nil {
		o.mu.Lock()
		o.state = StateErrorDisplay
		o.errReason = reason
		o.mu.Unlock()
		return StateErrorDisplay
	}

	o.mu.Lock()
	o.order = resolved
	o.state = StateCheckingIntake
	o.mu.Unlock()

	o.notifyPurchase(ctx)

	completed, err := o.intake.Completed(ctx, resolved.CustomerEmail)
	if err != nil {
		// Advisory gate: a broken intake service must never strand the
		// customer on the confirmation page.
		log.Printf("intake check failed, skipping gate: %v", err)
		completed = true
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if completed {
		o.startConfettiLocked()
	} else {
		o.form = NewForm(DefaultQuestions)
		o.state = StateIntakeForm
	}
	return o.state
}

// resolveOrder is the two-tier read: order number through the gateway first,
// then the single-use handoff cache for the just-paid redirect.
func (o *Orchestrator) resolveOrder(ctx context.Context, orderNumber, handoffToken string) (*order.Order, ErrorReason) {
	if orderNumber != "" {
		res, err := o.gateway.Lookup(ctx, orderNumber, time.Now())
		switch {
		case err == nil:
			return res.Order, ""
		case errors.Is(err, confirm.ErrOrderExpired):
			return nil, ReasonExpired
		default:
			return nil, ReasonNotFound
		}
	}

	if handoffToken != "" {
		if cached, ok := o.handoff.Take(handoffToken); ok {
			o.mu.Lock()
			o.promotedOrderNumber = cached.OrderNumber
			o.mu.Unlock()
			return cached, ""
		}
	}

	return nil, ReasonNotFound
}

// notifyPurchase dispatches in the background: a slow webhook endpoint must
// never hold up the confirmation page. The notified flag keeps it single-shot.
func (o *Orchestrator) notifyPurchase(ctx context.Context) {
	o.mu.Lock()
	if o.notified {
		o.mu.Unlock()
		return
	}
	o.notified = true
	ord := o.order
	o.mu.Unlock()

	// Detached from the request's cancellation; the notifier carries its own
	// timeout.
	ctx = context.WithoutCancel(ctx)
	go o.notifier.Notify(ctx, notify.Event{
		Type:          notify.EventPurchase,
		CustomerName:  ord.CustomerName,
		CustomerEmail: ord.CustomerEmail,
		OrderTotal:    ord.Total,
	})
}

// AnswerCurrent records an answer for the intake form's current question and
// advances the machine when the form finishes.
func (o *Orchestrator) AnswerCurrent(choice string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIntakeForm {
		return ErrFormComplete
	}
	if err := o.form.Answer(choice); err != nil {
		return err
	}
	if o.form.Complete() {
		o.startConfettiLocked()
	}
	return nil
}

func (o *Orchestrator) BackForm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateIntakeForm {
		o.form.Back()
	}
}

// DismissForm is the explicit manual skip; it transitions to CONFETTI with
// the form left incomplete.
func (o *Orchestrator) DismissForm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateIntakeForm {
		o.startConfettiLocked()
	}
}

func (o *Orchestrator) startConfettiLocked() {
	if o.state == StateConfetti || o.state == StateDone {
		return
	}
	o.state = StateConfetti

	if o.confettiDuration <= 0 {
		o.state = StateDone
		return
	}

	o.confettiTimer = time.AfterFunc(o.confettiDuration, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.state == StateConfetti {
			o.state = StateDone
		}
	})
}

// Stop cancels any pending animation timer. Safe to call at any point.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.confettiTimer != nil {
		o.confettiTimer.Stop()
	}
}
