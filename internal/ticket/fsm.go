package ticket

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// State is one node of the acquisition FSM's state set (spec.md §4.3).
type State int

const (
	Start State = iota
	WaitForSale
	QueryToken
	RiskChallenge
	WaitForStock
	CreateOrderState
	ConfirmOrder
	Done
)

func (s State) String() string {
	switch s {
	case Start:
		return "Start"
	case WaitForSale:
		return "WaitForSale"
	case QueryToken:
		return "QueryToken"
	case RiskChallenge:
		return "RiskChallenge"
	case WaitForStock:
		return "WaitForStock"
	case CreateOrderState:
		return "CreateOrder"
	case ConfirmOrder:
		return "ConfirmOrder"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// geetestSiteKey is the vendor's public geetest site key, baked in per
// spec.md §4.4 ("process-wide constant gt").
const geetestSiteKey = "ac597a4506fee079629df5d8b66dd4fe"

// hardControlWindow is how long CreateOrder's adaptive pacing widens to
// Schedule.HardControlSleep after the vendor's "error 3" signal (same
// identity driving more than one concurrent script), per the original's
// err3Interval (~90s). See SPEC_FULL.md §3's ERR3 supplement.
const hardControlWindow = 90 * time.Second

// ChallengeResolver abstracts CAPTCHA/phone-confirmation solving. The FSM
// sees nothing about how a provider works (spec.md §4.4).
type ChallengeResolver interface {
	Solve(ctx context.Context, gt, challenge string) (validate string, err error)
}

// SuccessRecord is the immutable record handed to the notification fan-out
// once the FSM reaches Done.
type SuccessRecord struct {
	OrderID   int64
	PayMoney  int64
	ProjectID int64
}

// Notifier fans success out over configured channels; errors are logged,
// never fatal to the acquisition run which has already succeeded.
type Notifier interface {
	Notify(ctx context.Context, rec SuccessRecord) error
}

// FatalError is returned by Run when the FSM reaches a non-retryable
// vendor code (spec.md §4.3's "fatal codes that exit the process").
type FatalError struct {
	State State
	Code  int
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal vendor code %d in state %s", e.Code, e.State)
}

// Engine drives the FSM loop. All mutable acquisition state lives here and
// is touched by exactly one goroutine (spec.md §5).
type Engine struct {
	API      VendorAPI
	Resolver ChallengeResolver
	Notify   Notifier
	Target   TargetSpec
	Schedule Schedule

	state   State
	order   OrderContext
	risk    RiskContext
	project ProjectSnapshot

	skipToken  bool
	queryCache bool

	seenLogs map[string]bool

	// OnTransition, if set, is called after every state change with the
	// last vendor code observed in the state being left. Used to drive
	// the status dashboard and the audit journal; never affects control
	// flow, so a nil or slow observer never stalls acquisition.
	OnTransition func(from, to State, code int)
	lastCode     int

	// now/sleep are overridable for deterministic tests; default to
	// time.Now and a context-cancelable real sleep.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine builds an Engine ready to Run.
func NewEngine(api VendorAPI, resolver ChallengeResolver, notifier Notifier, target TargetSpec, sched Schedule) *Engine {
	return &Engine{
		API:      api,
		Resolver: resolver,
		Notify:   notifier,
		Target:   target,
		Schedule: sched,
		state:    Start,
		seenLogs: make(map[string]bool),
		now:      time.Now,
		sleep:    SleepCtx,
	}
}

// SleepCtx sleeps for d or returns ctx.Err() if cancelled first, the
// cancelable sleep helper every blocking wait in the engine routes through
// (spec.md §5's context-threading requirement).
func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// logOnce logs at INFO only the first time a given (state, code) pair is
// observed, per spec.md §7.
func (e *Engine) logOnce(state State, code int, msg string) {
	e.lastCode = code
	key := fmt.Sprintf("%s:%d", state, code)
	if e.seenLogs[key] {
		return
	}
	e.seenLogs[key] = true
	logrus.WithField("state", state.String()).WithField("code", code).Info(msg)
}

// Run drives the FSM to Done or to a fatal/cancellation error.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		from := e.state

		switch e.state {
		case Start:
			e.state = WaitForSale

		case WaitForSale:
			if err := e.actWaitForSale(ctx); err != nil {
				return err
			}

		case QueryToken:
			if err := e.actQueryToken(ctx); err != nil {
				return err
			}

		case RiskChallenge:
			if err := e.actRiskChallenge(ctx); err != nil {
				return err
			}

		case WaitForStock:
			if err := e.actWaitForStock(ctx); err != nil {
				return err
			}

		case CreateOrderState:
			if err := e.actCreateOrder(ctx); err != nil {
				return err
			}

		case ConfirmOrder:
			if err := e.actConfirmOrder(ctx); err != nil {
				return err
			}

		case Done:
			err := e.actDone(ctx)
			if e.OnTransition != nil && from != e.state {
				e.OnTransition(from, e.state, e.lastCode)
			}
			return err
		}

		if e.OnTransition != nil && from != e.state {
			e.OnTransition(from, e.state, e.lastCode)
		}
	}
}

// actWaitForSale implements spec.md §4.3's countdown sleep and T-30s
// pre-warm.
func (e *Engine) actWaitForSale(ctx context.Context) error {
	snap, code, err := e.API.ProjectInfo(ctx, e.Target.ProjectID)
	if err != nil {
		return err
	}
	if code != 0 {
		e.logOnce(WaitForSale, code, "project info failed while waiting for sale")
		return e.sleep(ctx, e.Schedule.DefaultSleep)
	}
	e.project = snap

	countdown := time.Duration(snap.SaleStart)*time.Second - time.Duration(e.now().Unix())*time.Second

	if countdown == 30*time.Second {
		if err := e.preWarm(ctx); err == nil {
			e.skipToken = true
		}
	}

	if countdown <= 0 {
		if e.skipToken {
			e.state = CreateOrderState
		} else {
			e.state = QueryToken
		}
		return nil
	}

	return e.sleep(ctx, countdownSleep(countdown))
}

// preWarm runs QueryToken (and RiskChallenge if demanded) ahead of sale
// start so the order token is already in hand at T-0.
func (e *Engine) preWarm(ctx context.Context) error {
	token, risk, code, err := e.API.Prepare(ctx, e.Target, e.Target.Count, e.order)
	if err != nil {
		return err
	}
	switch Classify(code) {
	case ClassSuccess:
		e.order.Token = token
		return nil
	case ClassTokenStale:
		e.risk = risk
		if err := e.runRiskChallenge(ctx); err != nil {
			return err
		}
		token, _, code, err = e.API.Prepare(ctx, e.Target, e.Target.Count, e.order)
		if err != nil {
			return err
		}
		e.order.Risked = false
		if code != 0 {
			return fmt.Errorf("pre-warm prepare after challenge failed with code %d", code)
		}
		e.order.Token = token
		return nil
	default:
		return fmt.Errorf("pre-warm prepare failed with code %d", code)
	}
}

// actQueryToken implements the Prepare call and its transition guards.
func (e *Engine) actQueryToken(ctx context.Context) error {
	if !e.queryCache {
		if snap, code, err := e.API.ProjectInfo(ctx, e.Target.ProjectID); err == nil && code == 0 {
			e.project = snap
		}
		e.queryCache = true
	}

	token, risk, code, err := e.API.Prepare(ctx, e.Target, e.Target.Count, e.order)
	if err != nil {
		return err
	}
	e.lastCode = code

	if e.order.Risked {
		e.order.Risked = false
	}

	switch Classify(code) {
	case ClassSuccess:
		e.order.Token = token
		e.state = CreateOrderState
	case ClassTokenStale:
		e.risk = risk
		e.state = RiskChallenge
	default:
		e.logOnce(QueryToken, code, "prepare returned retryable code")
		if err := e.sleep(ctx, e.Schedule.DefaultSleep); err != nil {
			return err
		}
		// state remains QueryToken
	}
	return nil
}

// actRiskChallenge drives the register/resolve/validate sequence.
func (e *Engine) actRiskChallenge(ctx context.Context) error {
	if err := e.runRiskChallenge(ctx); err != nil {
		e.logOnce(RiskChallenge, -1, err.Error())
		return e.sleep(ctx, e.Schedule.DefaultSleep)
	}
	e.state = QueryToken
	return nil
}

func (e *Engine) runRiskChallenge(ctx context.Context) error {
	risk, code, err := e.API.RiskRegister(ctx, e.risk)
	if err != nil {
		return err
	}
	if code == 100000 {
		// already solved elsewhere, treat as success-no-op
		e.order.Risked = true
		return nil
	}
	if code != 0 {
		return fmt.Errorf("risk register failed with code %d", code)
	}
	e.risk = risk

	var answer string
	switch risk.ChallengeType {
	case ChallengeGeetest:
		answer, err = e.Resolver.Solve(ctx, geetestSiteKey, risk.Challenge)
		if err != nil || answer == "" {
			return fmt.Errorf("geetest resolver failed: %w", err)
		}
	case ChallengePhone:
		if e.Target.Phone == "" {
			return fmt.Errorf("phone challenge requires a configured phone number")
		}
		answer = e.Target.Phone
	default:
		return fmt.Errorf("unsupported challenge type %s", risk.ChallengeType)
	}

	// RiskValidate injects the x-bili-gaia-vtoken cookie itself on success
	// (spec.md §4.1/§4.2.4), so order.Risked is the only state left to flip
	// here; the next Prepare call reads it to add token/gaia_vtoken.
	code, err = e.API.RiskValidate(ctx, e.risk, answer)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("risk validate failed with code %d", code)
	}

	e.order.Risked = true
	return nil
}

// actWaitForStock implements the availability check and transition into
// CreateOrder once stock is seen or the refresh liveness probe fires.
func (e *Engine) actWaitForStock(ctx context.Context) error {
	snap, code, err := e.API.ProjectInfo(ctx, e.Target.ProjectID)
	if err != nil {
		return err
	}
	if code != 0 {
		e.logOnce(WaitForStock, code, "project info failed while waiting for stock")
		return e.sleep(ctx, e.Schedule.DefaultSleep)
	}
	e.project = snap

	sku, found := e.project.locate(e.Target.SessionID, e.Target.SkuID)
	available := found && (sku.Clickable || sku.SaleFlag != SaleFlagSoldOut || sku.RemainingCount > 0)

	now := e.now()
	if available {
		e.Schedule.LastStockSeenAt = now
		e.state = CreateOrderState
		return nil
	}

	if e.Schedule.RefreshDue(now) {
		e.state = CreateOrderState
		return nil
	}

	return e.sleep(ctx, e.Schedule.DefaultSleep)
}

// actCreateOrder implements the CreateOrder call, its adapter-level state
// mutations (100034 price drift, 209001 contact self-heal), and the
// transition guards of spec.md §4.3.
func (e *Engine) actCreateOrder(ctx context.Context) error {
	if e.order.PayMoney == 0 {
		sku, found := e.project.locate(e.Target.SessionID, e.Target.SkuID)
		fee := e.project.DeliveryFeeFor(e.Target.SessionID)
		if found {
			e.order.PayMoney = sku.Price*int64(e.Target.Count) + fee
		}
	}

	now := e.now()
	e.Schedule.LastCreateAttemptAt = now

	updated, code, err := e.API.CreateOrder(ctx, e.Target, e.order)
	if err != nil {
		return err
	}
	e.order = updated
	e.lastCode = code

	class := Classify(code)
	switch {
	case code == 0:
		e.Schedule.LastStockSeenAt = now
		e.state = ConfirmOrder
		return nil

	case code >= 100050 && code <= 100059:
		e.state = QueryToken
		return nil

	case code == 100079 || code == 100048:
		e.state = Done
		return nil

	case code == 100034:
		// price already updated onto e.order.PayMoney by the adapter; retry
		// immediately, no state change.
		return nil

	case code == 209001:
		if e.order.ContactNeeded {
			return &FatalError{State: CreateOrderState, Code: code}
		}
		e.order.ContactNeeded = true
		if _, err := e.API.SaveContactInfo(ctx, e.Target.Username, e.Target.Phone); err != nil {
			return err
		}
		return nil

	case class == ClassHardControl:
		e.Schedule.HardControlUntil = now.Add(hardControlWindow)
		e.logOnce(CreateOrderState, code, "vendor signalled concurrent-script hard control, widening retry pacing")
		return e.sleep(ctx, e.Schedule.NextSleep(now))

	case class == ClassFatal:
		return &FatalError{State: CreateOrderState, Code: code}

	case code == 429 || code == 100001:
		return nil // retry immediately

	case e.Schedule.InAvailableWindow(now):
		e.logOnce(CreateOrderState, code, "no stock yet, keeping within available window")
		return e.sleep(ctx, e.Schedule.NextSleep(now))

	default:
		saleStart := time.Unix(e.project.SaleStart, 0)
		if !saleStart.IsZero() && now.Sub(saleStart) >= 0 && now.Sub(saleStart) < 15*time.Second && !e.order.goldenWindowNoticed {
			e.order.goldenWindowNoticed = true
			logrus.WithField("code", code).Info("no stock in golden window after sale start")
		} else {
			e.logOnce(CreateOrderState, code, "create order returned non-retryable code")
		}
		e.state = WaitForStock
		return nil
	}
}

// actConfirmOrder polls createstatus then order/info; any non-zero code
// routes back to CreateOrder (spec.md calls this the "fake lock" case).
func (e *Engine) actConfirmOrder(ctx context.Context) error {
	// CreateOrderStatus itself applies the 100012+matching-order_id ==
	// success special rule (spec.md §4.2.6), since only it decodes the
	// envelope body the rule needs to inspect.
	done, code, err := e.API.CreateOrderStatus(ctx, e.Target, e.order)
	if err != nil {
		return err
	}
	e.lastCode = code
	if code != 0 || !done {
		e.state = CreateOrderState
		return nil
	}

	payMoney, code, err := e.API.OrderInfo(ctx, e.order.OrderID)
	if err != nil {
		return err
	}
	if code != 0 {
		e.state = CreateOrderState
		return nil
	}
	e.order.PayMoney = payMoney
	e.state = Done
	return nil
}

// actDone fans success out over configured notification channels.
func (e *Engine) actDone(ctx context.Context) error {
	if e.Notify == nil {
		return nil
	}
	rec := SuccessRecord{
		OrderID:   e.order.OrderID,
		PayMoney:  e.order.PayMoney,
		ProjectID: e.Target.ProjectID,
	}
	if err := e.Notify.Notify(ctx, rec); err != nil {
		logrus.WithError(err).Error("notification fan-out reported an error")
	}
	return nil
}
