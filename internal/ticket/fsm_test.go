package ticket

import (
	"context"
	"testing"
	"time"
)

// newTestEngine builds an Engine wired to api/resolver/notifier with a
// fake clock that advances whenever the engine "sleeps", so tests run
// instantly while still exercising real scheduling decisions.
func newTestEngine(api VendorAPI, resolver ChallengeResolver, notifier Notifier, target TargetSpec) (*Engine, *time.Time) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEngine(api, resolver, notifier, target, NewSchedule(800*time.Millisecond, 2100*time.Millisecond))
	e.now = func() time.Time { return clock }
	e.sleep = func(ctx context.Context, d time.Duration) error {
		clock = clock.Add(d)
		return ctx.Err()
	}
	e.state = QueryToken // tests drive from QueryToken onward; WaitForSale is covered separately
	return e, &clock
}

func runUntilDone(t *testing.T, e *Engine, maxSteps int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < maxSteps; i++ {
		var err error
		switch e.state {
		case QueryToken:
			err = e.actQueryToken(ctx)
		case RiskChallenge:
			err = e.actRiskChallenge(ctx)
		case WaitForStock:
			err = e.actWaitForStock(ctx)
		case CreateOrderState:
			err = e.actCreateOrder(ctx)
		case ConfirmOrder:
			err = e.actConfirmOrder(ctx)
		case Done:
			if err := e.actDone(ctx); err != nil {
				t.Fatalf("actDone returned error: %v", err)
			}
			return
		default:
			t.Fatalf("unexpected state %s", e.state)
		}
		if err != nil {
			t.Fatalf("step in state %s returned error: %v", e.state, err)
		}
	}
	t.Fatalf("did not reach Done within %d steps (stuck in %s)", maxSteps, e.state)
}

func baseTarget() TargetSpec {
	return TargetSpec{
		ProjectID: 1,
		SessionID: 10,
		SkuID:     100,
		OrderType: 1,
		Count:     1,
	}
}

// S2 — token refresh mid-race: CreateOrder returns 100050 once, then 0.
func TestScenarioTokenRefreshMidRace(t *testing.T) {
	target := baseTarget()
	api := &fakeAPI{
		snapshot:      inStockSnapshot(target.SessionID, target.SkuID, 10000),
		createCodes:   []int{100050, 0},
		createOrderID: 42,
	}
	api.createStatusDone = true
	api.createStatusCode = 0
	api.orderInfoCode = 0
	api.orderInfoPayMoney = 10000

	notifier := &fakeNotifier{}
	e, _ := newTestEngine(api, nil, notifier, target)
	e.state = CreateOrderState

	runUntilDone(t, e, 20)

	if api.prepareCalls != 1 {
		t.Errorf("prepare calls = %d, want 1 (one re-query after stale token)", api.prepareCalls)
	}
	if api.createCalls != 2 {
		t.Errorf("create calls = %d, want 2", api.createCalls)
	}
	if !notifier.called {
		t.Error("expected notifier to be invoked on success")
	}
}

// S3 — risk challenge: Prepare returns -401, geetest challenge resolved,
// then QueryToken succeeds and the flow proceeds to CreateOrder.
func TestScenarioRiskChallengeGeetest(t *testing.T) {
	target := baseTarget()
	api := &fakeAPI{
		snapshot:         inStockSnapshot(target.SessionID, target.SkuID, 5000),
		prepareCodes:     []int{-401, 0},
		riskRegisterType: ChallengeGeetest,
		createCodes:      []int{0},
		createOrderID:    7,
	}
	api.createStatusDone = true
	api.orderInfoPayMoney = 5000

	resolver := &fakeResolver{answer: "validate-ok"}
	notifier := &fakeNotifier{}
	e, _ := newTestEngine(api, resolver, notifier, target)

	runUntilDone(t, e, 20)

	if api.prepareCalls != 2 {
		t.Errorf("prepare calls = %d, want 2 (one -401, one after challenge)", api.prepareCalls)
	}
	if !notifier.called {
		t.Error("expected notifier to be invoked on success")
	}
}

// S4 — price drift: CreateOrder returns 100034 with an updated pay_money;
// the engine must adopt it and retry without changing state.
func TestScenarioPriceDrift(t *testing.T) {
	target := baseTarget()
	api := &fakeAPI{
		snapshot:       inStockSnapshot(target.SessionID, target.SkuID, 10000),
		createCodes:    []int{100034, 0},
		createPayMoney: 19900,
		createOrderID:  55,
	}
	api.createStatusDone = true
	api.orderInfoPayMoney = 19900

	notifier := &fakeNotifier{}
	e, _ := newTestEngine(api, nil, notifier, target)
	e.state = CreateOrderState

	runUntilDone(t, e, 20)

	if e.order.PayMoney != 19900 {
		t.Errorf("order.PayMoney = %d, want 19900 after price drift", e.order.PayMoney)
	}
}

// S5 — duplicate order already exists: CreateOrder returns 100079 with an
// order id; the engine must jump straight to Done.
func TestScenarioDuplicateOrderIsSuccess(t *testing.T) {
	target := baseTarget()
	api := &fakeAPI{
		snapshot:      inStockSnapshot(target.SessionID, target.SkuID, 10000),
		createCodes:   []int{100079},
		createOrderID: 999,
	}

	notifier := &fakeNotifier{}
	e, _ := newTestEngine(api, nil, notifier, target)
	e.state = CreateOrderState

	runUntilDone(t, e, 5)

	if !notifier.called {
		t.Fatal("expected notifier to be invoked")
	}
	if notifier.rec.OrderID != 999 {
		t.Errorf("notified OrderID = %d, want 999", notifier.rec.OrderID)
	}
}

// S6 — 412 ban during polling: WaitForStock's ProjectInfo returns a
// transport-error code; the engine must keep polling, not terminate.
func TestScenarioTransportErrorDuringWaitForStock(t *testing.T) {
	target := baseTarget()
	api := &transportFlakyAPI{
		fakeAPI:   fakeAPI{snapshot: inStockSnapshot(target.SessionID, target.SkuID, 1000)},
		failTimes: 2,
	}

	e, _ := newTestEngine(api, nil, nil, target)
	e.state = WaitForStock

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := e.actWaitForStock(ctx); err != nil {
			t.Fatalf("actWaitForStock returned error: %v", err)
		}
	}

	if e.state != CreateOrderState {
		t.Errorf("state after recovering from transport errors = %s, want CreateOrder", e.state)
	}
}

// transportFlakyAPI fails ProjectInfo with the synthetic transport code
// failTimes times before returning a real snapshot, simulating a 412 ban
// that eventually lifts.
type transportFlakyAPI struct {
	fakeAPI
	calls     int
	failTimes int
}

func (f *transportFlakyAPI) ProjectInfo(ctx context.Context, projectID int64) (ProjectSnapshot, int, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return ProjectSnapshot{}, TransportErrorCode, nil
	}
	return f.fakeAPI.ProjectInfo(ctx, projectID)
}

// risked must be observable only between a successful RiskValidate and the
// following Prepare call (invariant 2).
func TestInvariantRiskedClearedAfterNextPrepare(t *testing.T) {
	target := baseTarget()
	api := &fakeAPI{
		snapshot:         inStockSnapshot(target.SessionID, target.SkuID, 5000),
		prepareCodes:     []int{-401, 0, 0},
		riskRegisterType: ChallengeGeetest,
	}
	resolver := &fakeResolver{answer: "validate-ok"}
	e, _ := newTestEngine(api, resolver, nil, target)

	ctx := context.Background()

	if err := e.actQueryToken(ctx); err != nil { // -401 -> RiskChallenge
		t.Fatalf("actQueryToken: %v", err)
	}
	if e.state != RiskChallenge {
		t.Fatalf("state = %s, want RiskChallenge", e.state)
	}

	if err := e.actRiskChallenge(ctx); err != nil {
		t.Fatalf("actRiskChallenge: %v", err)
	}
	if !e.order.Risked {
		t.Fatal("expected Risked=true immediately after a successful challenge")
	}

	if err := e.actQueryToken(ctx); err != nil { // the following Prepare
		t.Fatalf("actQueryToken: %v", err)
	}
	if e.order.Risked {
		t.Error("expected Risked=false once the post-challenge Prepare completes")
	}
}

// CreateOrder's code 3 ("same identity, multiple concurrent scripts")
// must widen the schedule's hard-control window and keep retrying rather
// than failing fatally.
func TestScenarioHardControlWidensSchedule(t *testing.T) {
	target := baseTarget()
	api := &fakeAPI{
		snapshot:      inStockSnapshot(target.SessionID, target.SkuID, 1000),
		createCodes:   []int{3, 0},
		createOrderID: 11,
	}
	api.createStatusDone = true
	api.orderInfoPayMoney = 1000

	notifier := &fakeNotifier{}
	e, clock := newTestEngine(api, nil, notifier, target)
	e.state = CreateOrderState

	if e.Schedule.HardControlActive(*clock) {
		t.Fatal("hard control should not be active before the first code-3 response")
	}

	runUntilDone(t, e, 20)

	if !e.Schedule.HardControlActive(*clock) {
		t.Error("hard control should be active after the code-3 response")
	}
	if api.createCalls != 2 {
		t.Errorf("create calls = %d, want 2 (one hard-control hit, one success)", api.createCalls)
	}
	if !notifier.called {
		t.Error("expected notifier to be invoked on success")
	}
}

// CreateOrder's code 209001 ("missing contact info") must trigger exactly
// one SaveContactInfo call and then retry; a second 209001 after contact
// info was already saved is fatal.
func TestScenario209001SavesContactInfoOnce(t *testing.T) {
	target := baseTarget()
	api := &fakeAPI{
		snapshot:      inStockSnapshot(target.SessionID, target.SkuID, 1000),
		createCodes:   []int{209001, 0},
		createOrderID: 12,
	}
	api.createStatusDone = true
	api.orderInfoPayMoney = 1000

	notifier := &fakeNotifier{}
	e, _ := newTestEngine(api, nil, notifier, target)
	e.state = CreateOrderState

	runUntilDone(t, e, 20)

	if api.saveContactCalls != 1 {
		t.Errorf("saveContactCalls = %d, want 1", api.saveContactCalls)
	}
	if !e.order.ContactNeeded {
		t.Error("expected order.ContactNeeded to be set after the self-heal")
	}
}

func TestScenario209001TwiceIsFatal(t *testing.T) {
	target := baseTarget()
	api := &fakeAPI{
		snapshot:    inStockSnapshot(target.SessionID, target.SkuID, 1000),
		createCodes: []int{209001, 209001},
	}

	e, _ := newTestEngine(api, nil, nil, target)
	e.state = CreateOrderState

	ctx := context.Background()
	if err := e.actCreateOrder(ctx); err != nil {
		t.Fatalf("first actCreateOrder returned error: %v", err)
	}
	err := e.actCreateOrder(ctx)
	if err == nil {
		t.Fatal("expected a FatalError on the second 209001")
	}
	if _, ok := err.(*FatalError); !ok {
		t.Errorf("err = %T, want *FatalError", err)
	}
	if api.saveContactCalls != 1 {
		t.Errorf("saveContactCalls = %d, want 1 (no second save attempt)", api.saveContactCalls)
	}
}

// Prepare's -401 riskParams must flow through RiskRegister into the
// challenge resolver and RiskValidate unchanged.
func TestRiskContextFlowsFromPrepareToValidate(t *testing.T) {
	target := baseTarget()
	api := &fakeAPI{
		snapshot:         inStockSnapshot(target.SessionID, target.SkuID, 5000),
		prepareCodes:     []int{-401, 0},
		riskRegisterType: ChallengeGeetest,
	}
	resolver := &fakeResolver{answer: "validate-ok"}
	e, _ := newTestEngine(api, resolver, nil, target)

	ctx := context.Background()
	if err := e.actQueryToken(ctx); err != nil {
		t.Fatalf("actQueryToken: %v", err)
	}
	if e.risk.Voucher != "voucher-1" || e.risk.Mid != 1 {
		t.Fatalf("risk = %+v, want Prepare's riskParams carried onto e.risk", e.risk)
	}

	if err := e.actRiskChallenge(ctx); err != nil {
		t.Fatalf("actRiskChallenge: %v", err)
	}
	if e.risk.RegisterToken != "register-token-1" || e.risk.Challenge != "chal-1" || e.risk.GT != "gt-1" {
		t.Fatalf("risk = %+v, want RiskRegister's token/challenge/gt populated", e.risk)
	}
}

// S1 — happy path, pre-opening: the engine sleeps through the countdown
// tiers, pre-warms the token at T-30s, and is ready to create the order
// at T-0 without a separate QueryToken detour.
func TestScenarioHappyPathPreOpening(t *testing.T) {
	target := baseTarget()
	api := &fakeAPI{snapshot: inStockSnapshot(target.SessionID, target.SkuID, 1000)}

	e, clock := newTestEngine(api, nil, nil, target)
	e.state = WaitForSale

	saleStart := clock.Add(2 * time.Minute)
	api.snapshot.SaleStart = saleStart.Unix()

	ctx := context.Background()
	for i := 0; i < 100 && e.state == WaitForSale; i++ {
		if err := e.actWaitForSale(ctx); err != nil {
			t.Fatalf("actWaitForSale: %v", err)
		}
		// Re-sync the snapshot's absolute sale start as the fake clock
		// advances, since actWaitForSale recomputes countdown from it.
		api.snapshot.SaleStart = saleStart.Unix()
	}

	if !e.skipToken {
		t.Error("expected skipToken to be set via the T-30s pre-warm")
	}
	if e.state != CreateOrderState {
		t.Errorf("state at sale start = %s, want CreateOrder (skipToken path)", e.state)
	}
	if api.prepareCalls == 0 {
		t.Error("expected the pre-warm to have called Prepare")
	}
}
