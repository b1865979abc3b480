package ticket

import "context"

// fakeAPI is a scripted VendorAPI used to drive the FSM through the
// scenarios spec.md §8 describes without any network access. Each method
// records how many times it was called so tests can assert call counts.
type fakeAPI struct {
	snapshot ProjectSnapshot

	prepareCodes []int // consumed in order; last one repeats
	prepareCalls int

	riskRegisterType RiskChallengeType
	riskRegisterCode int

	riskValidateCode int

	createCodes   []int
	createCalls   int
	createPayMoney int64
	createOrderID  int64

	createStatusCode int
	createStatusDone bool

	orderInfoCode     int
	orderInfoPayMoney int64

	saveContactCalls int
}

func (f *fakeAPI) ProjectInfo(ctx context.Context, projectID int64) (ProjectSnapshot, int, error) {
	return f.snapshot, 0, nil
}

func (f *fakeAPI) Prepare(ctx context.Context, target TargetSpec, count int, order OrderContext) (string, RiskContext, int, error) {
	code := 0
	if len(f.prepareCodes) > 0 {
		idx := f.prepareCalls
		if idx >= len(f.prepareCodes) {
			idx = len(f.prepareCodes) - 1
		}
		code = f.prepareCodes[idx]
	}
	f.prepareCalls++
	if code == 0 {
		return "token-abc", RiskContext{}, 0, nil
	}
	if code == -401 {
		return "", RiskContext{Voucher: "voucher-1", Mid: 1}, code, nil
	}
	return "", RiskContext{}, code, nil
}

func (f *fakeAPI) RiskRegister(ctx context.Context, risk RiskContext) (RiskContext, int, error) {
	risk.RegisterToken = "register-token-1"
	risk.Challenge = "chal-1"
	risk.GT = "gt-1"
	risk.ChallengeType = f.riskRegisterType
	return risk, f.riskRegisterCode, nil
}

func (f *fakeAPI) RiskValidate(ctx context.Context, risk RiskContext, answer string) (int, error) {
	return f.riskValidateCode, nil
}

func (f *fakeAPI) SaveContactInfo(ctx context.Context, username, tel string) (int, error) {
	f.saveContactCalls++
	return 0, nil
}

func (f *fakeAPI) CreateOrder(ctx context.Context, target TargetSpec, order OrderContext) (OrderContext, int, error) {
	code := 0
	if len(f.createCodes) > 0 {
		idx := f.createCalls
		if idx >= len(f.createCodes) {
			idx = len(f.createCodes) - 1
		}
		code = f.createCodes[idx]
	}
	f.createCalls++

	if code == 100034 {
		order.PayMoney = f.createPayMoney
		return order, code, nil
	}
	if code == 100079 || code == 100048 {
		order.OrderID = f.createOrderID
		return order, code, nil
	}
	if code == 0 {
		order.OrderID = f.createOrderID
		order.OrderToken = "order-token-1"
		return order, 0, nil
	}
	return order, code, nil
}

func (f *fakeAPI) CreateOrderStatus(ctx context.Context, target TargetSpec, order OrderContext) (bool, int, error) {
	return f.createStatusDone, f.createStatusCode, nil
}

func (f *fakeAPI) OrderInfo(ctx context.Context, orderID int64) (int64, int, error) {
	return f.orderInfoPayMoney, f.orderInfoCode, nil
}

// fakeResolver always answers with a fixed validate string, or fails if
// told to.
type fakeResolver struct {
	answer string
	err    error
}

func (r *fakeResolver) Solve(ctx context.Context, gt, challenge string) (string, error) {
	return r.answer, r.err
}

// fakeNotifier records whether it was invoked and with what record.
type fakeNotifier struct {
	called bool
	rec    SuccessRecord
}

func (n *fakeNotifier) Notify(ctx context.Context, rec SuccessRecord) error {
	n.called = true
	n.rec = rec
	return nil
}

func inStockSnapshot(sessionID, skuID int64, price int64) ProjectSnapshot {
	return ProjectSnapshot{
		SaleStart: 0,
		Sessions: []SessionEntry{
			{
				ID:          sessionID,
				DeliveryFee: 0,
				Skus: []SkuEntry{
					{ID: skuID, Price: price, Clickable: true, SaleFlag: SaleFlagOnSale, RemainingCount: 5},
				},
			},
		},
	}
}
