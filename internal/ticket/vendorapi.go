package ticket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/hobr/ticketbot/internal/httpclient"
)

// deviceID returns a fresh random 16-byte hex device identifier, echoed
// into every CreateOrder payload per spec.md §4.2.
func deviceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Vendor endpoints. These are vars, not consts, so vendorapi_test.go can
// point individual operations at an httptest.Server without needing to
// thread a base-URL dependency through Adapter for what is otherwise a
// handful of fixed, well-known hosts.
var (
	endpointProjectInfo  = "https://show.bilibili.com/api/ticket/project/getV2"
	endpointTokenPrepare = "https://show.bilibili.com/api/ticket/order/prepare"
	endpointRiskRegister = "https://api.bilibili.com/x/gaia-vgate/v1/register"
	endpointRiskValidate = "https://api.bilibili.com/x/gaia-vgate/v1/validate"
	endpointCreateOrder  = "https://show.bilibili.com/api/ticket/order/createV2"
	endpointCreateStatus = "https://show.bilibili.com/api/ticket/order/createstatus"
	endpointOrderInfo    = "https://show.bilibili.com/api/ticket/order/info"
	endpointSaveContact  = "https://show.bilibili.com/api/ticket/buyer/saveContactInfo"
)

// validateNotValidCode is a synthetic, non-vendor code RiskValidate returns
// when the envelope itself reports code==0 but data.is_valid!=1 — spec.md
// §4.2.4 treats that combination as a failed challenge, not a success.
const validateNotValidCode = -1

// VendorAPI is the eight-operation surface the FSM drives. It is an
// interface so fsm_test.go can substitute a fake that replays scripted
// result codes without any network access.
type VendorAPI interface {
	ProjectInfo(ctx context.Context, projectID int64) (ProjectSnapshot, int, error)
	Prepare(ctx context.Context, target TargetSpec, count int, order OrderContext) (token string, risk RiskContext, code int, err error)
	RiskRegister(ctx context.Context, risk RiskContext) (RiskContext, int, error)
	RiskValidate(ctx context.Context, risk RiskContext, answer string) (code int, err error)
	CreateOrder(ctx context.Context, target TargetSpec, order OrderContext) (OrderContext, int, error)
	SaveContactInfo(ctx context.Context, username, tel string) (code int, err error)
	CreateOrderStatus(ctx context.Context, target TargetSpec, order OrderContext) (done bool, code int, err error)
	OrderInfo(ctx context.Context, orderID int64) (payMoney int64, code int, err error)
}

// Adapter is the real VendorAPI backed by an httpclient.Client.
type Adapter struct {
	http *httpclient.Client
	rng  *rng
}

// NewAdapter wraps an httpclient.Client as a VendorAPI.
func NewAdapter(c *httpclient.Client) *Adapter {
	return &Adapter{http: c, rng: newRNG(time.Now().UnixNano())}
}

type projectInfoData struct {
	SaleStart      int64 `json:"sale_start"`
	IsShowDelivery int   `json:"is_show_delivery"`
	ScreenList     []struct {
		ID          int64 `json:"id"`
		DeliveryFee int64 `json:"delivery_fee"`
		TicketList  []struct {
			ID             int64 `json:"id"`
			Price          int64 `json:"price"`
			Clickable      bool  `json:"clickable"`
			SaleFlag       int   `json:"sale_flag_number"`
			RemainingCount int   `json:"remain_num"`
		} `json:"ticket_list"`
	} `json:"screen_list"`
}

// ProjectInfo fetches and unmarshals the project/session/sku tree. A
// non-success code returns a zero snapshot; the caller decides via
// Classify how to react.
func (a *Adapter) ProjectInfo(ctx context.Context, projectID int64) (ProjectSnapshot, int, error) {
	u := fmt.Sprintf("%s?id=%d", endpointProjectInfo, projectID)
	env := a.http.Get(ctx, u)
	if env.Code != 0 {
		return ProjectSnapshot{}, env.Code, nil
	}

	var data projectInfoData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return ProjectSnapshot{}, 0, fmt.Errorf("decode project info: %w", err)
	}

	snap := ProjectSnapshot{
		SaleStart:             data.SaleStart,
		RequiresPaperDelivery: data.IsShowDelivery == 1,
	}
	for _, sc := range data.ScreenList {
		se := SessionEntry{ID: sc.ID, DeliveryFee: sc.DeliveryFee}
		for _, sk := range sc.TicketList {
			se.Skus = append(se.Skus, SkuEntry{
				ID:             sk.ID,
				Price:          sk.Price,
				Clickable:      sk.Clickable,
				SaleFlag:       sk.SaleFlag,
				RemainingCount: sk.RemainingCount,
			})
		}
		snap.Sessions = append(snap.Sessions, se)
	}
	return snap, 0, nil
}

type prepareData struct {
	Token string `json:"token"`
}

// prepareRiskEnvelope is the shape of the -401 error payload's ga_data
// block, confirmed against original_source/util/Bilibili/__init__.py's
// QueryToken (riskParams.mid/decision_type/buvid/ip/scene/ua/v_voucher).
type prepareRiskEnvelope struct {
	GaData struct {
		RiskParams struct {
			Mid          int64  `json:"mid"`
			DecisionType string `json:"decision_type"`
			Buvid        string `json:"buvid"`
			IP           string `json:"ip"`
			Scene        string `json:"scene"`
			UA           string `json:"ua"`
			Voucher      string `json:"v_voucher"`
		} `json:"riskParams"`
	} `json:"ga_data"`
}

// Prepare requests a short-TTL order token ahead of CreateOrder, per
// spec.md's QueryToken state. When order.Risked is set, the URL also
// carries token/gaia_vtoken (both the current order token) per spec.md
// §4.2.2; on code -401 the riskParams block is decoded into a RiskContext.
func (a *Adapter) Prepare(ctx context.Context, target TargetSpec, count int, order OrderContext) (string, RiskContext, int, error) {
	q := url.Values{"project_id": {fmt.Sprint(target.ProjectID)}}
	if order.Risked {
		q.Set("token", order.Token)
		q.Set("gaia_vtoken", order.Token)
	}
	u := endpointTokenPrepare + "?" + q.Encode()

	form := url.Values{
		"project_id": {fmt.Sprint(target.ProjectID)},
		"count":      {fmt.Sprint(count)},
		"screen_id":  {fmt.Sprint(target.SessionID)},
		"sku_id":     {fmt.Sprint(target.SkuID)},
		"token":      {""},
		"newRisk":    {"true"},
		"csrf":       {a.http.CSRFToken()},
	}
	env := a.http.PostForm(ctx, u, form)
	if env.Code != 0 {
		var risk RiskContext
		if env.Code == -401 {
			var re prepareRiskEnvelope
			if err := json.Unmarshal(env.Data, &re); err == nil {
				rp := re.GaData.RiskParams
				risk = RiskContext{
					Mid:          rp.Mid,
					Buvid:        rp.Buvid,
					IP:           rp.IP,
					Scene:        rp.Scene,
					UA:           rp.UA,
					Voucher:      rp.Voucher,
					DecisionType: rp.DecisionType,
				}
			}
		}
		return "", risk, env.Code, nil
	}

	var data prepareData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", RiskContext{}, 0, fmt.Errorf("decode prepare: %w", err)
	}
	return data.Token, RiskContext{}, 0, nil
}

type riskRegisterData struct {
	Token   string `json:"token"`
	Type    string `json:"type"`
	Geetest struct {
		Challenge string `json:"challenge"`
		GT        string `json:"gt"`
	} `json:"geetest"`
}

// RiskRegister asks the anti-abuse gate what challenge (if any) it wants
// solved before the prepare token can be used, submitting the RiskContext
// Prepare populated from the -401 riskParams block. Confirmed against
// original_source/util/Bilibili/__init__.py's RiskInfo.
func (a *Adapter) RiskRegister(ctx context.Context, risk RiskContext) (RiskContext, int, error) {
	form := url.Values{
		"buvid":         {risk.Buvid},
		"csrf":          {a.http.CSRFToken()},
		"decision_type": {risk.DecisionType},
		"ip":            {risk.IP},
		"mid":           {fmt.Sprint(risk.Mid)},
		"origin_scene":  {risk.Scene},
		"scene":         {risk.Scene},
		"ua":            {risk.UA},
		"v_voucher":     {risk.Voucher},
	}
	env := a.http.PostForm(ctx, endpointRiskRegister, form)
	if env.Code != 0 {
		return risk, env.Code, nil
	}

	var data riskRegisterData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return risk, 0, fmt.Errorf("decode risk register: %w", err)
	}

	risk.RegisterToken = data.Token
	risk.Challenge = data.Geetest.Challenge
	risk.GT = data.Geetest.GT
	switch data.Type {
	case "geetest":
		risk.ChallengeType = ChallengeGeetest
	case "phone":
		risk.ChallengeType = ChallengePhone
	case "sms":
		risk.ChallengeType = ChallengeSMS
	case "biliword":
		risk.ChallengeType = ChallengeBiliword
	default:
		risk.ChallengeType = ChallengeUnknown
	}
	return risk, 0, nil
}

type riskValidateData struct {
	IsValid int `json:"is_valid"`
}

// RiskValidate submits the solved challenge answer. For geetest mode the
// params are {challenge, csrf, seccode=answer+"|jordan", token, validate};
// for phone mode they are {code=answer, csrf, token} (spec.md §4.2.4). On
// code==0 && data.is_valid==1 it injects the gaia-vtoken cookie with
// risk.RegisterToken, the value original_source's RiskValidate injects.
func (a *Adapter) RiskValidate(ctx context.Context, risk RiskContext, answer string) (int, error) {
	q := url.Values{
		"csrf":  {a.http.CSRFToken()},
		"token": {risk.RegisterToken},
	}
	switch risk.ChallengeType {
	case ChallengePhone:
		q.Set("code", answer)
	default:
		q.Set("challenge", risk.Challenge)
		q.Set("seccode", answer+"|jordan")
		q.Set("validate", answer)
	}
	u := endpointRiskValidate + "?" + q.Encode()

	env := a.http.Get(ctx, u)
	if env.Code != 0 {
		return env.Code, nil
	}

	var data riskValidateData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, fmt.Errorf("decode risk validate: %w", err)
	}
	if data.IsValid != 1 {
		return validateNotValidCode, nil
	}

	a.http.InjectGaiaVToken(risk.RegisterToken)
	return 0, nil
}

type createOrderData struct {
	OrderID    int64  `json:"order_id"`
	OrderToken string `json:"token"`
	PayMoney   int64  `json:"pay_money"`
}

// CreateOrder submits the purchase itself. Returns an updated OrderContext
// with the order id/token/pay amount the vendor assigned; on code 100034
// (price wrong) only PayMoney is updated, from the response's pay_money.
func (a *Adapter) CreateOrder(ctx context.Context, target TargetSpec, order OrderContext) (OrderContext, int, error) {
	now := time.Now()
	nowMs := now.UnixMilli()
	clickX := 1300 + a.rng.IntRange(0, 200)
	clickY := 20 + a.rng.IntRange(0, 80)
	originMs := nowMs - int64(2500+a.rng.IntRange(0, 7500))
	clickPosition, _ := json.Marshal(map[string]int64{
		"x": int64(clickX), "y": int64(clickY), "origin": originMs, "now": nowMs,
	})

	form := url.Values{
		"project_id":    {fmt.Sprint(target.ProjectID)},
		"screen_id":     {fmt.Sprint(target.SessionID)},
		"sku_id":        {fmt.Sprint(target.SkuID)},
		"count":         {fmt.Sprint(target.Count)},
		"order_type":    {fmt.Sprint(target.OrderType)},
		"token":         {order.Token},
		"pay_money":     {fmt.Sprint(order.PayMoney)},
		"csrf":          {a.http.CSRFToken()},
		"deviceId":      {deviceID()},
		"clickPosition": {string(clickPosition)},
	}
	if target.RequiresDelivery() {
		addr, _ := json.Marshal(target.DeliveryAddress)
		form.Set("deliver_info", string(addr))
	}
	if len(target.Attendees) > 0 {
		buyer, _ := json.Marshal(target.Attendees)
		form.Set("buyer_info", string(buyer))
	}

	env := a.http.PostForm(ctx, endpointCreateOrder, form)
	if env.Code != 0 {
		if env.Code == 100034 {
			var data createOrderData
			if err := json.Unmarshal(env.Data, &data); err == nil && data.PayMoney > 0 {
				order.PayMoney = data.PayMoney
			}
		}
		return order, env.Code, nil
	}

	var data createOrderData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return order, 0, fmt.Errorf("decode create order: %w", err)
	}
	order.OrderID = data.OrderID
	order.OrderToken = data.OrderToken
	if data.PayMoney > 0 {
		order.PayMoney = data.PayMoney
	}
	return order, 0, nil
}

// SaveContactInfo transparently pre-saves the buyer's contact info, called
// on CreateOrder's 209001 ("contact info missing") response per spec.md
// §4.2.5's self-heal.
func (a *Adapter) SaveContactInfo(ctx context.Context, username, tel string) (int, error) {
	form := url.Values{
		"username": {username},
		"tel":      {tel},
		"csrf":     {a.http.CSRFToken()},
	}
	env := a.http.PostForm(ctx, endpointSaveContact, form)
	return env.Code, nil
}

type createStatusData struct {
	OrderID int64 `json:"order_id"`
}

// CreateOrderStatus polls whether an async-created order has settled.
// Per spec.md §4.2.6, code 100012 ("not finished, wait") combined with a
// matching order_id in the payload is itself treated as success (the
// order was locked by a prior racing attempt).
func (a *Adapter) CreateOrderStatus(ctx context.Context, target TargetSpec, order OrderContext) (bool, int, error) {
	q := url.Values{
		"token":      {order.OrderToken},
		"project_id": {fmt.Sprint(target.ProjectID)},
		"orderId":    {fmt.Sprint(order.OrderID)},
	}
	u := endpointCreateStatus + "?" + q.Encode()
	env := a.http.Get(ctx, u)
	if env.Code == 0 {
		return true, 0, nil
	}
	if env.Code == 100012 {
		var data createStatusData
		if err := json.Unmarshal(env.Data, &data); err == nil && data.OrderID == order.OrderID {
			return true, 0, nil
		}
	}
	return false, env.Code, nil
}

type orderInfoData struct {
	PayMoney int64 `json:"pay_money"`
}

// OrderInfo fetches the final confirmed order, used to verify pay_money
// before reporting success (spec.md's ConfirmOrder state).
func (a *Adapter) OrderInfo(ctx context.Context, orderID int64) (int64, int, error) {
	u := fmt.Sprintf("%s?order_id=%d", endpointOrderInfo, orderID)
	env := a.http.Get(ctx, u)
	if env.Code != 0 {
		return 0, env.Code, nil
	}
	var data orderInfoData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return 0, 0, fmt.Errorf("decode order info: %w", err)
	}
	return data.PayMoney, 0, nil
}
