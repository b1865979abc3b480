// Package ticket implements the acquisition engine: the FSM, the vendor API
// adapter, the adaptive scheduler, and the plain data model they share.
package ticket

import "time"

// Attendee is an opaque, identity-verified real-name attendee record echoed
// verbatim into the order payload. The engine never inspects its fields.
type Attendee map[string]any

// DeliveryAddress is the optional structured address used for projects that
// require paper-ticket delivery. The engine only ever serializes it.
type DeliveryAddress map[string]any

// TargetSpec is the immutable configuration describing what to buy and for
// whom. It is supplied by the configuration loader and never mutated by the
// engine.
type TargetSpec struct {
	ProjectID       int64
	SessionID       int64
	SkuID           int64
	OrderType       int
	Count           int
	Attendees       []Attendee
	DeliveryAddress DeliveryAddress
	Phone           string
	Username        string
	UID             int64
}

// RequiresDelivery reports whether a deliveryAddress was configured.
func (t TargetSpec) RequiresDelivery() bool {
	return len(t.DeliveryAddress) > 0
}

// SkuEntry is a single price-tier row inside a ProjectSnapshot session.
type SkuEntry struct {
	ID              int64
	Price           int64 // fen
	Clickable       bool
	SaleFlag        int // 2 = on sale, 4 = sold out, 8 = temporarily out
	RemainingCount  int
}

// SaleFlag values, per the vendor's project/getV2 response.
const (
	SaleFlagOnSale      = 2
	SaleFlagSoldOut     = 4
	SaleFlagTemporarily = 8
)

// SessionEntry is one showing inside a ProjectSnapshot.
type SessionEntry struct {
	ID          int64
	DeliveryFee int64 // fen
	Skus        []SkuEntry
}

// ProjectSnapshot is the project-info response, refreshed on demand.
// sessionIndex/skuIndex cache the last-known location of the target SKU so
// repeated lookups are O(1) until the vendor reorders its arrays.
type ProjectSnapshot struct {
	SaleStart             int64 // unix seconds
	RequiresPaperDelivery  bool
	Sessions               []SessionEntry

	sessionIndex int
	skuIndex     int
	cached       bool
}

// locate finds (sessionIndex, skuIndex) for the target (sessionID, skuID),
// trying the cached location first and falling back to a linear search —
// the vendor is free to reorder the sessions/skus arrays between calls.
func (p *ProjectSnapshot) locate(sessionID, skuID int64) (*SkuEntry, bool) {
	if p.cached &&
		p.sessionIndex < len(p.Sessions) &&
		p.skuIndex < len(p.Sessions[p.sessionIndex].Skus) &&
		p.Sessions[p.sessionIndex].ID == sessionID &&
		p.Sessions[p.sessionIndex].Skus[p.skuIndex].ID == skuID {
		return &p.Sessions[p.sessionIndex].Skus[p.skuIndex], true
	}

	for si := range p.Sessions {
		if p.Sessions[si].ID != sessionID {
			continue
		}
		for ki := range p.Sessions[si].Skus {
			if p.Sessions[si].Skus[ki].ID == skuID {
				p.sessionIndex, p.skuIndex, p.cached = si, ki, true
				return &p.Sessions[si].Skus[ki], true
			}
		}
	}
	return nil, false
}

// DeliveryFeeFor returns the delivery fee (fen) for the given session, or 0
// if the session is unknown.
func (p *ProjectSnapshot) DeliveryFeeFor(sessionID int64) int64 {
	for i := range p.Sessions {
		if p.Sessions[i].ID == sessionID {
			return p.Sessions[i].DeliveryFee
		}
	}
	return 0
}

// RiskChallengeType discriminates the kind of anti-abuse challenge the
// vendor's risk-register call demands.
type RiskChallengeType int

const (
	ChallengeUnknown RiskChallengeType = iota
	ChallengeGeetest
	ChallengePhone
	ChallengeSMS
	ChallengeBiliword
)

func (c RiskChallengeType) String() string {
	switch c {
	case ChallengeGeetest:
		return "geetest"
	case ChallengePhone:
		return "phone"
	case ChallengeSMS:
		return "sms"
	case ChallengeBiliword:
		return "biliword"
	default:
		return "unknown"
	}
}

// RiskContext accumulates the anti-abuse challenge state across the
// prepare -> register -> validate sequence.
type RiskContext struct {
	// Mid/Buvid/IP/Scene/UA/Voucher/DecisionType come verbatim from
	// Prepare's -401 envelope (data.ga_data.riskParams) and are the input
	// params to RiskRegister; Voucher is riskParams.v_voucher.
	Mid          int64
	Buvid        string
	IP           string
	Scene        string
	UA           string
	Voucher      string
	DecisionType string

	// RegisterToken is RiskRegister's own returned data.token. It is a
	// distinct value from Voucher and OrderContext.Token: it's the input
	// "token" param to RiskValidate and the value injected as the
	// x-bili-gaia-vtoken cookie on a successful validate.
	RegisterToken string
	Challenge     string
	GT            string
	ChallengeType RiskChallengeType
}

// OrderContext is populated incrementally as the FSM progresses through
// prepare, risk resolution, and order creation.
type OrderContext struct {
	Token       string // prepare token, short TTL
	OrderID     int64
	OrderToken  string
	PayMoney    int64 // fen; price*count + deliveryFee, server can override
	Risked      bool  // true right after a successful challenge

	ContactNeeded bool // 209001 self-heal already attempted

	goldenWindowNoticed bool
}

// availableStep is one row of the available ladder: once
// now-lastStockSeenAt reaches WindowSeconds (and has not yet reached the
// next row's), SleepSeconds is the retry pacing to use.
type availableStep struct {
	WindowSeconds float64
	SleepSeconds  float64
}

// Schedule is the process-wide, FSM-owned timing state.
type Schedule struct {
	LastCreateAttemptAt time.Time
	LastStockSeenAt     time.Time

	DefaultSleep    time.Duration
	RefreshInterval time.Duration
	availableLadder []availableStep

	// HardControlUntil widens retry pacing after the vendor's "error 3"
	// signal (same identity driving more than one concurrent script).
	// Supplements spec.md's ladder with the original's ERR3 behavior.
	HardControlUntil time.Time
	HardControlSleep time.Duration
}

// NewSchedule builds a Schedule from a baseline request spacing, deriving
// the five-bucket available ladder spec.md §4.5 describes:
//
//	[(0,0), (1, default/2), (5, default), (9.9, default*2), (10.5, default/2)]
func NewSchedule(defaultSleep, refreshInterval time.Duration) Schedule {
	return Schedule{
		DefaultSleep:    defaultSleep,
		RefreshInterval: refreshInterval,
		availableLadder: []availableStep{
			{0, 0},
			{1.0, defaultSleep.Seconds() / 2},
			{5.0, defaultSleep.Seconds()},
			{9.9, defaultSleep.Seconds() * 2},
			{10.5, defaultSleep.Seconds() / 2},
		},
		HardControlSleep: 4960 * time.Millisecond,
	}
}
