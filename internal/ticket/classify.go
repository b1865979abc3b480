package ticket

import "github.com/hobr/ticketbot/internal/httpclient"

// TransportErrorCode re-exports the HTTP client's synthetic transport-error
// code for callers that only import package ticket.
const TransportErrorCode = httpclient.TransportErrorCode

// Class buckets a vendor (or synthetic) result code into the handling
// policy spec.md §7 describes.
type Class int

const (
	ClassSuccess Class = iota
	ClassTransportRetry
	ClassTokenStale
	ClassNoStock
	ClassPriceDrift
	ClassMissingContact
	ClassDuplicateOrder
	ClassHardControl
	ClassFatal
	ClassUnknown
)

// Classify implements the §7 error-classification table. It is intentionally
// a pure function over an int so every adapter call result can be routed
// the same way regardless of which endpoint produced it.
func Classify(code int) Class {
	switch {
	case code == 0:
		return ClassSuccess

	case code == TransportErrorCode || code == 429 || code == 100001 || code == 412:
		return ClassTransportRetry

	case code == -401 || (code >= 100050 && code <= 100059):
		return ClassTokenStale

	case code == 219 || code == 100009:
		return ClassNoStock

	case code == 100034:
		return ClassPriceDrift

	case code == 209001:
		return ClassMissingContact

	case code == 100079 || code == 100048:
		return ClassDuplicateOrder

	case code == 3:
		return ClassHardControl

	case isFatalCode(code):
		return ClassFatal

	default:
		return ClassUnknown
	}
}

// fatalCodes exit the process; they are never retried. See spec.md §4.3 and
// §7.
var fatalCodes = map[int]bool{
	100039: true, // stopped selling
	100049: true, // per-person limit already used
	100080: true, // bad project/session/sku id
	100082: true, // bad project/session/sku id
	100016: true, // not for sale
	100017: true, // not for sale
	100098: true, // too many purchased
}

func isFatalCode(code int) bool {
	return fatalCodes[code]
}
