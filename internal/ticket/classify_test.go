package ticket

import "testing"

func TestClassifySuccess(t *testing.T) {
	if got := Classify(0); got != ClassSuccess {
		t.Errorf("Classify(0) = %v, want ClassSuccess", got)
	}
}

func TestClassifyTransportRetry(t *testing.T) {
	for _, code := range []int{TransportErrorCode, 429, 100001, 412} {
		if got := Classify(code); got != ClassTransportRetry {
			t.Errorf("Classify(%d) = %v, want ClassTransportRetry", code, got)
		}
	}
}

func TestClassifyTokenStale(t *testing.T) {
	cases := []int{-401, 100050, 100055, 100059}
	for _, code := range cases {
		if got := Classify(code); got != ClassTokenStale {
			t.Errorf("Classify(%d) = %v, want ClassTokenStale", code, got)
		}
	}
}

func TestClassifyNoStock(t *testing.T) {
	for _, code := range []int{219, 100009} {
		if got := Classify(code); got != ClassNoStock {
			t.Errorf("Classify(%d) = %v, want ClassNoStock", code, got)
		}
	}
}

func TestClassifyPriceDrift(t *testing.T) {
	if got := Classify(100034); got != ClassPriceDrift {
		t.Errorf("Classify(100034) = %v, want ClassPriceDrift", got)
	}
}

func TestClassifyMissingContact(t *testing.T) {
	if got := Classify(209001); got != ClassMissingContact {
		t.Errorf("Classify(209001) = %v, want ClassMissingContact", got)
	}
}

func TestClassifyDuplicateOrder(t *testing.T) {
	for _, code := range []int{100079, 100048} {
		if got := Classify(code); got != ClassDuplicateOrder {
			t.Errorf("Classify(%d) = %v, want ClassDuplicateOrder", code, got)
		}
	}
}

func TestClassifyFatal(t *testing.T) {
	cases := []int{100039, 100049, 100080, 100082, 100016, 100017, 100098}
	for _, code := range cases {
		if got := Classify(code); got != ClassFatal {
			t.Errorf("Classify(%d) = %v, want ClassFatal", code, got)
		}
	}
}

func TestClassifyUnknownFallsThrough(t *testing.T) {
	if got := Classify(999999); got != ClassUnknown {
		t.Errorf("Classify(999999) = %v, want ClassUnknown", got)
	}
}
