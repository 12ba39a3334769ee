package fixedpoint

import "testing"

func TestAddSub(t *testing.T) {
	a := FromInt64(100)
	b := FromFloat64(0.5)
	got := a.Add(b).Sub(b)
	if !got.Equal(a) {
		t.Fatalf("Add/Sub round trip: got %s want %s", got, a)
	}
}

func TestMulDiv(t *testing.T) {
	a := FromInt64(10)
	b := FromInt64(3)
	prod := a.Mul(b)
	if !prod.Equal(FromInt64(30)) {
		t.Fatalf("Mul: got %s want 30", prod)
	}
	quot, err := prod.Div(b)
	if err != nil {
		t.Fatalf("Div: %v", err)
	}
	if !quot.Equal(a) {
		t.Fatalf("Div round trip: got %s want %s", quot, a)
	}
}

func TestDivByZero(t *testing.T) {
	if _, err := FromInt64(1).Div(Zero); err == nil {
		t.Fatal("expected division by zero error")
	}
}

func TestCeilFloorRounding(t *testing.T) {
	v := FromFloat64(1.0001)
	if got := v.CeilToInt64(); got != 2 {
		t.Fatalf("CeilToInt64: got %d want 2", got)
	}
	if got := v.FloorToInt64(); got != 1 {
		t.Fatalf("FloorToInt64: got %d want 1", got)
	}
}

func TestClampMinMax(t *testing.T) {
	lo, hi := FromInt64(-1), FromInt64(1)
	if got := Clamp(FromInt64(5), lo, hi); !got.Equal(hi) {
		t.Fatalf("Clamp high: got %s want %s", got, hi)
	}
	if got := Clamp(FromInt64(-5), lo, hi); !got.Equal(lo) {
		t.Fatalf("Clamp low: got %s want %s", got, lo)
	}
	if got := Min(lo, hi); !got.Equal(lo) {
		t.Fatalf("Min: got %s want %s", got, lo)
	}
	if got := Max(lo, hi); !got.Equal(hi) {
		t.Fatalf("Max: got %s want %s", got, hi)
	}
}

func TestOneULPRoundTrip(t *testing.T) {
	// withdraw(deposit(x)) >= x: depositing x and crediting one ULP in the
	// user's favor must never let a subsequent withdrawal of x fail.
	x := FromInt64(1000)
	credited := x.Add(OneULP())
	if credited.LessThan(x) {
		t.Fatalf("ULP-in-favor-of-user violated: %s < %s", credited, x)
	}
}
