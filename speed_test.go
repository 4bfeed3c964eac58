package yogafanctl

import "testing"

func TestClampSpeed(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{-50, 0},
		{-1, 0},
		{0, 0},
		{1, 18},
		{9, 18},
		{17, 18},
		{18, 18},
		{19, 19},
		{48, 48},
		{100, 100},
		{101, 100},
		{250, 100},
	}

	for _, c := range cases {
		if got := ClampSpeed(c.in); got != c.want {
			t.Errorf("ClampSpeed(%d)=%d want %d", c.in, got, c.want)
		}
	}
}

func TestClampSpeed_Idempotent(t *testing.T) {
	for v := -10; v <= 110; v++ {
		once := ClampSpeed(v)
		if twice := ClampSpeed(once); twice != once {
			t.Fatalf("ClampSpeed not idempotent at %d: %d then %d", v, once, twice)
		}
	}
}

func TestClampSpeed_MonotonicNonDecreasing(t *testing.T) {
	prev := ClampSpeed(-10)
	for v := -9; v <= 110; v++ {
		cur := ClampSpeed(v)
		if cur < prev {
			t.Fatalf("ClampSpeed decreasing at %d: %d after %d", v, cur, prev)
		}
		prev = cur
	}
}
