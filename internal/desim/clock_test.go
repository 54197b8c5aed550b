package desim

import "testing"

func TestRunOrdersByTimeThenInsertion(t *testing.T) {
	c := New()
	var order []string
	c.Schedule(2, func() { order = append(order, "b") })
	c.Schedule(1, func() { order = append(order, "a") })
	c.Schedule(2, func() { order = append(order, "c") }) // same instant as "b", scheduled later
	end := c.Run(nil)

	want := []string{"a", "b", "c"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if end != 2 {
		t.Fatalf("final time = %v, want 2", end)
	}
}

func TestNestedScheduleAdvancesTime(t *testing.T) {
	c := New()
	var at float64
	c.Schedule(1, func() {
		c.Schedule(3, func() { at = c.Now() })
	})
	c.Run(nil)
	if at != 4 {
		t.Fatalf("nested event fired at %v, want 4", at)
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	c := New()
	fired := false
	h := c.Schedule(1, func() { fired = true })
	h.Cancel()
	c.Run(nil)
	if fired {
		t.Fatal("cancelled event fired")
	}
}

func TestRunStopsEarly(t *testing.T) {
	c := New()
	count := 0
	for i := 0; i < 5; i++ {
		c.Schedule(float64(i), func() { count++ })
	}
	c.Run(func() bool { return count == 2 })
	if count != 2 {
		t.Fatalf("processed %d events, want 2", count)
	}
}
