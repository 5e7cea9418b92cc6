package state

import "testing"

func emitted(m *Machine, signals ...bool) []bool {
	var out []bool
	for _, s := range signals {
		if t := m.Observe(s); t.Emit {
			out = append(out, t.Connected)
		}
	}
	return out
}

func equal(a, b []bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMachineSuppressesDisconnectBeforeFirstConnect(t *testing.T) {
	m := NewMachine("loc-1", "Home", true)

	got := emitted(m, false, false, true, false)
	want := []bool{true, false}
	if !equal(got, want) {
		t.Errorf("emitted = %v, want %v", got, want)
	}
}

func TestMachineDistinctFiltering(t *testing.T) {
	t.Run("distinct collapses consecutive duplicates", func(t *testing.T) {
		m := NewMachine("loc-1", "Home", true)

		got := emitted(m, true, true, true, false, false, true)
		want := []bool{true, false, true}
		if !equal(got, want) {
			t.Errorf("emitted = %v, want %v", got, want)
		}
	})

	t.Run("without distinct every signal after first connect is emitted", func(t *testing.T) {
		m := NewMachine("loc-1", "Home", false)

		got := emitted(m, false, true, true, false, false)
		want := []bool{true, true, false, false}
		if !equal(got, want) {
			t.Errorf("emitted = %v, want %v", got, want)
		}
	})
}

func TestMachineStates(t *testing.T) {
	m := NewMachine("loc-1", "Home", true)

	if m.CurrentState() != StatePending || m.HaveConnected() {
		t.Fatalf("initial state = %s", m.CurrentState())
	}

	tr := m.Observe(false)
	if tr.Emit || tr.To != StatePending {
		t.Errorf("disconnect in pending: %+v", tr)
	}

	tr = m.Observe(true)
	if !tr.Emit || tr.From != StatePending || tr.To != StateConnected {
		t.Errorf("first connect: %+v", tr)
	}
	if !m.HaveConnected() {
		t.Error("HaveConnected should be true after connect")
	}

	tr = m.Observe(false)
	if !tr.Emit || tr.To != StateDisconnected {
		t.Errorf("disconnect: %+v", tr)
	}

	s := m.GetState()
	if s.LocationID != "loc-1" || s.Name != "Home" || s.CurrentState != StateDisconnected {
		t.Errorf("state = %+v", s)
	}
}

func TestManager(t *testing.T) {
	mgr := NewManager(true)

	a := mgr.GetOrCreate("loc-1", "Home")
	if b := mgr.GetOrCreate("loc-1", "ignored"); a != b {
		t.Error("GetOrCreate should return the existing machine")
	}
	if _, ok := mgr.Get("missing"); ok {
		t.Error("Get should report missing machine")
	}

	a.Observe(true)
	mgr.GetOrCreate("loc-2", "Cabin")

	states := mgr.GetAllStates()
	if len(states) != 2 {
		t.Fatalf("states = %d, want 2", len(states))
	}
	if states["loc-1"].CurrentState != StateConnected {
		t.Errorf("loc-1 = %s", states["loc-1"].CurrentState)
	}
	if states["loc-2"].CurrentState != StatePending {
		t.Errorf("loc-2 = %s", states["loc-2"].CurrentState)
	}
}
