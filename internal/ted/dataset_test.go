package ted

import (
	"testing"
)

func TestDataset_Summarize(t *testing.T) {
	h, cols := validFixture()
	cols[1].Values = append(cols[1].Values[:1], Real(2.5))
	cols[1].Values = append(cols[1].Values, Missing)
	cols[0].Values = append(cols[0].Values, Offset(2))
	cols[2].Values = append(cols[2].Values, Label("c"))

	d := NewDataset(h, cols)
	got := d.Summarize()
	if len(got) != 3 {
		t.Fatalf("Summarize() returned %d columns, want 3", len(got))
	}

	v := got[1]
	if v.Name != "v" || v.Type != TypeReal || v.Unit != "mV" {
		t.Errorf("summary identity = %+v", v)
	}
	if v.Count != 3 || v.Missing != 1 {
		t.Errorf("Count, Missing = %d, %d, want 3, 1", v.Count, v.Missing)
	}
	if v.Min == nil || *v.Min != 1.5 || v.Max == nil || *v.Max != 2.5 || v.Mean == nil || *v.Mean != 2 {
		t.Errorf("Min/Max/Mean = %v/%v/%v, want 1.5/2.5/2", v.Min, v.Max, v.Mean)
	}

	if g := got[2]; g.Min != nil || g.Mean != nil {
		t.Errorf("label column should carry no numeric summary: %+v", g)
	}
}

func TestDataset_ValidateStates(t *testing.T) {
	h, cols := validFixture()
	d := NewDataset(h, cols)

	if d.State() != StateUnvalidated {
		t.Fatalf("new dataset state = %s, want %s", d.State(), StateUnvalidated)
	}
	if !d.Issues().Empty() {
		t.Error("unvalidated dataset should report no issues")
	}

	if res := d.Validate(); !res.Empty() || !d.IsValid() {
		t.Fatalf("Validate() = %v, state %s", res, d.State())
	}

	if err := d.SetValue("v", 0, Label("oops")); err != nil {
		t.Fatal(err)
	}
	if d.State() != StateUnvalidated {
		t.Errorf("state after SetValue = %s, want %s", d.State(), StateUnvalidated)
	}
	if res := d.Validate(); !res.Has(IssueValueType) || d.State() != StateInvalid {
		t.Errorf("Validate() after bad SetValue = %v, state %s", res, d.State())
	}

	if err := d.SetValue("nope", 0, Missing); err == nil {
		t.Error("SetValue on unknown column should fail")
	}
	if err := d.SetValue("v", 9, Missing); err == nil {
		t.Error("SetValue out of range should fail")
	}
	if err := d.AppendRow(Offset(3)); err == nil {
		t.Error("AppendRow with too few values should fail")
	}
}
