package affect_test

import (
	"encoding/json"
	"testing"

	"github.com/MrWong99/attune/pkg/affect"
)

func TestCrisisLevel_Ordering(t *testing.T) {
	t.Parallel()
	order := []affect.CrisisLevel{affect.CrisisNone, affect.CrisisLow, affect.CrisisMedium, affect.CrisisHigh, affect.CrisisCritical}
	for i := 1; i < len(order); i++ {
		if order[i] <= order[i-1] {
			t.Errorf("%v should be above %v", order[i], order[i-1])
		}
	}
	if got := affect.MaxLevel(affect.CrisisHigh, affect.CrisisLow); got != affect.CrisisHigh {
		t.Errorf("MaxLevel = %v, want high", got)
	}
}

func TestCrisisLevel_TextRoundTrip(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(struct {
		L affect.CrisisLevel `json:"l"`
	}{affect.CrisisMedium})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"l":"medium"}` {
		t.Errorf("json = %s", b)
	}
	var out struct {
		L affect.CrisisLevel `json:"l"`
	}
	if err := json.Unmarshal([]byte(`{"l":"critical"}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.L != affect.CrisisCritical {
		t.Errorf("level = %v, want critical", out.L)
	}
	if err := json.Unmarshal([]byte(`{"l":"severe"}`), &out); err == nil {
		t.Error("expected error for unknown level")
	}
	if affect.CrisisLevel(9).String() != "unknown" {
		t.Error("out-of-range level should print unknown")
	}
}
