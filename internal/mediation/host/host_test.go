package host

import (
	"testing"

	"deepstore.ai/internal/sim/catalogs"
)

func TestTargetUsable(t *testing.T) {
	cases := []struct {
		in   Target
		want bool
	}{
		{Target{Area: "A1", Valid: true}, true},
		{Target{Area: "A1"}, false},
		{Target{Area: "A1", Valid: true, Destroyed: true}, false},
		{Target{Valid: true}, false},
	}
	for _, tc := range cases {
		if got := tc.in.Usable(); got != tc.want {
			t.Fatalf("Usable(%#v)=%v want %v", tc.in, got, tc.want)
		}
	}
}

func TestThingGroupMatches(t *testing.T) {
	drug := catalogs.ItemDef{ID: "BEER", Category: "DRUG", Drug: true}
	arm := catalogs.ItemDef{ID: "BIONIC_ARM", Category: "IMPLANT", Implant: true}
	herb := catalogs.ItemDef{ID: "HERBAL_MEDICINE", Category: "MEDICINE"}

	if !GroupDrugs.Matches(drug) || GroupDrugs.Matches(arm) {
		t.Fatalf("drugs group mismatch")
	}
	if !GroupBodyParts.Matches(arm) || GroupBodyParts.Matches(herb) {
		t.Fatalf("body parts group mismatch")
	}
	if !GroupMedicine.Matches(herb) || !GroupMedicine.Matches(drug) {
		t.Fatalf("medicine group mismatch")
	}
	if !GroupMedical.Matches(arm) || GroupMedical.Matches(herb) {
		t.Fatalf("medical group mismatch")
	}
	if ThingGroup("weapons").Matches(drug) {
		t.Fatalf("unknown group must match nothing")
	}
}

func TestKnownEvent(t *testing.T) {
	for _, e := range Events {
		if !KnownEvent(string(e)) {
			t.Fatalf("expected %s known", e)
		}
	}
	if KnownEvent("smelt") {
		t.Fatalf("unexpected known event")
	}
}
