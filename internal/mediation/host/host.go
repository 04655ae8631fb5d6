// Package host names the accessors the simulation exposes to the mediation
// layer. Every shape here is a plain value or a narrow interface; nothing is
// looked up by reflection.
package host

import (
	"deepstore.ai/internal/sim/catalogs"
	"deepstore.ai/internal/sim/model"
)

// Agent is a pawn acting on behalf of a faction.
type Agent struct {
	ID      string
	Area    model.AreaID
	Faction string
	Pos     model.Vec3i
}

// Target is the cell a claimant wants to reserve.
type Target struct {
	Area      model.AreaID
	Cell      model.Vec3i
	Valid     bool
	Destroyed bool
}

// Usable reports whether the target can be reasoned about at all.
func (t Target) Usable() bool { return t.Valid && !t.Destroyed && t.Area != "" }

type Need struct {
	Kind  string
	Count int
}

// AvailabilityCache is the host's memo of "is this need satisfiable" answers.
type AvailabilityCache interface {
	Remember(need Need, faction string, ok bool)
}

// VisibleArea returns the area currently shown to the player.
type VisibleArea func() model.AreaID

// Bill is a production order.
type Bill struct {
	ID     string
	Area   model.AreaID
	Recipe catalogs.RecipeDef
	// TargetCount is the "do until N" threshold.
	TargetCount int
}

type Refuelable struct {
	ID   string
	Area model.AreaID
	Pos  model.Vec3i
	Def  catalogs.BuildableDef
}

// PendingBuild is a construction command waiting for its material.
type PendingBuild struct {
	Area        model.AreaID
	Def         catalogs.BuildableDef
	Stuff       string
	StuffChosen bool
	Selected    bool
}

type ThingGroup string

const (
	GroupDrugs     ThingGroup = "drugs"
	GroupBodyParts ThingGroup = "body_parts"
	GroupMedicine  ThingGroup = "medicine"
	GroupMedical   ThingGroup = "medical"
)

// Matches reports whether items of def belong in the group listing.
func (g ThingGroup) Matches(def catalogs.ItemDef) bool {
	switch g {
	case GroupDrugs:
		return def.Drug
	case GroupBodyParts:
		return def.Implant
	case GroupMedicine:
		return def.Drug || def.Category == "MEDICINE"
	case GroupMedical:
		return def.Medical()
	default:
		return false
	}
}

// PartSearch reruns the host's native repair-part search and returns the
// entity id of the pile it picked.
type PartSearch func() (entityID string, ok bool)
