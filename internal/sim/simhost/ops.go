package simhost

import (
	"deepstore.ai/internal/mediation/buildmat"
	"deepstore.ai/internal/mediation/host"
	"deepstore.ai/internal/mediation/trade"
	"deepstore.ai/internal/sim/model"
)

// Remember implements host.AvailabilityCache.
func (h *Host) Remember(need host.Need, faction string, ok bool) {
	h.avail[availKey{need: need, faction: faction}] = ok
}

// Cached returns the memoized availability answer.
func (h *Host) Cached(need host.Need, faction string) (ok, known bool) {
	ok, known = h.avail[availKey{need: need, faction: faction}]
	return ok, known
}

// ---- Reservations ----

func (h *Host) nativeCanReserve(claimant string, t host.Target) bool {
	if !t.Usable() {
		return false
	}
	owner, taken := h.reserved[cellKey{area: t.Area, cell: t.Cell}]
	return !taken || owner == claimant
}

// CanReserve and Reserve run the pre-hook before the native check, so
// nothing has been granted yet when it fires.
func (h *Host) CanReserve(claimant string, t host.Target) bool {
	if granted, skip := h.disp.CanReserve(claimant, t, false); skip {
		return granted
	}
	return h.nativeCanReserve(claimant, t)
}

func (h *Host) Reserve(claimant string, t host.Target) bool {
	if granted, skip := h.disp.Reserve(claimant, t, false); skip {
		return granted
	}
	if !h.nativeCanReserve(claimant, t) {
		return false
	}
	h.reserved[cellKey{area: t.Area, cell: t.Cell}] = claimant
	return true
}

func (h *Host) Release(claimant string, t host.Target) {
	if h.disp.Release(claimant, t) {
		return
	}
	k := cellKey{area: t.Area, cell: t.Cell}
	if h.reserved[k] == claimant {
		delete(h.reserved, k)
	}
}

// ReservedBy returns the claimant holding cell in the native table.
func (h *Host) ReservedBy(area model.AreaID, cell model.Vec3i) (string, bool) {
	c, ok := h.reserved[cellKey{area: area, cell: cell}]
	return c, ok
}

// ---- Resource counts ----

// nativeCounts counts the fresh resource piles lying in area.
func (h *Host) nativeCounts(area model.AreaID) map[string]int {
	out := map[string]int{}
	for _, p := range h.Ground(area).Piles() {
		def, ok := h.items().Def(p.Kind)
		if !ok || !def.Resource || p.Freshness.NotFresh() {
			continue
		}
		out[p.Kind] += p.Count
	}
	return out
}

// Recount rebuilds the per-kind resource count of the visible area.
func (h *Host) Recount() map[string]int {
	counts := h.nativeCounts(h.visible)
	h.disp.AfterRecount(counts)
	h.counts = counts
	return copyCounts(counts)
}

// ---- Trade ----

type TradeSession struct {
	ID         string
	Negotiator host.Agent
	Sellable   []model.Stack
	Sold       []model.Stack
	closed     bool
}

// OpenTrade lists everything sellable in the negotiator's area.
func (h *Host) OpenTrade(neg host.Agent) *TradeSession {
	native := h.Ground(neg.Area).Piles()
	list, id := h.disp.AfterSellable(neg, native)
	h.trading[neg.Area]++
	return &TradeSession{ID: id, Negotiator: neg, Sellable: list}
}

// Sell hands count units of the pile entityID to the trader.
func (h *Host) Sell(ts *TradeSession, entityID string, count int) (model.Stack, bool) {
	if ts == nil || ts.closed {
		return model.Stack{}, false
	}
	got, ok := h.Ground(ts.Negotiator.Area).Take(entityID, count)
	if !ok {
		return model.Stack{}, false
	}
	ts.Sold = append(ts.Sold, got)
	return got, true
}

// CloseTrade ends ts. Cancelled trades still sweep loose stock back.
func (h *Host) CloseTrade(ts *TradeSession, cancelled bool) {
	if ts == nil || ts.closed {
		return
	}
	ts.closed = true
	if h.trading[ts.Negotiator.Area]--; h.trading[ts.Negotiator.Area] <= 0 {
		delete(h.trading, ts.Negotiator.Area)
	}
	h.disp.AfterTradeClose(trade.Close{SessionID: ts.ID, Cancelled: cancelled, Sold: ts.Sold})
}

// ---- Construction ----

// BuildMenu returns the material menu of pb.
func (h *Host) BuildMenu(pb host.PendingBuild) buildmat.Menu {
	counted := h.nativeCounts(pb.Area)
	if menu := h.disp.BuildMaterialPrompt(pb, counted); menu.Handled {
		return menu
	}
	menu := buildmat.Menu{Handled: true}
	for _, kind := range h.items().Palette {
		def, _ := h.items().Def(kind)
		if counted[kind] > 0 && def.CanMake(pb.Def) {
			menu.Options = append(menu.Options, buildmat.Option{Kind: kind, Label: def.LabelCap()})
		}
	}
	return menu
}

func (h *Host) ChooseMaterial(pb *host.PendingBuild, opt buildmat.Option) {
	h.disp.SelectMaterial(pb, opt)
}

// ---- Refueling ----

// nearest returns the closest pile of area around pos that passes keep.
func (h *Host) nearest(area model.AreaID, pos model.Vec3i, keep func(model.Stack) bool) (model.Stack, bool) {
	for _, p := range h.Ground(area).Near(pos, searchRadius) {
		if keep(p) {
			return p, true
		}
	}
	return model.Stack{}, false
}

// Refuel runs the best-fuel search for target and hauls the selected pile.
func (h *Host) Refuel(agent host.Agent, target host.Refuelable) (model.Stack, bool) {
	if target.Def.Fuel == nil {
		return model.Stack{}, false
	}
	scratch := h.disp.BeforeFuelSearch(agent, target)
	filter := h.items().FuelFilter(*target.Def.Fuel)
	pick, ok := h.nearest(target.Area, agent.Pos, func(s model.Stack) bool { return filter.Allows(s.Kind) })
	selected := ""
	if ok {
		selected = pick.EntityID
	}
	h.disp.AfterFuelSearch(scratch, selected)
	if !ok {
		return model.Stack{}, false
	}
	return h.Ground(target.Area).Take(selected, 0)
}

// ---- Availability ----

// Available answers whether need can be satisfied for agent.
func (h *Host) Available(agent host.Agent, need host.Need) bool {
	native := h.Ground(agent.Area).Total(need.Kind) >= need.Count
	h.Remember(need, agent.Faction, native)
	return h.disp.AfterAvailability(need, agent, native)
}

// ---- Production ----

// Produced is the "already have" count of a do-until-N bill.
func (h *Host) Produced(bill host.Bill) int {
	native := 0
	if bill.Area != "" {
		g := h.Ground(bill.Area)
		for _, out := range bill.Recipe.Outputs {
			native += g.Total(out.Item)
		}
	}
	return h.disp.AfterRecipeCount(bill, native)
}

// BillSatisfied reports whether the bill has reached its target.
func (h *Host) BillSatisfied(bill host.Bill) bool {
	return bill.TargetCount > 0 && h.Produced(bill) >= bill.TargetCount
}

// ---- Medical ----

// MedicalDraw lists the group items an operation by agent may use.
func (h *Host) MedicalDraw(agent host.Agent, group host.ThingGroup) []model.Stack {
	scratch := h.disp.BeforeMedicalDraw(agent)
	defer h.disp.AfterMedicalDraw(scratch)
	return h.disp.ListQuery(scratch, group, h.listGroup(agent.Area, group))
}

func (h *Host) listGroup(area model.AreaID, group host.ThingGroup) []model.Stack {
	var out []model.Stack
	for _, p := range h.Ground(area).Piles() {
		if def, ok := h.items().Def(p.Kind); ok && group.Matches(def) {
			out = append(out, p)
		}
	}
	return out
}

// ---- Repair ----

// RepairPart finds a spare part for agent and hauls one unit of it.
func (h *Host) RepairPart(agent host.Agent) (model.Stack, bool) {
	kind := h.cfg.Tuning.RepairComponentKind
	search := func() (string, bool) {
		p, ok := h.nearest(agent.Area, agent.Pos, func(s model.Stack) bool { return s.Kind == kind })
		return p.EntityID, ok
	}
	native, _ := search()
	pick := h.disp.AfterRepairPartSearch(agent, native, search)
	if pick == "" {
		return model.Stack{}, false
	}
	return h.Ground(agent.Area).Take(pick, 1)
}

// ---- Caravans ----

// FormCaravan opens caravan forming in area and returns the packable piles.
func (h *Host) FormCaravan(area model.AreaID) []model.Stack {
	h.disp.CaravanOpened(area)
	return h.Ground(area).Piles()
}

// Pack removes a pile from the ground into the caravan.
func (h *Host) Pack(area model.AreaID, entityID string, count int) (model.Stack, bool) {
	return h.Ground(area).Take(entityID, count)
}

func (h *Host) StopCaravan(area model.AreaID) { h.disp.CaravanStopped(area) }

func (h *Host) DepartCaravan(faction string, area model.AreaID) {
	h.disp.CaravanDeparted(faction, area)
}
