package host

// Event names one host extension point.
type Event string

const (
	EventReserveCheck     Event = "reserve_check"
	EventReserve          Event = "reserve"
	EventRelease          Event = "release"
	EventResourceRecount  Event = "resource_recount"
	EventTradeSellable    Event = "trade_sellable"
	EventTradeClose       Event = "trade_close"
	EventBuildMaterial    Event = "build_material_prompt"
	EventFuelSearch       Event = "fuel_search"
	EventAvailability     Event = "availability_check"
	EventRecipeCount      Event = "recipe_product_count"
	EventMedicalDraw      Event = "medical_draw"
	EventListQuery        Event = "list_query"
	EventRepairPartSearch Event = "repair_part_search"
	EventCaravanOpen      Event = "caravan_open"
	EventCaravanStop      Event = "caravan_stop"
	EventCaravanDepart    Event = "caravan_depart"
)

// Events lists every extension point in registration order.
var Events = []Event{
	EventReserveCheck,
	EventReserve,
	EventRelease,
	EventResourceRecount,
	EventTradeSellable,
	EventTradeClose,
	EventBuildMaterial,
	EventFuelSearch,
	EventAvailability,
	EventRecipeCount,
	EventMedicalDraw,
	EventListQuery,
	EventRepairPartSearch,
	EventCaravanOpen,
	EventCaravanStop,
	EventCaravanDepart,
}

func KnownEvent(name string) bool {
	for _, e := range Events {
		if string(e) == name {
			return true
		}
	}
	return false
}
