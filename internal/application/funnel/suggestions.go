package funnel

// Improvement suggestions keyed by "fromStage_to_toStage". The table covers
// the ordering funnel the dashboards ship with; unknown transitions fall
// back to generic advice.
var suggestions = map[string]string{
	"menu_view_to_item_view":    "Surface popular dishes and photos higher on the menu page",
	"item_view_to_add_to_cart":  "Check item detail load time and make the add-to-cart button more prominent",
	"add_to_cart_to_cart_view":  "Show a persistent cart indicator after items are added",
	"cart_view_to_checkout":     "Reduce distractions on the cart page and show delivery estimates up front",
	"checkout_to_payment":       "Offer guest checkout and trim the number of required fields",
	"payment_to_order_complete": "Audit payment failures and add more payment methods",
	"landing_to_menu_view":      "Tighten the landing page call-to-action toward the menu",
	"chat_open_to_chat_engaged": "Seed the assistant with suggested questions",
}

const genericSuggestion = "Investigate user session recordings around this transition to locate friction"

func suggestionFor(fromStage, toStage string) string {
	if s, ok := suggestions[fromStage+"_to_"+toStage]; ok {
		return s
	}
	return genericSuggestion
}
