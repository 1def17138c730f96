package domain

// EmergencyContactKind задаёт иконку карточки.
type EmergencyContactKind string

const (
	EmergencyKindAlert EmergencyContactKind = "alert"
	EmergencyKindPhone EmergencyContactKind = "phone"
)

// EmergencyContact карточка экстренного контакта.
type EmergencyContact struct {
	Name   string               `json:"name"`
	Number string               `json:"number"`
	Kind   EmergencyContactKind `json:"kind"`
}

const (
	// EmergencyNotice показывается при нажатии на любую карточку.
	EmergencyNotice = "For immediate medical assistance, call 911 or your local emergency number"
	// EmergencyDisclaimer выводится под списком контактов.
	EmergencyDisclaimer = "In case of emergency, always call your local emergency services immediately. This app is for informational purposes only."
)

// EmergencyContacts возвращает копию статического списка контактов.
func EmergencyContacts() []EmergencyContact {
	return []EmergencyContact{
		{Name: "Emergency Services", Number: "911", Kind: EmergencyKindAlert},
		{Name: "Poison Control", Number: "1-800-222-1222", Kind: EmergencyKindPhone},
		{Name: "Mental Health Crisis", Number: "988", Kind: EmergencyKindPhone},
	}
}
