package domain

// Device is a multifactor device awaiting enrollment confirmation.
type Device struct {
	ID   string
	Name string
	Kind string // e.g. "totp", "webauthn", "sms"
}

// DeviceID returns d.ID. It is the ID accessor for registration stores.
func DeviceID(d Device) string { return d.ID }
