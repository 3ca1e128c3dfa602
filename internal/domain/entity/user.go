package entity

// Identity is the authenticated user as issued by the identity provider.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
	Email       string `json:"email"`
}

// Session is the explicit per-request context carrying who is acting and from
// which device. It replaces an ambient "current user".
type Session struct {
	Identity Identity
	// DeviceID scopes the unread watermark; watermarks never cross devices.
	DeviceID string
}

// DefaultDeviceID is used when a client does not identify its device.
const DefaultDeviceID = "default"

func (s *Session) UID() string {
	if s == nil {
		return ""
	}
	return s.Identity.UID
}

func (s *Session) Device() string {
	if s == nil || s.DeviceID == "" {
		return DefaultDeviceID
	}
	return s.DeviceID
}
