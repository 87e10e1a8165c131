package model

// MaskSentinel replaces secrets whenever they leave the gateway.
const MaskSentinel = "********"

// DeviceProfile describes how to reach one access-concentrator router.
type DeviceProfile struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Address          string `json:"ip"`
	Port             int    `json:"port"`
	Username         string `json:"username"`
	Password         string `json:"password"`
	IsolationProfile string `json:"isolir_profile"`
	DefaultProfile   string `json:"default_profile"`
}

// ProfilePatch is a partial DeviceProfile as submitted by save_config.
// Nil fields leave the stored value untouched.
type ProfilePatch struct {
	ID               *string `json:"id,omitempty"`
	Name             *string `json:"name,omitempty"`
	Address          *string `json:"ip,omitempty"`
	Port             *int    `json:"port,omitempty"`
	Username         *string `json:"username,omitempty"`
	Password         *string `json:"password,omitempty"`
	IsolationProfile *string `json:"isolir_profile,omitempty"`
	DefaultProfile   *string `json:"default_profile,omitempty"`
}

// RouterConfig is the persisted registry document.
type RouterConfig struct {
	Version uint64          `json:"version,omitempty"`
	Routers []DeviceProfile `json:"routers"`
}
