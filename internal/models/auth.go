package models

// AuthResponse is returned by the authenticate endpoint.
type AuthResponse struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresAt    APITime `json:"expiresAt"`
}

// RefreshResponse is returned by the refresh endpoint. The refresh token is
// not rotated.
type RefreshResponse struct {
	AccessToken string  `json:"accessToken"`
	ExpiresAt   APITime `json:"expiresAt"`
}

// WrappedPayload represents the final structure sent over MQTT.
type WrappedPayload struct {
	JWT     string      `json:"jwt"`
	Payload interface{} `json:"payload"`
}
