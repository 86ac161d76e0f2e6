package store

type User struct {
	ID           string `json:"id" bson:"_id"`
	Name         string `json:"name" bson:"name,omitempty"`
	Number       int64  `json:"number,omitempty" bson:"number,omitempty"`
	Church       string `json:"church,omitempty" bson:"church,omitempty"`
	Location     string `json:"location,omitempty" bson:"location,omitempty"`
	Email        string `json:"email,omitempty" bson:"email,omitempty"`
	PasswordHash string `json:"-" bson:"password_hash,omitempty"`
	GoogleID     string `json:"google_id,omitempty" bson:"google_id,omitempty"`
	Secret       string `json:"secret,omitempty" bson:"secret,omitempty"`
}

type Session struct {
	ID        string `json:"id" bson:"_id"`
	UserID    string `json:"user_id" bson:"user_id"`
	ExpiresAt int64  `json:"expires_at" bson:"expires_at"`
}
