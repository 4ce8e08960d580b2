package models

// User is an account that may own pictures. PasswordHash carries the encoded
// pbkdf2 hash and is never serialized into API responses.
type User struct {
	Username     string `json:"username"`
	Name         string `json:"name"`
	PasswordHash string `json:"passwordHash,omitempty"`
	Admin        bool   `json:"admin"`
}

// Picture is the metadata record for one stored image. Owner is nil when the
// owning account has been deleted; the image itself survives its owner.
// Filename is the server-generated name of the stored image bytes and is not
// exposed through the API.
type Picture struct {
	ID       int64   `json:"id"`
	Owner    *string `json:"owner"`
	Info     *string `json:"info"`
	Filename string  `json:"filename,omitempty"`
}

// OwnedBy reports whether the picture currently belongs to username. A
// picture with no owner belongs to nobody.
func (p Picture) OwnedBy(username string) bool {
	return p.Owner != nil && *p.Owner == username
}
