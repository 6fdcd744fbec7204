package domain

import gonanoid "github.com/matoous/go-nanoid/v2"

// NewID generates an opaque record identifier. Ids are created locally so
// records can be made offline and reconciled later by id.
func NewID() (string, error) {
	return gonanoid.New()
}
