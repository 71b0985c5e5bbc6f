package domain

import "time"

// Source is a registered origin location. Coordinates are mandatory:
// a source cannot be created without a resolved position.
type Source struct {
	ID        string
	Name      string
	Address   string
	Coords    Coordinates
	CreatedAt time.Time
}

// Destination is a registered delivery location. Coords is nil until the
// destination has been geocoded; a nil-coords destination is excluded from
// bulk distance computation but remains editable and geocodable.
type Destination struct {
	ID        string
	Name      string
	Pincode   string
	Address   string
	Coords    *Coordinates
	CreatedAt time.Time
}

// HasCoords reports whether the destination's position is resolved.
func (d *Destination) HasCoords() bool { return d != nil && d.Coords != nil }
