package model

// VenueRecord is one entry of the known-venue directory.
type VenueRecord struct {
	ID        string   `json:"id" yaml:"id"`
	Name      string   `json:"name" yaml:"name"`
	Aliases   []string `json:"aliases,omitempty" yaml:"aliases"`
	Address   string   `json:"address,omitempty" yaml:"address"`
	City      string   `json:"city,omitempty" yaml:"city"`
	State     string   `json:"state,omitempty" yaml:"state"`
	Zip       string   `json:"zip,omitempty" yaml:"zip"`
	Latitude  *float64 `json:"latitude,omitempty" yaml:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" yaml:"longitude"`
}
