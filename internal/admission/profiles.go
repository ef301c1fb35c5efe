package admission

import "time"

// Profile maps a symbolic limit name to its (limit, period) pair so call sites
// select policy by name rather than scattering literals.
type Profile struct {
	Limit  int
	Period time.Duration
}

var profiles = map[string]Profile{
	"default": {Limit: 100, Period: time.Hour},
	"strict":  {Limit: 10, Period: time.Minute},
	"medium":  {Limit: 1000, Period: time.Hour},
	"high":    {Limit: 10000, Period: time.Hour},
	"health":  {Limit: 1000, Period: time.Minute},
	"write":   {Limit: 20, Period: time.Hour},
	"ingest":  {Limit: 1000, Period: time.Hour},
}

// LookupProfile resolves a named profile.
func LookupProfile(name string) (Profile, bool) {
	p, ok := profiles[name]
	return p, ok
}

// DefaultProfile returns the fallback profile used when a name is unknown.
func DefaultProfile() Profile {
	return profiles["default"]
}
