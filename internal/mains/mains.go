// Package mains works out the local electrical mains frequency so that
// calibration can ignore hum picked up by the microphone.
package mains

import (
	"math"
	"strings"

	tz "github.com/medama-io/go-timezone-country"
	"github.com/thlib/go-timezone-local/tzlocal"
)

// DefaultHz is used when the location is unknown; most of the world runs at 50 Hz
const DefaultHz = 50

// Location is the result of mains detection
type Location struct {
	Timezone string
	Country  string // empty when the timezone has no country
	Hz       int
}

// Detect resolves the system timezone to a country and its mains frequency
func Detect() Location {
	timezone, err := tzlocal.RuntimeTZ()
	if err != nil {
		return Location{Hz: DefaultHz}
	}
	return ForTimezone(timezone)
}

// Frequency returns the local mains frequency in Hz (50 or 60)
func Frequency() int {
	return Detect().Hz
}

// ForTimezone resolves an IANA timezone name
func ForTimezone(timezone string) Location {
	loc := Location{Timezone: timezone, Hz: DefaultHz}
	if timezone == "" || timezone == "UTC" || timezone == "GMT" || strings.HasPrefix(timezone, "Etc/") {
		return loc
	}

	tzMap, err := tz.NewTimezoneCountryMap()
	if err != nil {
		return loc
	}
	country, err := tzMap.GetCountry(timezone)
	if err != nil {
		return loc
	}

	loc.Country = country
	if sixtyHertz[country] {
		loc.Hz = 60
	}
	return loc
}

// FrequencyForTimezone returns the mains frequency for an IANA timezone name
func FrequencyForTimezone(timezone string) int {
	return ForTimezone(timezone).Hz
}

// IsHum reports whether hz sits within cents of the mains fundamental or its
// second harmonic. A non-positive mainsHz disables the check.
func IsHum(hz, mainsHz, cents float64) bool {
	if hz <= 0 || mainsHz <= 0 {
		return false
	}
	for _, harmonic := range []float64{1, 2} {
		if math.Abs(1200*math.Log2(hz/(mainsHz*harmonic))) <= cents {
			return true
		}
	}
	return false
}

// sixtyHertz lists countries on 60 Hz mains. Japan is split by region and
// resolves to 50 Hz (the Tokyo side).
// Source: https://en.wikipedia.org/wiki/Mains_electricity_by_country
var sixtyHertz = func() map[string]bool {
	m := make(map[string]bool)
	for _, c := range []string{
		"United States", "Canada", "Mexico",
		"Belize", "Costa Rica", "El Salvador", "Guatemala", "Honduras", "Nicaragua", "Panama",
		"Bahamas", "Barbados", "Cayman Islands", "Cuba", "Dominican Republic", "Haiti",
		"Jamaica", "Puerto Rico", "Trinidad and Tobago", "U.S. Virgin Islands",
		"Brazil", "Colombia", "Ecuador", "Guyana", "Peru", "Suriname", "Venezuela",
		"South Korea", "Taiwan", "Philippines", "Saudi Arabia",
		"Guam", "American Samoa", "Marshall Islands", "Micronesia", "Palau",
	} {
		m[c] = true
	}
	return m
}()
