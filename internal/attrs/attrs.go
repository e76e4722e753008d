// Package attrs provides shared constants and validation for the
// categorical grouping attributes of a traffic stop
package attrs

// Attribute constants
const (
	County       = "county"
	DriverRace   = "driver_race"
	DriverGender = "driver_gender"
	AgeBucket    = "age_bucket"
	Violation    = "violation"
)

// ValidAttrs contains all attributes a summary can group by
var ValidAttrs = []string{County, DriverRace, DriverGender, AgeBucket, Violation}

// IsValid checks if the given attribute is in the list of valid grouping attributes
func IsValid(attr string) bool {
	for _, validAttr := range ValidAttrs {
		if attr == validAttr {
			return true
		}
	}
	return false
}

// ValidAttrsString returns a comma-separated string of valid attributes for error messages
func ValidAttrsString() string {
	return "county, driver_race, driver_gender, age_bucket, violation"
}
