package timing

import "strconv"

// VTime is a point on, or a distance along, the virtual timeline. The unit is
// one picosecond. Virtual time has no relation to wall-clock time.
type VTime int64

// Units of virtual time.
const (
	PS  VTime = 1
	NS        = 1000 * PS
	US        = 1000 * NS
	MS        = 1000 * US
	Sec       = 1000 * MS
)

var timeUnits = []struct {
	unit   VTime
	suffix string
}{
	{Sec, "s"},
	{MS, "ms"},
	{US, "us"},
	{NS, "ns"},
	{PS, "ps"},
}

// String renders the time in the largest unit that divides it evenly, for
// example "1100 ns" or "2 us".
func (t VTime) String() string {
	if t == 0 {
		return "0 s"
	}

	for _, u := range timeUnits {
		if t%u.unit == 0 {
			return strconv.FormatInt(int64(t/u.unit), 10) + " " + u.suffix
		}
	}

	return strconv.FormatInt(int64(t), 10) + " ps"
}

// TimeTeller can be used to get the current time.
type TimeTeller interface {
	Now() VTime
}
