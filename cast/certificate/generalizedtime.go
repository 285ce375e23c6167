package certificate

// GeneralizedTime is a UTC timestamp parsed under the stricter rules RFC
// 5280 §4.1.2.5.2 layers on top of ASN.1 GeneralizedTime: exactly the
// fifteen bytes "YYYYMMDDHHMMSSZ", no fractional seconds, no offset.
type GeneralizedTime struct {
	Year                 int
	Month, Day           int
	Hour, Minute, Second int
}

var daysPerMonth = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// ParseGeneralizedTime parses the fifteen-byte form, rejecting anything
// that isn't exactly "YYYYMMDDHHMMSSZ" with every field in range. Leap
// seconds (second == 60) are accepted; leap years are computed the
// usual Gregorian way so
// "19000229000000Z" (1900, not a leap year) is rejected while
// "20000229000000Z" (2000, a leap year) is accepted.
func ParseGeneralizedTime(data []byte) (GeneralizedTime, bool) {
	var out GeneralizedTime
	if len(data) != 15 {
		return out, false
	}
	if data[14] != 'Z' {
		return out, false
	}
	for i := 0; i < 14; i++ {
		if data[i] < '0' || data[i] > '9' {
			return out, false
		}
	}
	digit := func(i int) int { return int(data[i] - '0') }

	out.Year = digit(0)*1000 + digit(1)*100 + digit(2)*10 + digit(3)
	out.Month = digit(4)*10 + digit(5)
	out.Day = digit(6)*10 + digit(7)
	out.Hour = digit(8)*10 + digit(9)
	out.Minute = digit(10)*10 + digit(11)
	out.Second = digit(12)*10 + digit(13)

	if out.Month == 0 || out.Month > 12 {
		return GeneralizedTime{}, false
	}
	limit := daysPerMonth[out.Month-1]
	if out.Month == 2 && isLeapYear(out.Year) {
		limit = 29
	}
	if out.Day == 0 || out.Day > limit {
		return GeneralizedTime{}, false
	}
	if out.Hour > 23 {
		return GeneralizedTime{}, false
	}
	if out.Minute > 59 {
		return GeneralizedTime{}, false
	}
	if out.Second > 60 {
		return GeneralizedTime{}, false
	}
	return out, true
}

func isLeapYear(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// Before reports whether a is strictly earlier than b, field-by-field in
// descending significance (year, month, day, hour, minute, second) —
// deliberately not converted through time.Time, since a GeneralizedTime
// that failed to round-trip through the civil calendar is exactly the
// case this type exists to reject up front.
func (a GeneralizedTime) Before(b GeneralizedTime) bool {
	if a.Year != b.Year {
		return a.Year < b.Year
	}
	if a.Month != b.Month {
		return a.Month < b.Month
	}
	if a.Day != b.Day {
		return a.Day < b.Day
	}
	if a.Hour != b.Hour {
		return a.Hour < b.Hour
	}
	if a.Minute != b.Minute {
		return a.Minute < b.Minute
	}
	return a.Second < b.Second
}
