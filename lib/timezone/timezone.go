package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Europe/Bratislava")
	if err != nil {
		panic(err)
	}
}

// force the timezone to parliament local time, the servers running the
// scraper are not guaranteed to be in the same timezone as the source
// website and all dates on it are local
func Now() time.Time {
	return time.Now().In(Location)
}
