package timezone

import "time"

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("Asia/Tokyo")
	if err != nil {
		panic(err)
	}
}

// omakase.in serves Japanese restaurants, slot dates and the timestamps
// we report are interpreted in JST no matter where the process runs
func Now() time.Time {
	return time.Now().In(Location)
}
