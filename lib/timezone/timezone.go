package timezone

import (
	"time"
	_ "time/tzdata"
)

var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		panic(err)
	}
}

// the panel and the customer table both speak Brasília time, so sync
// timestamps are taken there regardless of where the job runs.
func Now() time.Time {
	return time.Now().In(Location)
}
