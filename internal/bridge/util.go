package bridge

import "time"

func zeroDeadline() time.Time {
	return time.Now().Add(time.Second)
}
