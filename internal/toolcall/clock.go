package toolcall

import "time"

// nowUnixNano is indirected so tests can freeze synthetic-id generation.
var nowUnixNano = func() int64 {
	return time.Now().UnixNano()
}
