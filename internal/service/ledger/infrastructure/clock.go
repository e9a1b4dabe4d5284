// internal/service/ledger/infrastructure/clock.go
package infrastructure

import "time"

// SystemClock 以 unix 秒返回当前时间
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }
