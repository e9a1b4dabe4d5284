package port

// Clock 是当前时间的出站端口（unix 秒，粗粒度，由外部提供）。
type Clock interface {
	Now() int64
}
