package port

// Leadership 保证同一时刻只有一个审计中继在投递，从而维持记录的全序。
// Lock 阻塞直到成为 leader（或超时返回错误）。
type Leadership interface {
	Lock() error
	Unlock() error
}
