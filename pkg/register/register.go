package register

import "context"

// 定义注册中心的原信息
type Instance struct {
	ID       string            `json:"id"`   // ip:port
	Name     string            `json:"name"` // eg:"market-service"
	Addr     string            `json:"addr"` // http 监听地址
	MetaData map[string]string `json:"metadata,omitempty"`
}

type Register interface {
	Register(ctx context.Context, ins *Instance) error
	UnRegister(ctx context.Context, ins *Instance) error
}
