package ws

import (
	"errors"

	"github.com/segmentio/encoding/json"
	"quotehub.com/internal/market/model"
	"quotehub.com/internal/market/subscription"
	"quotehub.com/pkg/xerr"
)

const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"

	MsgSubscribed   = "subscribed"
	MsgUnsubscribed = "unsubscribed"
	MsgError        = "error"
	MsgMarketData   = "market-data"
	MsgSnapshot     = "snapshot"
)

// ClientMsg 客户端 -> 服务端
type ClientMsg struct {
	Type    string               `json:"type"` // subscribe | unsubscribe
	Payload subscription.Payload `json:"payload"`
}

// ReplyMsg 订阅请求的应答
type ReplyMsg struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
	Code     int      `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// DataFrame 推流事件
type DataFrame struct {
	Type    string           `json:"type"`
	Channel string           `json:"channel"`
	Kind    model.StreamKind `json:"kind"`
	Data    model.Record     `json:"data"`
}

// SnapshotFrame 榜单快照，data 是缓存里的 records 原样转发
type SnapshotFrame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// EncodeEvent 返回 payload 和合并用的 key（同一 kind+symbol 只保留最新）
func EncodeEvent(channel string, ev model.Event) (key string, payload []byte, err error) {
	payload, err = json.Marshal(DataFrame{Type: MsgMarketData, Channel: channel, Kind: ev.Kind, Data: ev.Record})
	if err != nil {
		return "", nil, err
	}
	return string(ev.Kind) + "|" + ev.Symbol(), payload, nil
}

func EncodeSnapshot(channel string, data []byte) ([]byte, error) {
	return json.Marshal(SnapshotFrame{Type: MsgSnapshot, Channel: channel, Data: json.RawMessage(data)})
}

func encodeReply(typ string, channels []string, err error) []byte {
	m := ReplyMsg{Type: typ, Channels: channels}
	if err != nil {
		m.Type = MsgError
		m.Code = xerr.CodeOf(err)
		m.Message = errMessage(err)
	}
	b, _ := json.Marshal(m)
	return b
}

// errMessage 只回调用方错误的描述，其余统一 internal error
func errMessage(err error) string {
	var ce *xerr.CodeError
	if errors.As(err, &ce) && ce.Code != xerr.UpstreamFailure && ce.Code != xerr.ServerCommonError {
		return ce.Msg
	}
	return xerr.MapErrMsg(xerr.CodeOf(err))
}
