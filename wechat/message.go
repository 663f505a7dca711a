package wechat

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"github.com/silenceper/wechat/v2/officialaccount/message"
)

// 关注事件的 EventKey 带有 "qrscene_" 前缀
const subscribeKeyPrefix = "qrscene_"

// ParseMessage 将微信推送的扁平 XML 解析为 标签名 -> 文本 的映射。
// 解析失败时返回 ok=false，调用方应直接回复 success。
func ParseMessage(payload []byte) (fields map[string]string, ok bool) {
	dec := xml.NewDecoder(bytes.NewReader(payload))
	fields = make(map[string]string)

	var (
		depth   int
		current string
		text    strings.Builder
		rooted  bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, false
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				if rooted {
					return nil, false
				}
				rooted = true
			}
			if depth == 2 {
				current = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				fields[current] = text.String()
			}
			depth--
		}
	}
	if !rooted {
		return nil, false
	}
	return fields, true
}

// Event 是从回调消息中提取出的扫码登录事件
type Event struct {
	Scene  string
	OpenID string
}

// ExtractLoginEvent 从消息字段中识别扫码事件：
// 已关注用户扫码触发 SCAN，EventKey 即场景值；
// 未关注用户扫码关注触发 subscribe，EventKey 为 "qrscene_" + 场景值。
// 其它消息返回 ok=false。
func ExtractLoginEvent(fields map[string]string) (Event, bool) {
	if message.MsgType(fields["MsgType"]) != message.MsgTypeEvent {
		return Event{}, false
	}

	var evt Event
	switch message.EventType(fields["Event"]) {
	case message.EventScan:
		evt.Scene = fields["EventKey"]
	case message.EventSubscribe:
		if key := fields["EventKey"]; len(key) > len(subscribeKeyPrefix) {
			evt.Scene = key[len(subscribeKeyPrefix):]
		}
	default:
		return Event{}, false
	}
	evt.OpenID = fields["FromUserName"]
	if evt.Scene == "" || evt.OpenID == "" {
		return Event{}, false
	}
	return evt, true
}
