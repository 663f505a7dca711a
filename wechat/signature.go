package wechat

import (
	"github.com/silenceper/wechat/v2/util"
)

// Signature 计算微信服务器签名：token、timestamp、nonce 字典序排序后拼接，取 SHA-1 十六进制摘要
func Signature(token, timestamp, nonce string) string {
	return util.Signature(token, timestamp, nonce)
}

// CheckSignature 校验回调请求的签名，token 或 signature 缺失时一律视为失败
func CheckSignature(token, signature, timestamp, nonce string) bool {
	if token == "" || signature == "" {
		return false
	}
	return Signature(token, timestamp, nonce) == signature
}
