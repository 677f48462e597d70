package wcproto

import (
	"encoding/hex"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
)

// 会话建立流程:
//  1. 订阅自身 clientID 话题
//  2. 在 handshakeTopic 上发布加密的 wc_sessionRequest
//  3. 展示 URI 二维码, 等待钱包响应, 之后监听 wc_sessionUpdate

const (
	alphanumerical  = "abcdefghijklmnopqrstuvwxyz0123456789"
	bridgeURLFormat = "https://%v.bridge.walletconnect.org"
)

// Message is the relay frame exchanged with the bridge.
type Message struct {
	Topic string `json:"topic"`
	// pub sub ack
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

func RandomBridgeURL() string {
	return fmt.Sprintf(bridgeURLFormat, string(alphanumerical[rand.Intn(len(alphanumerical))]))
}

// WebSocketURL turns a bridge URL into the relay socket address.
func WebSocketURL(bridge string) string {
	switch {
	case strings.HasPrefix(bridge, "https://"):
		bridge = "wss://" + strings.TrimPrefix(bridge, "https://")
	case strings.HasPrefix(bridge, "http://"):
		bridge = "ws://" + strings.TrimPrefix(bridge, "http://")
	}
	return bridge + "?protocol=wc&version=1&env=crowdfund"
}

// URI is what the wallet scans to join the handshake topic.
func URI(handshakeTopic, bridge string, key []byte) string {
	return fmt.Sprintf("wc:%s@1?bridge=%s&key=%s", handshakeTopic, url.QueryEscape(bridge), hex.EncodeToString(key))
}

// ExtractRootDomain returns the registrable part of a bridge host.
func ExtractRootDomain(raw string) string {
	u, err := url.Parse(raw)
	host := raw
	if err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	parts := strings.Split(host, ".")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, ".")
}
