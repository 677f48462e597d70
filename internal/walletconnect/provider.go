// Package walletconnect implements a wallet provider over the WalletConnect v1
// bridge protocol. The session is long lived: account updates and
// disconnects pushed by the wallet reach subscribers until Close.
//
// 交互流程见文档：https://docs.walletconnect.com/tech-spec#establishing-connection
package walletconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
	"github.com/tidwall/gjson"
	"go.uber.org/atomic"
	"moff.io/crowdfund/internal/wallet"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
	"moff.io/crowdfund/pkg/wcproto"
)

var errBridgeClosed = errors.NewKind(errors.KindProviderUnavailable, "wallet connect bridge closed")

// Transport is one bridge socket; *websocket.Conn satisfies it.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

type DialFunc func(ctx context.Context, url string) (Transport, error)

// DisplayQRCodeFn 展示二维码的函数, uri 为钱包扫码内容, png 为编码后的二维码图片
type DisplayQRCodeFn func(uri string, png []byte) error

func dialWebsocket(ctx context.Context, url string) (Transport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 30 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// WriteQRCodeFile stores the QR code at path for the user to scan.
func WriteQRCodeFile(path string) DisplayQRCodeFn {
	return func(uri string, png []byte) error {
		if err := qrcode.WriteFile(uri, qrcode.Medium, 256, path); err != nil {
			return errors.Wrap(err, "write wallet connect qr code")
		}
		log.Infof("wallet connect - scan %s with your wallet, or paste %s", path, uri)
		return nil
	}
}

type Option func(*Provider)

func WithBridge(url string) Option {
	return func(p *Provider) {
		if url != "" {
			p.bridgeURL = url
		}
	}
}

func WithDialer(d DialFunc) Option { return func(p *Provider) { p.dial = d } }

func WithDisplay(fn DisplayQRCodeFn) Option { return func(p *Provider) { p.display = fn } }

// WithOwnershipProof makes the wallet sign msg after approving the session;
// a signature not matching the first account rejects the session.
func WithOwnershipProof(msg string) Option { return func(p *Provider) { p.proofMsg = msg } }

// WithRequestTimeout bounds signing requests. Session requests wait on the
// caller's context only, the user answers in the wallet at their own pace.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.requestTimeout = d
		}
	}
}

func WithPeerMeta(name, description, url string) Option {
	return func(p *Provider) {
		p.meta = clientMeta{Name: name, Description: description, URL: url}
	}
}

type Provider struct {
	bridgeURL      string
	handshakeTopic string
	clientID       string
	key            []byte
	chainID        *big.Int
	meta           clientMeta
	proofMsg       string
	requestTimeout time.Duration
	dial           DialFunc
	display        DisplayQRCodeFn

	// None zero value means a session request is in flight.
	requesting atomic.Bool

	writeMu sync.Mutex
	mu      sync.Mutex
	conn    Transport
	session *Session
	pending map[int64]chan gjson.Result

	listeners wallet.Listeners
}

func NewProvider(chainID *big.Int, opts ...Option) (*Provider, error) {
	key, err := wcproto.RandomBytes(wcproto.KeySize)
	if err != nil {
		return nil, errors.WrapAndReport(err, "generate wallet connect key")
	}
	p := &Provider{
		bridgeURL:      wcproto.RandomBridgeURL(),
		handshakeTopic: uuid.NewString(),
		clientID:       uuid.NewString(),
		key:            key,
		chainID:        chainID,
		meta:           clientMeta{Name: "crowdfund", Description: "crowdfunding campaigns"},
		requestTimeout: 5 * time.Minute,
		dial:           dialWebsocket,
		pending:        make(map[int64]chan gjson.Result),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.display == nil {
		p.display = func(uri string, _ []byte) error {
			log.Infof("wallet connect - pair with %s", uri)
			return nil
		}
	}
	return p, nil
}

func (p *Provider) Available() bool { return p.bridgeURL != "" }

func (p *Provider) AuthorizedAccounts(context.Context) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil, nil
	}
	return append([]string(nil), p.session.Accounts...), nil
}

func (p *Provider) RequestAuthorization(ctx context.Context) ([]string, error) {
	if !p.requesting.CAS(false, true) {
		return nil, errors.NewKind(errors.KindAuthorizationPending, "a wallet connect session request is already pending")
	}
	defer p.requesting.Store(false)

	if accounts, _ := p.AuthorizedAccounts(ctx); len(accounts) > 0 {
		return accounts, nil
	}
	if err := p.connect(ctx); err != nil {
		return nil, err
	}

	var chainID interface{}
	if p.chainID != nil {
		chainID = p.chainID.Int64()
	}
	req := newJSONRpcRequest("wc_sessionRequest", peer{PeerID: p.clientID, PeerMeta: p.meta, ChainID: chainID})
	res, err := p.roundTrip(ctx, p.handshakeTopic, req, func() error {
		uri := wcproto.URI(p.handshakeTopic, p.bridgeURL, p.key)
		log.Debugf("wallet connect - generated uri:%v", uri)
		png, err := qrcode.Encode(uri, qrcode.Medium, 256)
		if err != nil {
			return errors.WrapAndReport(err, "encode wallet connect qr code")
		}
		return p.display(uri, png)
	})
	if err != nil {
		return nil, err
	}
	if e := res.Get("error"); e.Exists() {
		if strings.Contains(e.Get("message").String(), "Session Rejected") {
			return nil, errors.NewKind(errors.KindUserRejected, "wallet rejected the session")
		}
		return nil, wallet.Classify(rpcError(e), "wallet connect session request")
	}
	var s Session
	if err := json.Unmarshal([]byte(res.Get("result").Raw), &s); err != nil {
		return nil, errors.Wrap(err, "unmarshal wallet info")
	}
	if !s.Approved {
		return nil, errors.NewKind(errors.KindUserRejected, "wallet rejected the session")
	}
	if len(s.Accounts) == 0 {
		return nil, errors.NewWithReport("no wallet accounts acquired")
	}
	if p.proofMsg != "" {
		if err := p.proveOwnership(ctx, &s); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	p.session = &s
	p.mu.Unlock()
	log.Infof("wallet connect - session approved by %s for %v", s.Meta.Name, s.Accounts)
	return append([]string(nil), s.Accounts...), nil
}

func (p *Provider) SigningHandle(ctx context.Context, account string) (*bind.TransactOpts, error) {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil || !containsAccount(s.Accounts, account) {
		return nil, errors.NewKind(errors.KindUserRejected, "account "+account+" is not authorized")
	}
	from := common.HexToAddress(account)
	return &bind.TransactOpts{
		From:    from,
		Context: ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != from {
				return nil, errors.Errorf("not authorized to sign for %s", addr.Hex())
			}
			return p.signTransaction(from, s.PeerID, tx)
		},
	}, nil
}

func (p *Provider) Subscribe(fn func([]string)) func() {
	return p.listeners.Add(fn)
}

// Close ends the session on the wallet side and closes the bridge socket.
func (p *Provider) Close() {
	p.mu.Lock()
	conn, s := p.conn, p.session
	p.conn, p.session = nil, nil
	p.failPending()
	p.mu.Unlock()
	if conn == nil {
		return
	}
	if s != nil {
		req := newJSONRpcRequest("wc_sessionUpdate", sessionUpdate{Approved: false})
		if err := p.publishOn(conn, s.PeerID, req); err != nil {
			log.Warnf("wallet connect - send session close: %v", err)
		}
	}
	conn.Close()
}

func (p *Provider) connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}
	conn, err := p.dial(ctx, wcproto.WebSocketURL(p.bridgeURL))
	if err != nil {
		return errors.WithKind(errors.KindProviderUnavailable, err, "dial to wallet connect bridge url")
	}
	sub := wcproto.Message{Topic: p.clientID, Type: "sub", Silent: true}
	if err := p.write(conn, sub); err != nil {
		conn.Close()
		return err
	}
	p.conn = conn
	go p.readLoop(conn)
	return nil
}

// roundTrip publishes req on topic, runs then, and waits for the response.
func (p *Provider) roundTrip(ctx context.Context, topic string, req *jsonRpcRequest, then func() error) (gjson.Result, error) {
	ch := make(chan gjson.Result, 1)
	p.mu.Lock()
	conn := p.conn
	if conn == nil {
		p.mu.Unlock()
		return gjson.Result{}, errBridgeClosed
	}
	p.pending[req.Id] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.pending, req.Id)
		p.mu.Unlock()
	}()

	if err := p.publishOn(conn, topic, req); err != nil {
		return gjson.Result{}, err
	}
	if then != nil {
		if err := then(); err != nil {
			return gjson.Result{}, err
		}
	}
	select {
	case <-ctx.Done():
		return gjson.Result{}, errors.Classify(ctx.Err(), req.Method)
	case res, ok := <-ch:
		if !ok {
			return gjson.Result{}, errBridgeClosed
		}
		return res, nil
	}
}

func (p *Provider) publishOn(conn Transport, topic string, req *jsonRpcRequest) error {
	payload, err := wcproto.Seal(req.Marshal(), p.key)
	if err != nil {
		return errors.Wrap(err, "encrypt "+req.Method)
	}
	msg := wcproto.Message{Topic: topic, Type: "pub", Payload: payload.Marshal(), Silent: req.IsSilentPayload()}
	log.Debugf("wallet connect - publish %s on %s", req.Method, topic)
	return p.write(conn, msg)
}

func (p *Provider) write(conn Transport, msg wcproto.Message) error {
	b, _ := json.Marshal(msg)
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.WithKind(errors.KindProviderUnavailable, err, "write wallet connect message to server")
	}
	return nil
}

func (p *Provider) readLoop(conn Transport) {
	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			p.dropped(conn, err)
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		if err := p.write(conn, wcproto.Message{Topic: p.clientID, Type: "ack", Silent: true}); err != nil {
			log.Warnf("wallet connect - ack: %v", err)
		}
		var msg wcproto.Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "pub" {
			continue
		}
		payload, err := wcproto.ParsePayload(msg.Payload)
		if err != nil {
			log.Warnf("wallet connect - %v", err)
			continue
		}
		plain, err := wcproto.Open(payload, p.key)
		if err != nil {
			log.Warnf("wallet connect - drop message: %v", err)
			continue
		}
		p.dispatch(gjson.ParseBytes(plain))
	}
}

func (p *Provider) dispatch(rpc gjson.Result) {
	if method := rpc.Get("method").String(); method != "" {
		if method == "wc_sessionUpdate" {
			p.sessionUpdated(rpc.Get("params.0"))
		}
		return
	}
	id := rpc.Get("id").Int()
	p.mu.Lock()
	ch, ok := p.pending[id]
	delete(p.pending, id)
	p.mu.Unlock()
	if ok {
		ch <- rpc
	}
}

func (p *Provider) sessionUpdated(update gjson.Result) {
	if !update.Get("approved").Exists() {
		return
	}
	p.mu.Lock()
	if p.session == nil {
		p.mu.Unlock()
		return
	}
	var accounts []string
	if update.Get("approved").Bool() {
		for _, a := range update.Get("accounts").Array() {
			accounts = append(accounts, a.String())
		}
		if len(accounts) == 0 {
			p.mu.Unlock()
			return
		}
		s := *p.session
		s.Accounts = accounts
		if id := update.Get("chainId").Int(); id != 0 {
			s.ChainID = id
		}
		p.session = &s
	} else {
		// 用户断开链接
		log.Warnf("wallet connect - session closed by wallet")
		p.session = nil
	}
	p.mu.Unlock()
	p.listeners.Notify(accounts)
}

func (p *Provider) dropped(conn Transport, err error) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	hadSession := p.session != nil
	p.conn, p.session = nil, nil
	p.failPending()
	p.mu.Unlock()
	log.Warnf("wallet connect - bridge connection lost: %v", err)
	if hadSession {
		p.listeners.Notify(nil)
	}
}

// failPending must be called with p.mu held.
func (p *Provider) failPending() {
	for id, ch := range p.pending {
		close(ch)
		delete(p.pending, id)
	}
}

func (p *Provider) proveOwnership(ctx context.Context, s *Session) error {
	req := newJSONRpcRequest("eth_sign", s.Accounts[0], p.proofMsg)
	res, err := p.roundTrip(ctx, s.PeerID, req, nil)
	if err != nil {
		return err
	}
	if e := res.Get("error"); e.Exists() {
		return wallet.Classify(rpcError(e), "sign ownership message")
	}
	if !verifySignature(s.Accounts[0], res.Get("result").String(), []byte(p.proofMsg)) {
		return errors.NewKind(errors.KindUserRejected, "ownership signature does not match "+s.Accounts[0])
	}
	return nil
}

type txParams struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Data                 hexutil.Bytes   `json:"data"`
	Value                *hexutil.Big    `json:"value"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Nonce                hexutil.Uint64  `json:"nonce"`
}

func (p *Provider) signTransaction(from common.Address, peerID string, tx *types.Transaction) (*types.Transaction, error) {
	params := txParams{
		From:  from,
		To:    tx.To(),
		Data:  tx.Data(),
		Value: (*hexutil.Big)(tx.Value()),
		Gas:   hexutil.Uint64(tx.Gas()),
		Nonce: hexutil.Uint64(tx.Nonce()),
	}
	if tx.Type() == types.DynamicFeeTxType {
		params.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		params.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		params.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.requestTimeout)
	defer cancel()
	res, err := p.roundTrip(ctx, peerID, newJSONRpcRequest("eth_signTransaction", params), nil)
	if err != nil {
		return nil, err
	}
	if e := res.Get("error"); e.Exists() {
		return nil, wallet.Classify(rpcError(e), "sign transaction")
	}
	raw, err := hexutil.Decode(res.Get("result").String())
	if err != nil {
		return nil, errors.Wrap(err, "decode signed transaction")
	}
	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, errors.Wrap(err, "unmarshal signed transaction")
	}
	sender, err := types.Sender(types.LatestSignerForChainID(signed.ChainId()), signed)
	if err != nil {
		return nil, errors.Wrap(err, "recover transaction signer")
	}
	if sender != from {
		return nil, errors.Errorf("wallet signed as %s, expected %s", sender.Hex(), from.Hex())
	}
	return signed, nil
}

// codedError carries a JSON-RPC error object from the wallet.
type codedError struct {
	code int
	msg  string
}

func (e *codedError) Error() string  { return fmt.Sprintf("%s (code %d)", e.msg, e.code) }
func (e *codedError) ErrorCode() int { return e.code }

func rpcError(e gjson.Result) error {
	return &codedError{code: int(e.Get("code").Int()), msg: e.Get("message").String()}
}

func containsAccount(list []string, account string) bool {
	for _, a := range list {
		if strings.EqualFold(a, account) {
			return true
		}
	}
	return false
}
