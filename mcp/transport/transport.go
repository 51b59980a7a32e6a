package transport

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// RequestId is a JSON-RPC request identifier.
type RequestId int64

// JsonRpcBody is a marshalable JSON-RPC result body.
type JsonRpcBody any

// Transport is the contract for sending and receiving JSON-RPC messages
// over some wire.
type Transport interface {
	// Start begins processing messages on the transport.
	Start(ctx context.Context) error
	// Send sends a JSON-RPC message (request, notification or response).
	Send(ctx context.Context, message *BaseJsonRpcMessage) error
	// Close closes the connection.
	Close() error
	// SetCloseHandler sets the callback for when the connection is closed for any reason.
	SetCloseHandler(handler func())
	// SetErrorHandler sets the callback for when an error occurs.
	// Note that errors are not necessarily fatal; they are used for reporting
	// any kind of exceptional condition out of band.
	SetErrorHandler(handler func(error))
	// SetMessageHandler sets the callback for when a message
	// (request, notification or response) is received over the connection.
	SetMessageHandler(handler func(ctx context.Context, message *BaseJsonRpcMessage))
}

// BaseJSONRPCRequest is a JSON-RPC request that expects a response.
type BaseJSONRPCRequest struct {
	Jsonrpc string    `json:"jsonrpc"`
	Id      RequestId `json:"id"`
	Method  string    `json:"method"`
	// Params is kept raw, the dispatched handler decodes it.
	Params json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON requires both id and method to be present, so that
// notifications and responses do not decode as requests.
func (m *BaseJSONRPCRequest) UnmarshalJSON(data []byte) error {
	type wire struct {
		Jsonrpc string          `json:"jsonrpc"`
		Id      *RequestId      `json:"id"`
		Method  *string         `json:"method"`
		Params  json.RawMessage `json:"params"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Id == nil || w.Method == nil {
		return errors.New("request requires id and method")
	}
	m.Jsonrpc = w.Jsonrpc
	m.Id = *w.Id
	m.Method = *w.Method
	m.Params = w.Params
	return nil
}

// BaseJSONRPCNotification is a one-way JSON-RPC message.
type BaseJSONRPCNotification struct {
	Jsonrpc string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// UnmarshalJSON requires method to be present and id to be absent.
func (m *BaseJSONRPCNotification) UnmarshalJSON(data []byte) error {
	type wire struct {
		Jsonrpc string          `json:"jsonrpc"`
		Id      *RequestId      `json:"id"`
		Method  *string         `json:"method"`
		Params  json.RawMessage `json:"params"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Method == nil || w.Id != nil {
		return errors.New("notification requires method and no id")
	}
	m.Jsonrpc = w.Jsonrpc
	m.Method = *w.Method
	m.Params = w.Params
	return nil
}

// BaseJSONRPCResponse is a successful JSON-RPC response.
type BaseJSONRPCResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	Id      RequestId       `json:"id"`
	Result  json.RawMessage `json:"result"`
}

// UnmarshalJSON requires both id and result to be present.
func (m *BaseJSONRPCResponse) UnmarshalJSON(data []byte) error {
	type wire struct {
		Jsonrpc string          `json:"jsonrpc"`
		Id      *RequestId      `json:"id"`
		Result  json.RawMessage `json:"result"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Id == nil || w.Result == nil {
		return errors.New("response requires id and result")
	}
	m.Jsonrpc = w.Jsonrpc
	m.Id = *w.Id
	m.Result = w.Result
	return nil
}

// BaseJSONRPCErrorInner carries the JSON-RPC error code and message.
type BaseJSONRPCErrorInner struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// BaseJSONRPCError is a JSON-RPC error response.
type BaseJSONRPCError struct {
	Jsonrpc string                `json:"jsonrpc"`
	Id      RequestId             `json:"id"`
	Error   BaseJSONRPCErrorInner `json:"error"`
}

// UnmarshalJSON requires the error member to be present.
func (m *BaseJSONRPCError) UnmarshalJSON(data []byte) error {
	type wire struct {
		Jsonrpc string                 `json:"jsonrpc"`
		Id      RequestId              `json:"id"`
		Error   *BaseJSONRPCErrorInner `json:"error"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Error == nil {
		return errors.New("error response requires error")
	}
	m.Jsonrpc = w.Jsonrpc
	m.Id = w.Id
	m.Error = *w.Error
	return nil
}

// BaseMessageType discriminates the JSON-RPC message kinds.
type BaseMessageType string

const (
	BaseMessageTypeJSONRPCRequestType      BaseMessageType = "request"
	BaseMessageTypeJSONRPCNotificationType BaseMessageType = "notification"
	BaseMessageTypeJSONRPCResponseType     BaseMessageType = "response"
	BaseMessageTypeJSONRPCErrorType        BaseMessageType = "error"
)

// BaseJsonRpcMessage is a union over the four JSON-RPC message kinds.
type BaseJsonRpcMessage struct {
	Type                BaseMessageType
	JsonRpcRequest      *BaseJSONRPCRequest
	JsonRpcNotification *BaseJSONRPCNotification
	JsonRpcResponse     *BaseJSONRPCResponse
	JsonRpcError        *BaseJSONRPCError
}

func NewBaseMessageRequest(request *BaseJSONRPCRequest) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:           BaseMessageTypeJSONRPCRequestType,
		JsonRpcRequest: request,
	}
}

func NewBaseMessageNotification(notification *BaseJSONRPCNotification) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:                BaseMessageTypeJSONRPCNotificationType,
		JsonRpcNotification: notification,
	}
}

func NewBaseMessageResponse(response *BaseJSONRPCResponse) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:            BaseMessageTypeJSONRPCResponseType,
		JsonRpcResponse: response,
	}
}

func NewBaseMessageError(errResp *BaseJSONRPCError) *BaseJsonRpcMessage {
	return &BaseJsonRpcMessage{
		Type:         BaseMessageTypeJSONRPCErrorType,
		JsonRpcError: errResp,
	}
}

// MessageID returns the request id of the message, or 0 for notifications.
func (m *BaseJsonRpcMessage) MessageID() RequestId {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return m.JsonRpcRequest.Id
	case BaseMessageTypeJSONRPCResponseType:
		return m.JsonRpcResponse.Id
	case BaseMessageTypeJSONRPCErrorType:
		return m.JsonRpcError.Id
	}
	return 0
}

// MarshalJSON emits the inner message.
func (m *BaseJsonRpcMessage) MarshalJSON() ([]byte, error) {
	switch m.Type {
	case BaseMessageTypeJSONRPCRequestType:
		return json.Marshal(m.JsonRpcRequest)
	case BaseMessageTypeJSONRPCNotificationType:
		return json.Marshal(m.JsonRpcNotification)
	case BaseMessageTypeJSONRPCResponseType:
		return json.Marshal(m.JsonRpcResponse)
	case BaseMessageTypeJSONRPCErrorType:
		return json.Marshal(m.JsonRpcError)
	}
	return nil, errors.Errorf("unknown message type: %s", m.Type)
}

// ParseMessage partially deserializes a JSON-RPC message,
// discriminating between the four message kinds.
func ParseMessage(body []byte) (*BaseJsonRpcMessage, error) {
	var request BaseJSONRPCRequest
	if err := json.Unmarshal(body, &request); err == nil {
		return NewBaseMessageRequest(&request), nil
	}
	var notification BaseJSONRPCNotification
	if err := json.Unmarshal(body, &notification); err == nil {
		return NewBaseMessageNotification(&notification), nil
	}
	var response BaseJSONRPCResponse
	if err := json.Unmarshal(body, &response); err == nil {
		return NewBaseMessageResponse(&response), nil
	}
	var errResp BaseJSONRPCError
	if err := json.Unmarshal(body, &errResp); err == nil {
		return NewBaseMessageError(&errResp), nil
	}
	return nil, errors.New("unable to parse JSON-RPC message")
}
