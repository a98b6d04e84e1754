package rpccodecs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gorilla/rpc"
)

// CustomRequestsCodec accepts lowercase snake_case method names
// ("wallet_sendTransaction") and maps them onto gorilla/rpc's
// "Service.Method" convention before dispatch.
type CustomRequestsCodec struct {
}

func NewCustomRequestsCodec() *CustomRequestsCodec {
	return &CustomRequestsCodec{}
}

func (c *CustomRequestsCodec) NewRequest(r *http.Request) rpc.CodecRequest {
	req := new(serverRequest)
	err := json.NewDecoder(r.Body).Decode(req)
	r.Body.Close()
	return &codecRequest{request: req, err: err}
}

// serverRequest is a single JSON-RPC request.
type serverRequest struct {
	Method string           `json:"method"`
	Params *json.RawMessage `json:"params"`
	Id     *json.RawMessage `json:"id"`
}

// serverResponse mirrors the request's id; Result is null on error.
type serverResponse struct {
	Result interface{}      `json:"result"`
	Error  interface{}      `json:"error"`
	Id     *json.RawMessage `json:"id"`
}

var null = json.RawMessage([]byte("null"))

type codecRequest struct {
	request *serverRequest
	err     error
}

func (c *codecRequest) Method() (string, error) {
	if c.err != nil {
		return "", c.err
	}
	m := c.request.Method
	if len(m) > 1 {
		parts := strings.Split(m, "_")
		if len(parts) != 2 {
			return "", fmt.Errorf("invalid method: %s", m)
		}
		return capitalize(parts[0]) + "." + capitalize(parts[1]), nil
	}
	return m, nil
}

// ReadRequest fills args from params. A bare object is accepted for
// struct-typed args as shorthand for a one-element positional array.
func (c *codecRequest) ReadRequest(args interface{}) error {
	if c.err != nil {
		return c.err
	}
	if c.request.Params == nil {
		c.err = errors.New("rpc: method request ill-formed: missing params field")
		return c.err
	}
	if reflect.ValueOf(args).Elem().Kind() == reflect.Struct {
		params := []interface{}{args}
		if err := json.Unmarshal(*c.request.Params, &params); err == nil {
			return nil
		}
		c.err = json.Unmarshal(*c.request.Params, args)
		return c.err
	}
	c.err = json.Unmarshal(*c.request.Params, &args)
	return c.err
}

func (c *codecRequest) WriteResponse(w http.ResponseWriter, reply interface{}, methodErr error) error {
	if c.err != nil {
		return c.err
	}
	res := &serverResponse{
		Result: reply,
		Error:  &null,
		Id:     c.request.Id,
	}
	if methodErr != nil {
		res.Error = methodErr.Error()
		res.Result = &null
	}
	if c.request.Id == nil {
		// Notification, no response body.
		res.Id = &null
		return nil
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	encoder := json.NewEncoder(w)
	c.err = encoder.Encode(res)
	return c.err
}

func capitalize(value string) string {
	r, n := utf8.DecodeRuneInString(value)
	return string(unicode.ToUpper(r)) + value[n:]
}
