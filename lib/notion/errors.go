package notion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindConnectionReset
	KindConnectionRefused
	KindConnectionTimeout
	KindProxyConnectionReset
	KindProxyConnectionRefused
	KindProxyConnectionTimeout
	// the per-call application timer fired before the exchange completed
	KindTimeout
	KindServer
	KindClient
	KindNetwork
	KindDecode
	KindCanceled
	KindConfiguration
	KindAllocation
	KindDownloadTooLarge
	KindDownloadTimeout
	KindEmptyDownload
)

var kindNames = map[Kind]string{
	KindUnknown:                "unknown",
	KindConnectionReset:        "connection reset",
	KindConnectionRefused:      "connection refused",
	KindConnectionTimeout:      "connection timeout",
	KindProxyConnectionReset:   "proxy connection reset",
	KindProxyConnectionRefused: "proxy connection refused",
	KindProxyConnectionTimeout: "proxy connection timeout",
	KindTimeout:                "timeout",
	KindServer:                 "server error",
	KindClient:                 "client error",
	KindNetwork:                "network error",
	KindDecode:                 "decode error",
	KindCanceled:               "canceled",
	KindConfiguration:          "configuration error",
	KindAllocation:             "upload allocation error",
	KindDownloadTooLarge:       "download too large",
	KindDownloadTimeout:        "download timeout",
	KindEmptyDownload:          "empty download",
}

func (k Kind) String() string {
	name, ok := kindNames[k]
	if !ok {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return name
}

// Retryable reports whether a failure of this kind may succeed when the
// same request is attempted again.
func (k Kind) Retryable() bool {
	switch k {
	case KindConnectionReset, KindConnectionRefused, KindConnectionTimeout,
		KindProxyConnectionReset, KindProxyConnectionRefused, KindProxyConnectionTimeout,
		KindTimeout, KindServer:
		return true
	}
	return false
}

type Error struct {
	Kind Kind
	// HTTP status for KindServer and KindClient, zero otherwise.
	Status int
	// error code and message reported by the API, if the body carried one.
	Code      string
	Message   string
	ProxyUsed bool
	Err       error
}

func (e *Error) Error() string {
	msg := "notion: " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (%d)", e.Status)
	}
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the classification of err, or KindUnknown if err did not
// originate from this package.
func KindOf(err error) Kind {
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Kind
	}
	return KindUnknown
}

func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

type apiErrorBody struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusError classifies a non-2xx response.
func statusError(status int, body []byte, proxied bool) *Error {
	kind := KindClient
	if status >= 500 {
		kind = KindServer
	}
	err := &Error{Kind: kind, Status: status, ProxyUsed: proxied}

	var parsed apiErrorBody
	if json.Unmarshal(body, &parsed) == nil && parsed.Object == "error" {
		err.Code = parsed.Code
		err.Message = parsed.Message
	} else if len(body) > 0 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		err.Message = snippet
	}
	return err
}

// networkError classifies an error returned while performing an exchange.
// callCtx is the context carrying the per-call timer, parent is the
// caller's own context.
func networkError(parent, callCtx context.Context, err error, proxied bool) *Error {
	if parent.Err() != nil {
		return &Error{Kind: KindCanceled, ProxyUsed: proxied, Err: err}
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, ProxyUsed: proxied, Err: err}
	}

	kind := KindNetwork
	switch {
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		kind = KindConnectionReset
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = KindConnectionRefused
	case errors.Is(err, syscall.ETIMEDOUT), errors.Is(err, os.ErrDeadlineExceeded), isNetTimeout(err):
		kind = KindConnectionTimeout
	}
	if proxied {
		switch kind {
		case KindConnectionReset:
			kind = KindProxyConnectionReset
		case KindConnectionRefused:
			kind = KindProxyConnectionRefused
		case KindConnectionTimeout:
			kind = KindProxyConnectionTimeout
		}
	}
	return &Error{Kind: kind, ProxyUsed: proxied, Err: err}
}

func isNetTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
