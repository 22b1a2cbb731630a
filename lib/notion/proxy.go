package notion

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/proxy"
)

type ProxyKind int

const (
	ProxyNone ProxyKind = iota
	ProxyURL
	ProxyHostPort
)

type ProxyAuth struct {
	Username string
	Password string
}

// ProxyConfig describes an optional forward proxy. Exactly one shape is
// meaningful per Kind: URL for ProxyURL, Host/Port/Auth for ProxyHostPort.
type ProxyConfig struct {
	Kind ProxyKind
	URL  string
	Host string
	Port int
	Auth *ProxyAuth
}

func NoProxy() ProxyConfig {
	return ProxyConfig{Kind: ProxyNone}
}

func ProxyFromURL(rawURL string) ProxyConfig {
	return ProxyConfig{Kind: ProxyURL, URL: rawURL}
}

func ProxyFromHostPort(host string, port int, auth *ProxyAuth) ProxyConfig {
	return ProxyConfig{Kind: ProxyHostPort, Host: host, Port: port, Auth: auth}
}

// ParseProxyDescriptor converts a loosely typed configuration value (as
// produced by decoding json into `any`) into a ProxyConfig. Accepted shapes
// are nil, a url string, or an object with "host" and "port" and an
// optional "auth" object carrying "username" and "password".
func ParseProxyDescriptor(v any) (ProxyConfig, error) {
	switch desc := v.(type) {
	case nil:
		return NoProxy(), nil
	case string:
		if strings.TrimSpace(desc) == "" {
			return NoProxy(), nil
		}
		return ProxyFromURL(desc), nil
	case map[string]any:
		host, _ := desc["host"].(string)
		port, err := descriptorPort(desc["port"])
		if err != nil {
			return ProxyConfig{}, err
		}
		if host == "" {
			return ProxyConfig{}, errorf(KindConfiguration, "proxy object is missing a host")
		}
		var auth *ProxyAuth
		if rawAuth, ok := desc["auth"].(map[string]any); ok {
			username, _ := rawAuth["username"].(string)
			password, _ := rawAuth["password"].(string)
			auth = &ProxyAuth{Username: username, Password: password}
		}
		return ProxyFromHostPort(host, port, auth), nil
	}
	return ProxyConfig{}, errorf(KindConfiguration, "unsupported proxy descriptor of type %T", v)
}

func descriptorPort(v any) (int, error) {
	switch port := v.(type) {
	case float64:
		return int(port), nil
	case int:
		return port, nil
	case int64:
		return int(port), nil
	case json.Number:
		n, err := port.Int64()
		if err != nil {
			return 0, errorf(KindConfiguration, "invalid proxy port %q", port.String())
		}
		return int(n), nil
	case string:
		n, err := strconv.Atoi(port)
		if err != nil {
			return 0, errorf(KindConfiguration, "invalid proxy port %q", port)
		}
		return n, nil
	case nil:
		return 0, errorf(KindConfiguration, "proxy object is missing a port")
	}
	return 0, errorf(KindConfiguration, "invalid proxy port of type %T", v)
}

type AgentKind int

const (
	AgentDirect AgentKind = iota
	AgentHTTP
	AgentSOCKS5
)

func (k AgentKind) String() string {
	switch k {
	case AgentHTTP:
		return "http"
	case AgentSOCKS5:
		return "socks5"
	}
	return "direct"
}

// ProxyAgent is a resolved proxy: the kind of tunnel and the endpoint it
// goes through.
type ProxyAgent struct {
	Kind AgentKind
	URL  *url.URL
}

func ResolveProxy(cfg ProxyConfig) (ProxyAgent, error) {
	switch cfg.Kind {
	case ProxyNone:
		return ProxyAgent{Kind: AgentDirect}, nil
	case ProxyURL:
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return ProxyAgent{}, &Error{Kind: KindConfiguration, Message: "invalid proxy url", Err: err}
		}
		if u.Hostname() == "" {
			return ProxyAgent{}, errorf(KindConfiguration, "proxy url %q has no host", cfg.URL)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return ProxyAgent{Kind: AgentHTTP, URL: u}, nil
		case "socks5", "socks5h":
			return ProxyAgent{Kind: AgentSOCKS5, URL: u}, nil
		}
		return ProxyAgent{}, errorf(KindConfiguration, "unsupported proxy scheme %q", u.Scheme)
	case ProxyHostPort:
		if cfg.Host == "" {
			return ProxyAgent{}, errorf(KindConfiguration, "proxy host is empty")
		}
		if cfg.Port <= 0 || cfg.Port > 65535 {
			return ProxyAgent{}, errorf(KindConfiguration, "proxy port %d is out of range", cfg.Port)
		}
		u := &url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		}
		if cfg.Auth != nil && cfg.Auth.Username != "" {
			u.User = url.UserPassword(cfg.Auth.Username, cfg.Auth.Password)
		}
		return ProxyAgent{Kind: AgentHTTP, URL: u}, nil
	}
	return ProxyAgent{}, errorf(KindConfiguration, "unknown proxy kind %d", cfg.Kind)
}

func (a ProxyAgent) Proxied() bool {
	return a.Kind != AgentDirect
}

// install wires the agent into a transport whose DialContext is already
// set to the direct dialer.
func (a ProxyAgent) install(t *http.Transport, direct *net.Dialer) error {
	switch a.Kind {
	case AgentDirect:
		t.Proxy = nil
	case AgentHTTP:
		t.Proxy = http.ProxyURL(a.URL)
	case AgentSOCKS5:
		dialer, err := proxy.FromURL(a.URL, direct)
		if err != nil {
			return &Error{Kind: KindConfiguration, Message: "failed to create socks5 dialer", Err: err}
		}
		contextDialer, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return errorf(KindConfiguration, "socks5 dialer does not support contexts")
		}
		t.Proxy = nil
		t.DialContext = contextDialer.DialContext
	default:
		return fmt.Errorf("unknown agent kind %d", a.Kind)
	}
	return nil
}
