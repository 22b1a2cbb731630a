// Package imageproxy shortens image urls that are too long to be linked
// inline. Every service declares at registration whether it rewrites the url
// locally or has to call a remote endpoint.
package imageproxy

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"sync"
)

type Mode int

const (
	// the url is rewritten without any io
	ModeLocal Mode = iota
	// the url is sent to a remote service
	ModeRemote
)

func (m Mode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeRemote:
		return "remote"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

type Service struct {
	Name   string
	Mode   Mode
	Local  func(rawURL string) (string, error)
	Remote func(ctx context.Context, rawURL string) (string, error)
}

func (s Service) validate() error {
	if s.Name == "" {
		return fmt.Errorf("imageproxy: service needs a name")
	}
	switch s.Mode {
	case ModeLocal:
		if s.Local == nil {
			return fmt.Errorf("imageproxy: local service %s has no Local func", s.Name)
		}
	case ModeRemote:
		if s.Remote == nil {
			return fmt.Errorf("imageproxy: remote service %s has no Remote func", s.Name)
		}
	default:
		return fmt.Errorf("imageproxy: service %s has unknown mode %s", s.Name, s.Mode)
	}
	return nil
}

func (s Service) apply(ctx context.Context, rawURL string) (string, error) {
	if s.Mode == ModeRemote {
		return s.Remote(ctx, rawURL)
	}
	return s.Local(rawURL)
}

type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
}

func NewRegistry() *Registry {
	return &Registry{services: map[string]Service{}}
}

func (r *Registry) Register(s Service) error {
	err := s.validate()
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[s.Name]; exists {
		return fmt.Errorf("imageproxy: service %s is already registered", s.Name)
	}
	r.services[s.Name] = s
	return nil
}

func (r *Registry) Get(name string) (Service, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[name]
	return s, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shortener applies one registered service to urls longer than Limit.
type Shortener struct {
	Service Service
	Limit   int
}

func (r *Registry) Shortener(name string, limit int) (Shortener, error) {
	s, ok := r.Get(name)
	if !ok {
		return Shortener{}, fmt.Errorf("imageproxy: unknown service %q (have %s)", name, strings.Join(r.Names(), ", "))
	}
	return Shortener{Service: s, Limit: limit}, nil
}

// Process returns rawURL when it already fits the limit. Otherwise the
// service result is returned, falling back to rawURL when the service fails
// or does not produce a valid url.
func (s Shortener) Process(ctx context.Context, rawURL string) string {
	if len(rawURL) <= s.Limit || s.Service.Name == "" {
		return rawURL
	}
	short, err := s.Service.apply(ctx, rawURL)
	if err == nil {
		_, err = url.ParseRequestURI(short)
	}
	if err != nil {
		slog.WarnContext(ctx, "failed to shorten image url, using it as is",
			"service", s.Service.Name,
			"mode", s.Service.Mode.String(),
			"err", err,
		)
		return rawURL
	}
	return short
}
