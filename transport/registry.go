package transport

import (
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/prernay/qpid-jms/logger"
)

// Factory builds an unconnected transport for a remote endpoint. Each
// transport implementation registers one under its URL scheme(s) from an
// init function, the same way database drivers do.
type Factory func(logger *logger.Logger, remote *url.URL, listener Listener) (Transport, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register makes a transport factory available under the given URL scheme.
// Registering the same scheme twice is a programming error.
func Register(scheme string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if factory == nil {
		panic("transport: Register called with a nil factory")
	}
	if _, dup := factories[scheme]; dup {
		panic(fmt.Sprintf("transport: Register called twice for scheme %q", scheme))
	}

	factories[scheme] = factory
}

// Schemes returns the registered scheme names, sorted
func Schemes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	schemes := make([]string, 0, len(factories))
	for scheme := range factories {
		schemes = append(schemes, scheme)
	}
	sort.Strings(schemes)
	return schemes
}

// NewTransport parses the remote URL and hands construction to the factory
// registered for its scheme. The returned transport has not connected yet.
func NewTransport(logger *logger.Logger, rawUrl string, listener Listener) (Transport, error) {
	remote, err := url.Parse(rawUrl)
	if err != nil {
		return nil, fmt.Errorf("invalid remote url %s: %w", rawUrl, err)
	}

	factoriesMu.RLock()
	factory, ok := factories[remote.Scheme]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("no transport registered for scheme %q (have %v)", remote.Scheme, Schemes())
	}

	return factory(logger, remote, listener)
}
