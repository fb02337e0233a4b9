//go:build !windows

package input

import "fmt"

func openPlatform(opts Options) (Injector, error) {
	return nil, fmt.Errorf("method %s: %w", opts.Method, ErrUnsupported)
}
