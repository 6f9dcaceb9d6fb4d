package config

import "context"

// LoadNew decodes the sources described by opts into a new T seeded from
// defaults, which may be nil. The returned Loader reports the file used.
func LoadNew[T any](ctx context.Context, opts Options, defaults *T) (*T, *Loader, error) {
	loader := NewLoader(opts)
	var instance T
	if defaults != nil {
		instance = *defaults
	}
	if err := loader.LoadInto(ctx, &instance); err != nil {
		return nil, nil, err
	}
	return &instance, loader, nil
}
