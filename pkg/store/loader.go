package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Loader loads and saves documents holding a T.
//
// Documents under the install root ship with the application, so every
// failure to load one is returned. Documents under the user-data root may
// legitimately be missing or damaged; loading them never fails and yields
// the zero T instead.
type Loader[T any] struct {
	roots          *Roots
	codec          Codec
	log            *zap.Logger
	inst           *instruments
	reloadInterval time.Duration
	onUnknown      UnknownHandler
}

// NewLoader creates a Loader. A nil roots uses DefaultRoots.
func NewLoader[T any](roots *Roots, opts ...Option) *Loader[T] {
	if roots == nil {
		roots = DefaultRoots()
	}
	o := newOptions(roots.Config(), opts)

	return &Loader[T]{
		roots:          roots,
		codec:          o.codec,
		log:            o.logger,
		inst:           newInstruments(o.meterProvider, o.tracerProvider),
		reloadInterval: o.reloadInterval,
		onUnknown:      o.onUnknown,
	}
}

// LoadRequired loads a bundled document from the install root.
func (l *Loader[T]) LoadRequired(ctx context.Context, filename string) (T, error) {
	return l.load(ctx, filename, InstallRoot)
}

// LoadOptional loads a document from the user-data root. A missing or
// unreadable document yields the zero T; the failure is only logged.
func (l *Loader[T]) LoadOptional(ctx context.Context, filename string) T {
	v, err := l.load(ctx, filename, UserDataRoot)
	if err != nil {
		var zero T
		return zero
	}
	return v
}

// Load loads filename with the failure policy of root. The error is
// always nil for UserDataRoot.
func (l *Loader[T]) Load(ctx context.Context, filename string, root Root) (T, error) {
	switch root {
	case InstallRoot:
		return l.LoadRequired(ctx, filename)
	case UserDataRoot:
		return l.LoadOptional(ctx, filename), nil
	default:
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrUnknownRoot, root)
	}
}

func (l *Loader[T]) load(ctx context.Context, filename string, root Root) (T, error) {
	var zero T

	ctx, span := l.inst.tracer.Start(ctx, "xmlstore.Load", trace.WithAttributes(
		attribute.String("file", filename),
		attribute.String("root", root.String()),
	))
	defer span.End()

	start := time.Now()
	log := l.log.With(zap.String("file", filename), zap.Stringer("root", root))

	path, err := l.roots.Resolve(filename, root)
	if err != nil {
		return zero, l.loadFailed(ctx, span, log, start, &LoadError{
			File: filename, Root: root, Kind: ErrResolution, Cause: err,
		})
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if root == UserDataRoot {
				log.Debug("user document not found", zap.String("path", path))
				l.inst.recordLoad(ctx, root, outcomeMissing, time.Since(start))
				return zero, nil
			}
			return zero, l.loadFailed(ctx, span, log, start, &LoadError{
				File: filename, Path: path, Root: root, Kind: ErrNotFound, Cause: err,
			})
		}
		return zero, l.loadFailed(ctx, span, log, start, &LoadError{
			File: filename, Path: path, Root: root, Kind: ErrUnreadable, Cause: err,
		})
	}
	defer f.Close()

	var v T
	unknown := NewUnknownMembers()
	if err := l.codec.Decode(f, &v, unknown); err != nil {
		return zero, l.loadFailed(ctx, span, log, start, &LoadError{
			File: filename, Path: path, Root: root, Kind: ErrMalformedDocument, Cause: err,
		})
	}

	if unknown.Len() > 0 {
		for _, name := range unknown.Names() {
			log.Warn("unknown document member", zap.String("member", name))
		}
		l.inst.recordUnknown(ctx, root, unknown.Len())
		span.SetAttributes(attribute.Int("unknown_members", unknown.Len()))
		if l.onUnknown != nil {
			l.onUnknown(filename, root, unknown.Names())
		}
	}

	l.inst.recordLoad(ctx, root, outcomeOK, time.Since(start))
	log.Debug("document loaded", zap.String("path", path), zap.Duration("duration", time.Since(start)))
	return v, nil
}

func (l *Loader[T]) loadFailed(ctx context.Context, span trace.Span, log *zap.Logger, start time.Time, err *LoadError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	l.inst.recordLoad(ctx, err.Root, outcomeFailed, time.Since(start))

	if err.Root == UserDataRoot {
		log.Warn("discarding unreadable user document", zap.Error(err))
	} else {
		log.Error("document load failed", zap.Error(err))
	}
	return err
}

// Save writes value to filename under root. The file is replaced
// atomically, so readers never observe a partial document.
func (l *Loader[T]) Save(ctx context.Context, value T, filename string, root Root) error {
	ctx, span := l.inst.tracer.Start(ctx, "xmlstore.Save", trace.WithAttributes(
		attribute.String("file", filename),
		attribute.String("root", root.String()),
	))
	defer span.End()

	path, err := l.roots.Resolve(filename, root)
	if err != nil {
		return l.saveFailed(ctx, span, &SaveError{File: filename, Root: root, Cause: err})
	}

	var buf bytes.Buffer
	if err := l.codec.Encode(&buf, &value); err != nil {
		return l.saveFailed(ctx, span, &SaveError{File: filename, Path: path, Root: root, Cause: err})
	}

	cfg := l.roots.Config()
	if err := os.MkdirAll(filepath.Dir(path), cfg.dirMode()); err != nil {
		return l.saveFailed(ctx, span, &SaveError{
			File: filename, Path: path, Root: root, Cause: fmt.Errorf("create directory: %w", err),
		})
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return l.saveFailed(ctx, span, &SaveError{
			File: filename, Path: path, Root: root, Cause: fmt.Errorf("write file: %w", err),
		})
	}

	l.inst.recordSave(ctx, root, outcomeOK)
	l.log.Debug("document saved",
		zap.String("file", filename),
		zap.Stringer("root", root),
		zap.String("path", path),
	)
	return nil
}

func (l *Loader[T]) saveFailed(ctx context.Context, span trace.Span, err *SaveError) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	l.inst.recordSave(ctx, err.Root, outcomeFailed)
	l.log.Error("document save failed", zap.String("file", err.File), zap.Stringer("root", err.Root), zap.Error(err))
	return err
}

// Delete removes filename under root. A missing file is not an error.
func (l *Loader[T]) Delete(filename string, root Root) error {
	if err := l.roots.Delete(filename, root); err != nil {
		return err
	}
	l.log.Debug("document deleted", zap.String("file", filename), zap.Stringer("root", root))
	return nil
}

// Path returns the absolute path filename resolves to under root.
func (l *Loader[T]) Path(filename string, root Root) (string, error) {
	return l.roots.Resolve(filename, root)
}
