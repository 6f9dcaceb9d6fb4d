package store_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vzahanych/xmlstore/pkg/store"
)

type Creature struct {
	Name  string   `xml:"Name"`
	CR    string   `xml:"CR,attr"`
	HP    int      `xml:"HP"`
	Feats []string `xml:"Feats>Feat"`
}

type Party struct {
	Name    string     `xml:"name,attr"`
	Members []Creature `xml:"Members>Creature"`
}

type testRoots struct {
	*store.Roots
	install string
	user    string
}

func newTestRoots(t *testing.T) testRoots {
	t.Helper()
	install, user := t.TempDir(), filepath.Join(t.TempDir(), "Combat Manager")
	return testRoots{
		Roots:   store.NewRoots(&store.Config{InstallDir: install, UserDataDir: user, Indent: "  "}),
		install: install,
		user:    user,
	}
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoaderRoundTrip(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	loader := store.NewLoader[Party](roots.Roots)

	want := Party{
		Name: "Heroes",
		Members: []Creature{
			{Name: "Valeros", CR: "3", HP: 30, Feats: []string{"Power Attack", "Cleave"}},
			{Name: "Seoni", CR: "3", HP: 18},
		},
	}

	for _, root := range []store.Root{store.InstallRoot, store.UserDataRoot} {
		t.Run(root.String(), func(t *testing.T) {
			require.NoError(t, loader.Save(ctx, want, "party.xml", root))

			got, err := loader.Load(ctx, "party.xml", root)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoaderSaveUsesResolvedPath(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	loader := store.NewLoader[Party](roots.Roots)

	require.NoError(t, loader.Save(ctx, Party{Name: "A"}, "party.xml", store.UserDataRoot))
	assert.FileExists(t, filepath.Join(roots.user, "party.xml"))
	assert.NoFileExists(t, filepath.Join(roots.install, "party.xml"))
	assert.NoFileExists(t, "party.xml")

	path, err := loader.Path("party.xml", store.UserDataRoot)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(roots.user, "party.xml"), path)
}

func TestLoaderSaveCreatesParentDirectories(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	loader := store.NewLoader[Party](roots.Roots)

	name := filepath.Join("campaigns", "rise", "party.xml")
	require.NoError(t, loader.Save(ctx, Party{Name: "Rise"}, name, store.UserDataRoot))
	assert.Equal(t, "Rise", loader.LoadOptional(ctx, name).Name)
}

func TestLoaderMissingDocument(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	log, logs := observed()
	loader := store.NewLoader[Party](roots.Roots, store.WithLogger(log))

	t.Run("user data yields zero value", func(t *testing.T) {
		got := loader.LoadOptional(ctx, "nothing.xml")
		assert.Equal(t, Party{}, got)

		got, err := loader.Load(ctx, "nothing.xml", store.UserDataRoot)
		require.NoError(t, err)
		assert.Equal(t, Party{}, got)
		assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
	})

	t.Run("bundled fails", func(t *testing.T) {
		_, err := loader.LoadRequired(ctx, "nothing.xml")
		require.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, err, fs.ErrNotExist)

		var lerr *store.LoadError
		require.ErrorAs(t, err, &lerr)
		assert.Equal(t, "nothing.xml", lerr.File)
		assert.Equal(t, filepath.Join(roots.install, "nothing.xml"), lerr.Path)
		assert.Equal(t, store.InstallRoot, lerr.Root)

		assert.Equal(t, 1, logs.FilterMessage("document load failed").Len())
	})
}

func TestLoaderMalformedDocument(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	const broken = `<Party name="x"><Members><Creature>`
	writeFile(t, roots.install, "party.xml", broken)
	writeFile(t, roots.user, "party.xml", broken)

	t.Run("bundled fails", func(t *testing.T) {
		log, logs := observed()
		loader := store.NewLoader[Party](roots.Roots, store.WithLogger(log))

		_, err := loader.LoadRequired(ctx, "party.xml")
		assert.ErrorIs(t, err, store.ErrMalformedDocument)
		assert.Equal(t, 1, logs.FilterMessage("document load failed").Len())
	})

	t.Run("user data yields zero value", func(t *testing.T) {
		log, logs := observed()
		loader := store.NewLoader[Party](roots.Roots, store.WithLogger(log))

		assert.Equal(t, Party{}, loader.LoadOptional(ctx, "party.xml"))
		entries := logs.FilterMessage("discarding unreadable user document").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "party.xml", entries[0].ContextMap()["file"])
	})

	t.Run("empty file", func(t *testing.T) {
		writeFile(t, roots.install, "empty.xml", "")
		loader := store.NewLoader[Party](roots.Roots)

		_, err := loader.LoadRequired(ctx, "empty.xml")
		assert.ErrorIs(t, err, store.ErrMalformedDocument)
	})
}

func TestLoaderUnknownMembers(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	writeFile(t, roots.install, "party.xml", `<?xml version="1.0" encoding="utf-8"?>
<Party name="Heroes" leader="Valeros">
  <Members>
    <Creature CR="3" Source="Core">
      <Name>Valeros</Name>
      <Alignment>NG</Alignment>
    </Creature>
    <Creature CR="3" Source="Core">
      <Name>Seoni</Name>
      <Alignment>LN</Alignment>
    </Creature>
  </Members>
</Party>`)

	log, logs := observed()
	loader := store.NewLoader[Party](roots.Roots, store.WithLogger(log))

	got, err := loader.LoadRequired(ctx, "party.xml")
	require.NoError(t, err)
	assert.Equal(t, "Heroes", got.Name)
	require.Len(t, got.Members, 2)
	assert.Equal(t, "Seoni", got.Members[1].Name)

	entries := logs.FilterMessage("unknown document member").All()
	var members []string
	for _, e := range entries {
		assert.Equal(t, "party.xml", e.ContextMap()["file"])
		members = append(members, e.ContextMap()["member"].(string))
	}
	assert.Equal(t, []string{"leader", "Source", "Alignment"}, members)
}

func TestLoaderUnknownHandler(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	writeFile(t, roots.user, "party.xml", `<Party name="Heroes" leader="Valeros"><Loot/></Party>`)
	writeFile(t, roots.user, "clean.xml", `<Party name="Heroes"/>`)

	type report struct {
		file  string
		root  store.Root
		names []string
	}
	var reports []report
	loader := store.NewLoader[Party](roots.Roots, store.WithUnknownHandler(func(file string, root store.Root, names []string) {
		reports = append(reports, report{file, root, names})
	}))

	assert.Equal(t, "Heroes", loader.LoadOptional(ctx, "party.xml").Name)
	assert.Equal(t, "Heroes", loader.LoadOptional(ctx, "clean.xml").Name)

	require.Len(t, reports, 1)
	assert.Equal(t, report{"party.xml", store.UserDataRoot, []string{"leader", "Loot"}}, reports[0])
}

func TestLoaderNonUTF8Document(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	doc := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><Party name=\"Caf\xe9\"/>"
	writeFile(t, roots.install, "party.xml", doc)

	got, err := store.NewLoader[Party](roots.Roots).LoadRequired(ctx, "party.xml")
	require.NoError(t, err)
	assert.Equal(t, "Café", got.Name)
}

func TestLoaderDelete(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	loader := store.NewLoader[Party](roots.Roots)

	require.NoError(t, loader.Delete("party.xml", store.UserDataRoot))

	require.NoError(t, loader.Save(ctx, Party{Name: "Heroes"}, "party.xml", store.UserDataRoot))
	require.Equal(t, "Heroes", loader.LoadOptional(ctx, "party.xml").Name)

	require.NoError(t, loader.Delete("party.xml", store.UserDataRoot))
	assert.NoFileExists(t, filepath.Join(roots.user, "party.xml"))
	assert.Equal(t, Party{}, loader.LoadOptional(ctx, "party.xml"))
}

func TestLoaderUnresolvableRoot(t *testing.T) {
	ctx := context.Background()
	// A regular file where the user-data directory should be.
	parent := t.TempDir()
	blocker := filepath.Join(parent, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	roots := store.NewRoots(&store.Config{UserDataDir: filepath.Join(blocker, "data")})
	loader := store.NewLoader[Party](roots)

	assert.Equal(t, Party{}, loader.LoadOptional(ctx, "party.xml"))

	err := loader.Save(ctx, Party{}, "party.xml", store.UserDataRoot)
	require.ErrorIs(t, err, store.ErrResolution)
	var serr *store.SaveError
	assert.True(t, errors.As(err, &serr))

	_, err = loader.Load(ctx, "party.xml", store.Root(9))
	assert.ErrorIs(t, err, store.ErrUnknownRoot)
}

func TestLoaderInstrumentation(t *testing.T) {
	ctx := context.Background()
	roots := newTestRoots(t)
	writeFile(t, roots.install, "broken.xml", "<Party>")
	writeFile(t, roots.install, "party.xml", `<Party name="x" extra="1"/>`)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	loader := store.NewLoader[Party](roots.Roots, store.WithMeterProvider(mp), store.WithTracerProvider(tp))

	_, err := loader.LoadRequired(ctx, "party.xml")
	require.NoError(t, err)
	_, err = loader.LoadRequired(ctx, "broken.xml")
	require.Error(t, err)
	loader.LoadOptional(ctx, "missing.xml")
	require.NoError(t, loader.Save(ctx, Party{Name: "y"}, "party.xml", store.UserDataRoot))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	assert.Equal(t, int64(1), counterValue(t, rm, "xmlstore.loads", attribute.String("outcome", "ok")))
	assert.Equal(t, int64(1), counterValue(t, rm, "xmlstore.loads", attribute.String("outcome", "failed")))
	assert.Equal(t, int64(1), counterValue(t, rm, "xmlstore.loads", attribute.String("outcome", "missing")))
	assert.Equal(t, int64(1), counterValue(t, rm, "xmlstore.saves", attribute.String("root", "user-data")))
	assert.Equal(t, int64(1), counterValue(t, rm, "xmlstore.unknown_members", attribute.String("root", "install")))

	ended := spans.Ended()
	require.Len(t, ended, 4)
	assert.Equal(t, "xmlstore.Load", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "xmlstore.Save", ended[3].Name())
}

// counterValue sums the data points of an int64 counter carrying attr.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(attr.Key); ok && v == attr.Value {
					total += dp.Value
				}
			}
		}
	}
	return total
}
