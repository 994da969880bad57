package session

import (
	"context"
	"net/url"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/creastat/sessionstore"
)

func TestDial_Redis(t *testing.T) {
	for _, g := range granularities {
		t.Run(g.String(), func(t *testing.T) {
			ctx := context.Background()
			mr := miniredis.RunT(t)
			recorder := tracetest.NewSpanRecorder()
			provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

			cfg := DefaultConfig()
			cfg.Granularity = g
			cfg.URI = &url.URL{Scheme: "redis", Host: mr.Addr()}
			cfg.Properties = map[string]string{"pool_size": "2"}
			cfg.TemplateName = "shop"
			cfg.Tracer = provider.Tracer("test")

			repo, err := Dial(cfg, &recordingPublisher{})
			require.NoError(t, err)
			defer repo.Close()

			s, err := repo.Create(ctx)
			require.NoError(t, err)
			s.Set("user", "dave")
			require.NoError(t, repo.Save(ctx, s))
			assert.True(t, mr.Exists("shop:session:{"+s.ID()+"}"))

			loaded, err := repo.Load(ctx, s.ID())
			require.NoError(t, err)
			v, ok, err := loaded.Get(ctx, "user")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "dave", v)

			assert.NotEmpty(t, recorder.Ended())
		})
	}
}

func TestDial_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := DefaultConfig()
	cfg.URI = &url.URL{Scheme: "redis", Host: addr}
	cfg.Properties = map[string]string{"max_retries": "-1", "dial_timeout": "100ms"}

	repo, err := Dial(cfg, &recordingPublisher{})
	require.NoError(t, err, "connections are opened lazily")
	defer repo.Close()

	_, err = repo.Load(context.Background(), "s1")
	require.ErrorIs(t, err, sessionstore.ErrConnectivity)
}

func TestDial_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	_, err := Dial(cfg, &recordingPublisher{})
	require.ErrorIs(t, err, sessionstore.ErrConfiguration, "missing uri")

	cfg.URI = &url.URL{Scheme: "redis", Host: "localhost:6379"}
	cfg.Properties = map[string]string{"pool_size": "lots"}
	_, err = Dial(cfg, &recordingPublisher{})
	require.ErrorIs(t, err, sessionstore.ErrConfiguration)

	cfg.Properties = nil
	cfg.Granularity = 0
	_, err = Dial(cfg, &recordingPublisher{})
	require.ErrorIs(t, err, sessionstore.ErrConfiguration)
}
