package commands

import (
	"net/http"
	"time"

	"github.com/haivivi/nova/pkg/cli"
	"github.com/haivivi/nova/pkg/gemini"
	"github.com/haivivi/nova/pkg/history"
	"github.com/haivivi/nova/pkg/kv"
	"github.com/haivivi/nova/pkg/storage"
)

// apiKey returns the environment key, falling back to the context key.
func apiKey(ctx *cli.Context) string {
	if key := gemini.APIKeyFromEnv(); key != "" {
		return key
	}
	return ctx.APIKey
}

// clientOptions maps a context onto gemini client options. transport
// overrides the context setting when not empty.
func clientOptions(ctx *cli.Context, transport string) ([]gemini.Option, error) {
	if transport == "" {
		transport = ctx.GetExtra(cli.KeyTransport)
	}
	t, err := gemini.ParseTransport(transport)
	if err != nil {
		return nil, err
	}
	opts := []gemini.Option{
		gemini.WithBaseURL(ctx.BaseURL),
		gemini.WithTransport(t),
		gemini.WithImageModel(ctx.GetExtra(cli.KeyImageModel)),
	}
	if ctx.Timeout > 0 {
		opts = append(opts, gemini.WithHTTPClient(&http.Client{
			Timeout: time.Duration(ctx.Timeout) * time.Second,
		}))
	}
	return opts, nil
}

func newClient(ctx *cli.Context) (*gemini.Client, error) {
	opts, err := clientOptions(ctx, "")
	if err != nil {
		return nil, err
	}
	return gemini.NewClient(apiKey(ctx), opts...)
}

// openHistory opens the badger-backed chat history. The caller closes the
// returned kv store.
func openHistory(cfg *cli.Config, ctx *cli.Context) (*history.Store, kv.Store, error) {
	dir := ctx.GetExtra(cli.KeyHistoryDir)
	if dir == "" {
		dir = cfg.Paths().HistoryDir()
	}
	db, err := kv.OpenBadger(dir)
	if err != nil {
		return nil, nil, err
	}
	return history.NewStore(db), db, nil
}

// imageStore selects S3 when the context names a bucket and the local image
// directory otherwise.
func imageStore(cfg *cli.Config, ctx *cli.Context) (storage.Store, error) {
	if bucket := ctx.GetExtra(cli.KeyS3Bucket); bucket != "" {
		client, err := storage.NewS3Client(storage.S3Config{
			Bucket:   bucket,
			Region:   ctx.GetExtra(cli.KeyS3Region),
			Endpoint: ctx.GetExtra(cli.KeyS3Endpoint),
		})
		if err != nil {
			return nil, err
		}
		return storage.NewS3(client, bucket, ctx.GetExtra(cli.KeyS3Prefix)), nil
	}
	dir := ctx.GetExtra(cli.KeyImageDir)
	if dir == "" {
		dir = cfg.Paths().ImageDir()
	}
	return storage.NewLocal(dir)
}
