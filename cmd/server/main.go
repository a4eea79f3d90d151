// Command server runs the tiercade function platform's HTTP API: the
// Registry plus the Code, Generative, Agentic, and Cascade executors
// behind the auth gate and rate limiter (spec §6/§4.7).
//
// # Configuration
//
// Environment variables:
//
//	SERVER_ADDR      - HTTP listen address (default: ":8080")
//	MONGO_URI        - MongoDB connection string; when unset, the registry,
//	                    execution log, and log stores run in-memory
//	MONGO_DATABASE   - MongoDB database name (default: "tiercade")
//	REDIS_ADDR       - Redis address for the generative cache and cluster
//	                    rate limiter; when unset, both run in-process
//	ANTHROPIC_API_KEY, OPENAI_API_KEY - LLM provider credentials; the first
//	                    one set selects the provider used by the
//	                    Generative and Agentic executors
//	RATE_LIMIT_RPS   - requests per second per rate-limit key (default: 10)
//	RATE_LIMIT_BURST - burst size per rate-limit key (default: 20)
//	BUILTIN_FILES_DIR - root directory the file_read/file_write builtin
//	                    tools are scoped to (default: os.TempDir())
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tiercade/tiercade/api"
	"github.com/tiercade/tiercade/execstore"
	execstoremem "github.com/tiercade/tiercade/execstore/memory"
	execstoremongo "github.com/tiercade/tiercade/execstore/mongo"
	"github.com/tiercade/tiercade/logstore"
	logstoremem "github.com/tiercade/tiercade/logstore/memory"
	logstoremongo "github.com/tiercade/tiercade/logstore/mongo"
	"github.com/tiercade/tiercade/registry"
	"github.com/tiercade/tiercade/registry/store"
	storemem "github.com/tiercade/tiercade/registry/store/memory"
	storemongo "github.com/tiercade/tiercade/registry/store/mongo"
	"github.com/tiercade/tiercade/runtime/agentexec"
	"github.com/tiercade/tiercade/runtime/auth"
	"github.com/tiercade/tiercade/runtime/cache"
	"github.com/tiercade/tiercade/runtime/cascade"
	"github.com/tiercade/tiercade/runtime/codeexec"
	"github.com/tiercade/tiercade/runtime/genexec"
	"github.com/tiercade/tiercade/runtime/model"
	"github.com/tiercade/tiercade/runtime/ratelimit"
	"github.com/tiercade/tiercade/runtime/retry"
	"github.com/tiercade/tiercade/runtime/tooldispatch"
	"github.com/tiercade/tiercade/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx := context.Background()
	logger := telemetry.NewClueLogger()

	addr := envOr("SERVER_ADDR", ":8080")

	metaStore, codeStore, logs, execs, err := buildStores(ctx)
	if err != nil {
		return err
	}
	reg := registry.New(metaStore, codeStore)

	modelClient, err := buildModelClient()
	if err != nil {
		return err
	}

	cacheStore := buildCache()

	codeExec := codeexec.New(reg, nil, nil, logger)
	genExec := genexec.New(reg, modelClient, cacheStore)
	dispatch := tooldispatch.New(codeExec, tooldispatch.DefaultBuiltins(envOr("BUILTIN_FILES_DIR", os.TempDir())))
	agentExec := agentexec.New(reg, modelClient, dispatch, nil)
	cascadeExec := cascade.New(reg, codeExec, genExec, agentExec)

	gate := auth.NewGate(auth.NewMemoryStore(), api.PublicPaths)
	limiter := buildLimiter()

	server := &api.Server{
		Registry: reg,
		Code:     codeExec,
		Gen:      genExec,
		Agent:    agentExec,
		Cascade:  cascadeExec,
		Logs:     logs,
		Execs:    execs,
		Gate:     gate,
		Limiter:  limiter,
		Logger:   logger,
	}

	logger.Info(ctx, "starting tiercade server", "addr", addr)
	return http.ListenAndServe(addr, server.Routes())
}

func buildStores(ctx context.Context) (store.MetadataStore, store.CodeStore, logstore.Store, execstore.Store, error) {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		return storemem.NewMetadataStore(), storemem.NewCodeStore(), logstoremem.New(), execstoremem.New(), nil
	}

	client, err := mongo.Connect(options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, nil, nil, err
	}
	db := client.Database(envOr("MONGO_DATABASE", "tiercade"))

	metaStore := storemongo.NewMetadataStore(db.Collection("function_metadata"))
	codeStore := storemongo.NewCodeStore(db.Collection("code_artifacts"))
	logs, err := logstoremongo.NewStore(ctx, db.Collection("function_logs"))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	execs := execstoremongo.NewStore(db.Collection("executions"))
	return metaStore, codeStore, logs, execs, nil
}

func buildModelClient() (model.Client, error) {
	client, err := newProviderClient()
	if err != nil || client == nil {
		return client, err
	}
	return model.WithRetry(client, retry.DefaultConfig()), nil
}

func newProviderClient() (model.Client, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return model.NewAnthropicFromAPIKey(key, envOr("DEFAULT_MODEL", "claude-sonnet-4-5"))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return model.NewOpenAIFromAPIKey(key, envOr("DEFAULT_MODEL", "gpt-4o"))
	}
	return nil, nil
}

func buildCache() cache.Store {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		return cache.NewRedisStore(client, "tiercade:genexec:")
	}
	return cache.NewMemoryStore()
}

func buildLimiter() ratelimit.Limiter {
	rps := envFloatOr("RATE_LIMIT_RPS", 10)
	burst := envIntOr("RATE_LIMIT_BURST", 20)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		return ratelimit.NewCluster(client, "tiercade:ratelimit:", int(rps), time.Second)
	}
	return ratelimit.NewLocal(rps, burst)
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func envFloatOr(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
