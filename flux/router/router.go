// Package router binds loaded flux definitions to gin, the HTTP framework
// collaborator (spec.md §4.6, out of scope: the framework itself).
package router

import (
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"fluxcore/flux"
	"fluxcore/flux/config"
	"fluxcore/flux/exec"
)

// ApplyCORS installs gin-contrib/cors as a global middleware from spec.md
// §6's `server.cors` config object. A nil cfg (the field is absent from
// config.json) means the server runs without CORS headers at all — the
// zero-config case the teacher's own runtime leaves unhandled too. Must be
// called before Register so the middleware sees every route.
func ApplyCORS(g *gin.Engine, cfg *config.CORS) {
	if cfg == nil {
		return
	}

	cc := cors.Config{
		AllowCredentials: cfg.Credentials,
		AllowMethods:     cfg.Methods,
		AllowHeaders:     cfg.AllowedHeaders,
		ExposeHeaders:    cfg.ExposedHeaders,
		MaxAge:           time.Duration(cfg.MaxAge) * time.Second,
	}

	switch origin := cfg.Origin.(type) {
	case bool:
		cc.AllowAllOrigins = origin
	case string:
		cc.AllowOrigins = []string{origin}
	case []string:
		cc.AllowOrigins = origin
	case []any:
		for _, o := range origin {
			if s, ok := o.(string); ok {
				cc.AllowOrigins = append(cc.AllowOrigins, s)
			}
		}
	default:
		// cors omitted or unrecognized shape — treat as allow-all, the
		// same default a bare `"cors": {}` entry implies.
		cc.AllowAllOrigins = true
	}

	if len(cc.AllowMethods) == 0 {
		cc.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	}

	g.Use(cors.New(cc))
}

// Register binds one gin handler per (method, endpoint) pair for every
// definition in defs. Grounded on the teacher's NewHttpHandler/
// handleRequest (runtime/http_handler.go): construct a fresh context,
// extract request data into input, delegate to the executor. Generalized
// from the teacher's two-method switch (GET/POST only) to all seven verbs
// spec.md §3 allows, and from separately-prefixed pathVariables/
// queryParameters/body buckets to a single flat `input` merged
// {...body, ...query, ...params} with later keys winning (spec.md §9 open
// question, pinned).
func Register(g *gin.Engine, executor *exec.Executor, plugins map[string]any, defs []*flux.Definition) {
	for _, def := range defs {
		handler := buildHandler(executor, plugins, def)
		switch def.Method {
		case flux.MethodGet:
			g.GET(def.Endpoint, handler)
		case flux.MethodPost:
			g.POST(def.Endpoint, handler)
		case flux.MethodPut:
			g.PUT(def.Endpoint, handler)
		case flux.MethodDelete:
			g.DELETE(def.Endpoint, handler)
		case flux.MethodPatch:
			g.PATCH(def.Endpoint, handler)
		case flux.MethodOptions:
			g.OPTIONS(def.Endpoint, handler)
		case flux.MethodHead:
			g.HEAD(def.Endpoint, handler)
		default:
			slog.Warn("flux definition has unsupported method, skipping registration", "endpoint", def.Endpoint, "method", def.Method)
		}
	}
}

func buildHandler(executor *exec.Executor, plugins map[string]any, def *flux.Definition) gin.HandlerFunc {
	return func(c *gin.Context) {
		input := mergeInput(c)
		fc := flux.NewContext(c.Request, c.Writer, input, clonePlugins(plugins))
		executor.ExecuteFlux(c.Request.Context(), def, fc)
	}
}

// mergeInput builds ctx.input per spec.md §3/§9:
// {...body, ...query, ...params} — later keys win.
func mergeInput(c *gin.Context) map[string]any {
	input := map[string]any{}

	if body := readJSONBody(c); body != nil {
		for k, v := range body {
			input[k] = v
		}
	}

	for key, values := range c.Request.URL.Query() {
		if len(values) == 1 {
			input[key] = values[0]
		} else {
			anyValues := make([]any, len(values))
			for i, v := range values {
				anyValues[i] = v
			}
			input[key] = anyValues
		}
	}

	for _, p := range c.Params {
		input[p.Key] = p.Value
	}

	return input
}

func readJSONBody(c *gin.Context) map[string]any {
	if c.Request.Body == nil {
		return nil
	}
	ct := c.GetHeader("Content-Type")
	if ct != "" && !strings.Contains(ct, "application/json") {
		return nil
	}

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("request body is not a JSON object, ignoring for input merge", "path", c.Request.URL.Path, "error", err)
		return nil
	}
	return parsed
}

func clonePlugins(plugins map[string]any) map[string]any {
	out := make(map[string]any, len(plugins))
	for k, v := range plugins {
		out[k] = v
	}
	return out
}
