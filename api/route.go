package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"

	"haruki-asset-deobfuscator/config"
	"haruki-asset-deobfuscator/deobfuscator"
	"haruki-asset-deobfuscator/pipeline"
	"haruki-asset-deobfuscator/utils/dump"
	harukiLogger "haruki-asset-deobfuscator/utils/logger"

	"github.com/gofiber/fiber/v3"
	"github.com/zeebo/blake3"
)

const (
	SchemeHeader = "X-Haruki-Scheme"
	DigestHeader = "X-Haruki-Blake3"
)

var logger = harukiLogger.NewLogger("HarukiAPI", "INFO", nil)

var pipelineRunning atomic.Bool

type RunPayload struct {
	Inputs []string `json:"inputs"`
}

// runPipeline starts a batch run in a goroutine
func runPipeline(p *pipeline.Pipeline, inputs []string) {
	go func() {
		defer pipelineRunning.Store(false)
		summary, err := p.Run(context.Background(), inputs)
		if err != nil {
			logger.Errorf("Pipeline run failed: %v", err)
			return
		}
		logger.Infof("Pipeline run finished with %d items", len(summary.Items))
	}()
}

// resolveRunInputs keeps URLs and maps every other input onto a path below
// inputDir. Absolute paths and paths leaving inputDir are rejected.
func resolveRunInputs(inputs []string, inputDir string) ([]string, error) {
	resolved := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if pipeline.IsURL(in) {
			resolved = append(resolved, in)
			continue
		}
		if inputDir == "" {
			return nil, fmt.Errorf("local input %q requires a configured input directory", in)
		}
		rel := filepath.FromSlash(in)
		if !filepath.IsLocal(rel) {
			return nil, fmt.Errorf("input %q is outside the input directory", in)
		}
		resolved = append(resolved, filepath.Join(inputDir, rel))
	}
	return resolved, nil
}

// RegisterRoutes registers all API routes
func RegisterRoutes(app *fiber.App) {
	app.Use(checkAuthorization)
	app.Get("/schemes", schemesHandler)
	app.Post("/probe", probeHandler)
	app.Post("/deobfuscate", deobfuscateHandler)
	app.Post("/run", runHandler)
}

func checkAuthorization(c fiber.Ctx) error {
	if !config.Cfg.Backend.EnableAuthorization {
		return c.Next()
	}
	if config.Cfg.Backend.AcceptUserAgentPrefix != "" {
		userAgent := c.Get("User-Agent")
		if !strings.HasPrefix(userAgent, config.Cfg.Backend.AcceptUserAgentPrefix) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid User-Agent",
			})
		}
	}
	if config.Cfg.Backend.AcceptAuthorizationToken != "" {
		authHeader := c.Get("Authorization")
		expectedAuth := "Bearer " + config.Cfg.Backend.AcceptAuthorizationToken
		if authHeader != expectedAuth {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid authorization token",
			})
		}
	}
	return c.Next()
}

func schemesHandler(c fiber.Ctx) error {
	schemes := deobfuscator.DefaultCatalog().Schemes()
	list := make([]fiber.Map, 0, len(schemes))
	for _, s := range schemes {
		list = append(list, fiber.Map{
			"name":       s.Name(),
			"priority":   s.Priority(),
			"structured": s.ProducesStructuredContainer(),
		})
	}
	return c.JSON(list)
}

func probeHandler(c fiber.Ctx) error {
	s, err := deobfuscator.NewDispatcher(nil).Identify(bytes.NewReader(c.Body()), c.Query("name"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Failed to read input",
			"error":   err.Error(),
		})
	}
	if s == nil {
		return c.JSON(fiber.Map{"recognized": false})
	}
	return c.JSON(fiber.Map{
		"recognized": true,
		"scheme":     s.Name(),
		"structured": s.ProducesStructuredContainer(),
	})
}

func deobfuscateHandler(c fiber.Ctx) error {
	res, err := deobfuscator.NewDispatcher(nil).Dispatch(bytes.NewReader(c.Body()), c.Query("name"))
	if err != nil {
		var me *deobfuscator.MalformedError
		if errors.As(err, &me) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Input is malformed for its scheme",
				"scheme":  me.Scheme,
				"error":   err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to deobfuscate input",
			"error":   err.Error(),
		})
	}
	if !res.Recognized() {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "No scheme recognized the input",
		})
	}
	c.Set(SchemeHeader, res.SchemeName())
	if res.Output.Structured() {
		return c.JSON(dump.Describe(res.SchemeName(), res.Output.Bundle).Ordered())
	}
	out, err := res.Output.Bytes()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to read decoded output",
			"error":   err.Error(),
		})
	}
	sum := blake3.Sum256(out)
	c.Set(DigestHeader, hex.EncodeToString(sum[:]))
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(out)
}

func runHandler(c fiber.Ctx) error {
	var payload RunPayload
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&payload); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "Invalid request payload",
				"error":   err.Error(),
			})
		}
	}
	inputs, err := resolveRunInputs(payload.Inputs, config.Cfg.Pipeline.InputDir)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid inputs",
			"error":   err.Error(),
		})
	}
	p, err := pipeline.New(config.Cfg)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Pipeline is not configured",
			"error":   err.Error(),
		})
	}
	if !pipelineRunning.CompareAndSwap(false, true) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": "Pipeline is already running",
		})
	}
	runPipeline(p, inputs)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Pipeline started running",
		"inputs":  payload.Inputs,
	})
}
