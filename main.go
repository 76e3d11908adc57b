package main

import (
	"fmt"
	"io"
	"os"

	"haruki-asset-deobfuscator/api"
	"haruki-asset-deobfuscator/config"
	"haruki-asset-deobfuscator/deobfuscator"
	"haruki-asset-deobfuscator/pipeline"
	harukiLogger "haruki-asset-deobfuscator/utils/logger"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

func main() {
	var logFile *os.File
	var loggerWriter io.Writer = os.Stdout
	if config.Cfg.Backend.MainLogFile != "" {
		var err error
		logFile, err = os.OpenFile(config.Cfg.Backend.MainLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			mainLogger := harukiLogger.NewLogger("Main", config.Cfg.Backend.LogLevel, os.Stdout)
			mainLogger.Errorf("failed to open main log file: %v", err)
			os.Exit(1)
		}
		loggerWriter = io.MultiWriter(os.Stdout, logFile)
		defer func(logFile *os.File) {
			_ = logFile.Close()
		}(logFile)
	}
	mainLogger := harukiLogger.NewLogger("Main", config.Cfg.Backend.LogLevel, loggerWriter)
	mainLogger.Infof("========================= Haruki Asset Deobfuscator %s =========================", config.Version)
	mainLogger.Infof("Powered By Haruki Dev Team")
	deobfuscator.SetLogLevel(config.Cfg.Backend.LogLevel)
	pipeline.SetLogLevel(config.Cfg.Backend.LogLevel)
	mainLogger.Infof("Loaded %d deobfuscation schemes", deobfuscator.DefaultCatalog().Len())

	bodyLimit := config.Cfg.Backend.BodyLimitMB
	if bodyLimit <= 0 {
		bodyLimit = 256
	}
	app := fiber.New(fiber.Config{
		BodyLimit:   bodyLimit * 1024 * 1024,
		JSONEncoder: sonic.Marshal,
		JSONDecoder: sonic.Unmarshal,
	})

	if config.Cfg.Backend.AccessLog != "" {
		logCfg := logger.Config{Format: config.Cfg.Backend.AccessLog}
		if config.Cfg.Backend.AccessLogPath != "" {
			accessLogFile, err := os.OpenFile(config.Cfg.Backend.AccessLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				mainLogger.Errorf("failed to open access log file: %v", err)
				os.Exit(1)
			}
			defer func(accessLogFile *os.File) {
				_ = accessLogFile.Close()
			}(accessLogFile)
			logCfg.Stream = accessLogFile
		}
		app.Use(logger.New(logCfg))
	}

	api.RegisterRoutes(app)

	addr := fmt.Sprintf("%s:%d", config.Cfg.Backend.Host, config.Cfg.Backend.Port)
	listenCfg := fiber.ListenConfig{}
	if config.Cfg.Backend.SSL {
		listenCfg.CertFile = config.Cfg.Backend.SSLCert
		listenCfg.CertKeyFile = config.Cfg.Backend.SSLKey
	}
	if err := app.Listen(addr, listenCfg); err != nil {
		mainLogger.Errorf("failed to start server: %v", err)
		os.Exit(1)
	}
}
