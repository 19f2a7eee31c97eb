package command

import (
	"fmt"
	"net/http"
	"os"

	"github.com/relaysix/sshx/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logLevel       string
	listenAddress  string
	baseURL        string
	allowedOrigins []string
	gcpProjectID   string
)

func serve(cmd *cobra.Command, args []string) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return err
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	logger, err := config.Build()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	websocketOriginFunc := func(request *http.Request) bool {
		if len(allowedOrigins) == 0 {
			return true
		}
		origin := request.Header.Get("Origin")
		for _, allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}
		return false
	}

	srv, err := server.New(
		[]string{listenAddress},
		server.WithLogger(logger),
		server.WithBaseURL(baseURL),
		server.WithWebsocketOriginFunc(websocketOriginFunc),
		server.WithGCPProjectID(gcpProjectID),
	)
	if err != nil {
		return err
	}

	logger.Info("starting", zap.Strings("addresses", srv.Addresses()))

	return srv.Run(cmd.Context())
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [flags]",
		Short: "run the session coordinator's host (gRPC/gRPC-Web) and viewer (WebSocket) endpoints",
		RunE:  serve,
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"logging level (debug, info, warn, error)")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	cmd.PersistentFlags().StringVarP(&listenAddress, "listen", "l", fmt.Sprintf(":%s", port),
		"address to listen on")

	cmd.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:8080",
		"externally-reachable base URL used to build share links")

	cmd.PersistentFlags().StringSliceVar(&allowedOrigins, "allowed-origins", nil,
		"comma-separated list of origins allowed to open the viewer WebSocket (default: allow all)")

	cmd.PersistentFlags().StringVar(&gcpProjectID, "gcp-project-id", "",
		"GCP project ID used to attach Cloud Trace context to log entries (default: disabled)")

	return cmd
}
