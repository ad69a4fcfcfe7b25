package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nonebot/adapter-onebot/cmd/onebot-adapter/internal/config"
	"github.com/nonebot/adapter-onebot/internal/identity"
	"github.com/nonebot/adapter-onebot/internal/obs"
	"github.com/nonebot/adapter-onebot/onebot/v11"
	"github.com/nonebot/adapter-onebot/onebot/v12"
)

var configFile string

const shutdownGrace = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP/WebSocket server for both protocol versions",
	Long: `Run the OneBot v11 and v12 adapters behind one HTTP server.

The canonical paths "/onebot/v11/" and "/onebot/v12/" each accept either a
POST request (decoded as the HTTP push transport) or a WebSocket upgrade
(the inbound server transport); "/onebot/v11/http(/)" and
"/onebot/v12/http(/)" are explicit HTTP aliases, and "/ws(/)" and
"/onebot/v12/ws(/)" are explicit WebSocket aliases for v11 and v12
respectively, since both versions cannot share the bare "/ws" path in one
process.

Press Ctrl+C to exit.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configFile, "config", "f", "config.yaml", "path to the YAML configuration file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger := obs.NewLineLogger()
	tag := obs.NewInstanceTag()
	logger.Infof("starting %s", tag)

	idRegistry := identity.New()

	var v11Handler v11.EventHandler = func(bot *v11.Bot, event v11.Event) {}
	var v12Handler v12.EventHandler = func(bot *v12.Bot, event v12.Event) {}

	v11Adapter := v11.NewAdapter(cfg.V11, logger, v11Handler, idRegistry)
	v12Adapter := v12.NewAdapter(cfg.V12, logger, v12Handler, idRegistry)

	mux := http.NewServeMux()
	mountV11(mux, v11Adapter)
	mountV12(mux, v12Adapter)

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	v11Adapter.StartForward(ctx)
	v12Adapter.StartForward(ctx)

	serverErrCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.ListenAddr)
		serverErrCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
	case <-sigCh:
		logger.Infof("shutting down")
	}

	cancel()
	v11Adapter.Shutdown()
	v12Adapter.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	return server.Shutdown(shutdownCtx)
}

func mountV11(mux *http.ServeMux, a *v11.Adapter) {
	httpHandler := a.HTTPHandler()
	wsHandler := a.WSHandler()
	canonical := upgradeAwareHandler(httpHandler, wsHandler)

	mux.Handle("/onebot/v11/", canonical)
	mux.Handle("/onebot/v11/http", httpHandler)
	mux.Handle("/onebot/v11/http/", httpHandler)
	mux.Handle("/ws", wsHandler)
	mux.Handle("/ws/", wsHandler)
}

func mountV12(mux *http.ServeMux, a *v12.Adapter) {
	httpHandler := a.HTTPHandler()
	wsHandler := a.WSHandler()
	canonical := upgradeAwareHandler(httpHandler, wsHandler)

	mux.Handle("/onebot/v12/", canonical)
	mux.Handle("/onebot/v12/http", httpHandler)
	mux.Handle("/onebot/v12/http/", httpHandler)
	mux.Handle("/onebot/v12/ws", wsHandler)
	mux.Handle("/onebot/v12/ws/", wsHandler)
}

// upgradeAwareHandler routes a canonical "/onebot/vNN/" request to wsHandler
// when the client requested a WebSocket upgrade, and to httpHandler
// otherwise.
func upgradeAwareHandler(httpHandler, wsHandler http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			wsHandler.ServeHTTP(w, r)
			return
		}
		httpHandler.ServeHTTP(w, r)
	}
}
