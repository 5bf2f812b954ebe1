package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/desenyon/infiniteidea-sub000/internal/logging"
)

func newServeCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := o.app()
			if err != nil {
				return err
			}
			defer app.Close()

			server, err := app.Server()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown := make(chan struct{})
			go func() {
				<-ctx.Done()
				app.Logger.Info("shutting down", logging.Fields{"addr": server.Addr()})
				close(shutdown)
			}()

			app.Logger.Info("listening", logging.Fields{
				"addr":    server.Addr(),
				"version": app.Config.Server.Version,
			})
			return server.ListenAndServeWithGracefulShutdown(shutdown)
		},
	}
}
