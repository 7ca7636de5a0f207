package admin

import (
	"net/http"
	"time"

	"github.com/orca-so/sedimentology/app/admin/controller"
	"github.com/orca-so/sedimentology/app/admin/types"
)

// NewServer builds the API server listening on addr.
func NewServer(app *types.App, addr string) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	app.Server = &http.Server{
		Addr:              addr,
		Handler:           controller.WithCORS(router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}
