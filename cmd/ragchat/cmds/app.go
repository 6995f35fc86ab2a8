package cmds

import (
	"io"
	"os"

	"github.com/go-go-golems/ragchat/pkg/client"
	"github.com/go-go-golems/ragchat/pkg/docs"
	"github.com/go-go-golems/ragchat/pkg/events"
	"github.com/go-go-golems/ragchat/pkg/inference"
	"github.com/go-go-golems/ragchat/pkg/kvstore"
	"github.com/go-go-golems/ragchat/pkg/render"
	"github.com/go-go-golems/ragchat/pkg/session"
	"github.com/go-go-golems/ragchat/pkg/settings"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// App wires the session, the controller and the corpus repository for one command run.
type App struct {
	Settings   *settings.Settings
	KV         kvstore.Store
	Bus        *events.Bus
	Client     *client.Client
	Store      *session.Store
	Controller *inference.Controller
	Docs       *docs.Repository
	Renderer   *render.Renderer

	// Yes skips confirmation prompts.
	Yes bool
}

func NewApp() (*App, error) {
	s, err := settings.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}

	kv, err := kvstore.Open(s.Store, s.StateDir)
	if err != nil {
		return nil, errors.Wrap(err, "could not open session store")
	}

	bus := events.NewBus(events.WithLogger(events.NewWatermillLogger(log.Logger)))
	c := client.New(s.APIURL, client.WithTimeout(s.Timeout))
	store := session.NewStore(kv,
		session.WithDefaultSystemPrompt(s.DefaultSystemPrompt),
		session.WithPublisher(bus),
	)

	log.Debug().
		Str("api", c.BaseURL()).
		Str("model", s.Model).
		Str("store", s.Store).
		Str("state_dir", s.StateDir).
		Msg("Initialized app")

	return &App{
		Settings: s,
		KV:       kv,
		Bus:      bus,
		Client:   c,
		Store:    store,
		Controller: inference.NewController(store, c,
			inference.WithModel(s.Model),
			inference.WithPublisher(bus),
		),
		Docs:     docs.NewRepository(c, docs.WithPublisher(bus)),
		Renderer: render.NewRenderer("dark", !isatty.IsTerminal(os.Stdout.Fd())),
		Yes:      viper.GetBool("yes"),
	}, nil
}

func (a *App) Close() {
	if err := a.Bus.Close(); err != nil {
		log.Warn().Err(err).Msg("could not close event bus")
	}
	if err := a.KV.Close(); err != nil {
		log.Warn().Err(err).Msg("could not close session store")
	}
}

// Print writes the output of a Renderer call. When styling failed the renderer already fell
// back to plain markdown, so the error is only logged.
func (a *App) Print(w io.Writer, rendered string, err error) {
	if err != nil {
		log.Warn().Err(err).Msg("could not render output")
	}
	_, _ = io.WriteString(w, rendered)
}
