package execution

import (
	"log/slog"

	"github.com/birdayz/kflow/kstate"
)

type stageContext struct {
	id  string
	env *kstate.Env
	log *slog.Logger
}

func (c *stageContext) StageID() string {
	return c.id
}

func (c *stageContext) Env() *kstate.Env {
	return c.env
}

func (c *stageContext) Logger() *slog.Logger {
	return c.log
}

// DatabaseName prefixes name with the stage id, so two stages opening the
// same name get distinct databases.
func (c *stageContext) DatabaseName(name string) string {
	return c.id + "/" + name
}
